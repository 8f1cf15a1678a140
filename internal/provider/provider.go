// Package provider contains thin adapters over external routing services.
// Each adapter normalizes one service into the Client contract; the
// collector and the web process never see provider-specific payloads.
package provider

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Provider name constants, stored on every sample
const (
	NameWaze = "waze"
	NameOSRM = "osrm"
)

// Point is a WGS84 coordinate
type Point struct {
	Lat float64
	Lng float64
}

// ETA is a normalized routing estimate. Raw carries the provider's response
// as an opaque diagnostic payload; nothing downstream parses it.
type ETA struct {
	DurationSec int
	DistanceM   int
	Raw         string
}

// Client is implemented by each routing provider. FetchETA is what the
// collector polls; FetchRouteGeometry serves only the map display and is
// best-effort (callers fall back to FallbackLine on failure).
// Implementations are stateless and safe for concurrent use.
type Client interface {
	Name() string
	FetchETA(ctx context.Context, start, end Point, region string) (*ETA, error)
	FetchRouteGeometry(ctx context.Context, start, end Point, region string) ([]Point, error)
}

// Error is a provider call failure with a message safe to store on a sample
type Error struct {
	Provider string
	Msg      string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// FallbackLine is the two-point straight line used when a provider returns
// no usable geometry.
func FallbackLine(start, end Point) []Point {
	return []Point{start, end}
}

// appendPoint adds p unless it duplicates the previous point
func appendPoint(points []Point, p Point) []Point {
	if n := len(points); n > 0 && points[n-1] == p {
		return points
	}
	return append(points, p)
}

// newHTTPClient bounds every outbound provider call so one slow service
// cannot stall an entire poll cycle.
func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}
