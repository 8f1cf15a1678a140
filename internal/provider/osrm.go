package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// OSRM calls an OSRM HTTP server's route service. The region parameter is
// ignored: an OSRM instance covers whatever extract it was built from.
type OSRM struct {
	baseURL string
	client  *http.Client
}

// NewOSRM creates an OSRM client for the given server base URL
func NewOSRM(baseURL string) *OSRM {
	return &OSRM{
		baseURL: baseURL,
		client:  newHTTPClient(),
	}
}

func (o *OSRM) Name() string { return NameOSRM }

type osrmGeometry struct {
	Coordinates [][]float64 `json:"coordinates"`
}

type osrmRoute struct {
	Duration float64       `json:"duration"`
	Distance float64       `json:"distance"`
	Geometry *osrmGeometry `json:"geometry"`
}

type osrmResponse struct {
	Code   string      `json:"code"`
	Routes []osrmRoute `json:"routes"`
}

// FetchETA queries the driving profile without geometry
func (o *OSRM) FetchETA(ctx context.Context, start, end Point, region string) (*ETA, error) {
	route, body, err := o.route(ctx, start, end, "overview=false")
	if err != nil {
		return nil, err
	}

	durationSec := int(route.Duration)
	distanceM := int(route.Distance)
	if durationSec < 0 || distanceM < 0 {
		return nil, &Error{Provider: NameOSRM, Msg: "negative duration or distance in response"}
	}

	return &ETA{DurationSec: durationSec, DistanceM: distanceM, Raw: string(body)}, nil
}

// FetchRouteGeometry queries the full GeoJSON overview and collapses
// consecutive duplicate points.
func (o *OSRM) FetchRouteGeometry(ctx context.Context, start, end Point, region string) ([]Point, error) {
	route, _, err := o.route(ctx, start, end, "overview=full&geometries=geojson")
	if err != nil {
		return nil, err
	}

	var points []Point
	if route.Geometry != nil {
		for _, c := range route.Geometry.Coordinates {
			if len(c) < 2 {
				continue
			}
			// GeoJSON is [lng, lat]
			points = appendPoint(points, Point{Lat: c[1], Lng: c[0]})
		}
	}

	if len(points) == 0 {
		return FallbackLine(start, end), nil
	}
	return points, nil
}

func (o *OSRM) route(ctx context.Context, start, end Point, options string) (*osrmRoute, []byte, error) {
	// OSRM expects lng,lat ordering
	reqURL := fmt.Sprintf("%s/route/v1/driving/%v,%v;%v,%v?%s",
		o.baseURL, start.Lng, start.Lat, end.Lng, end.Lat, options)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, nil, &Error{Provider: NameOSRM, Msg: "failed to create request", Err: err}
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, nil, &Error{Provider: NameOSRM, Msg: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, &Error{Provider: NameOSRM, Msg: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, &Error{Provider: NameOSRM, Msg: "failed to read response", Err: err}
	}

	var parsed osrmResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, nil, &Error{Provider: NameOSRM, Msg: "malformed response", Err: err}
	}
	if parsed.Code != "Ok" || len(parsed.Routes) == 0 {
		return nil, nil, &Error{Provider: NameOSRM, Msg: fmt.Sprintf("bad response code %q", parsed.Code)}
	}

	return &parsed.Routes[0], body, nil
}
