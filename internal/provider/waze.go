package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Waze calls the public live-map routing endpoint. Region selects the
// routing server (the live map shards by coverage area).
type Waze struct {
	baseURL string
	client  *http.Client
}

// NewWaze creates a Waze client with the default endpoint
func NewWaze() *Waze {
	return &Waze{
		baseURL: "https://www.waze.com",
		client:  newHTTPClient(),
	}
}

func (w *Waze) Name() string { return NameWaze }

// regionServer maps a region code to the live-map routing server path
func regionServer(region string) string {
	switch strings.ToUpper(region) {
	case "US", "NA":
		return "RoutingManager/routingRequest"
	case "IL":
		return "il-RoutingManager/routingRequest"
	default:
		// EU and everywhere else
		return "row-RoutingManager/routingRequest"
	}
}

type wazeSegment struct {
	Length    int             `json:"length"`
	CrossTime int             `json:"crossTime"`
	Path      json.RawMessage `json:"path"`
}

type wazeRoute struct {
	Results []wazeSegment `json:"results"`
	Result  []wazeSegment `json:"result"`
}

type wazeResponse struct {
	Response     *wazeRoute `json:"response"`
	Alternatives []struct {
		Response *wazeRoute `json:"response"`
	} `json:"alternatives"`
	Error string `json:"error"`
}

// FetchETA requests a toll-avoiding route and sums segment cross times and
// lengths into one duration/distance estimate.
func (w *Waze) FetchETA(ctx context.Context, start, end Point, region string) (*ETA, error) {
	route, err := w.routingRequest(ctx, start, end, region)
	if err != nil {
		return nil, err
	}

	segments := route.segments()
	if len(segments) == 0 {
		return nil, &Error{Provider: NameWaze, Msg: "response contains no route segments"}
	}

	durationSec := 0
	distanceM := 0
	for _, seg := range segments {
		durationSec += seg.CrossTime
		distanceM += seg.Length
	}
	if durationSec < 0 || distanceM < 0 {
		return nil, &Error{Provider: NameWaze, Msg: "negative duration or distance in response"}
	}

	raw, _ := json.Marshal(map[string]int{
		"cross_time_sec": durationSec,
		"length_m":       distanceM,
		"segments":       len(segments),
	})

	return &ETA{DurationSec: durationSec, DistanceM: distanceM, Raw: string(raw)}, nil
}

// FetchRouteGeometry extracts segment path points in order, collapsing
// consecutive duplicates. An empty path yields the straight-line fallback.
func (w *Waze) FetchRouteGeometry(ctx context.Context, start, end Point, region string) ([]Point, error) {
	route, err := w.routingRequest(ctx, start, end, region)
	if err != nil {
		return nil, err
	}

	var points []Point
	for _, seg := range route.segments() {
		for _, p := range decodePath(seg.Path) {
			points = appendPoint(points, p)
		}
	}

	if len(points) == 0 {
		return FallbackLine(start, end), nil
	}
	return points, nil
}

func (r *wazeRoute) segments() []wazeSegment {
	if len(r.Results) > 0 {
		return r.Results
	}
	return r.Result
}

// decodePath handles both path shapes the live map emits: a single point
// object or a list of points. Waze uses x for longitude and y for latitude.
func decodePath(raw json.RawMessage) []Point {
	if len(raw) == 0 {
		return nil
	}

	type xy struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	}

	var one xy
	if err := json.Unmarshal(raw, &one); err == nil {
		return []Point{{Lat: one.Y, Lng: one.X}}
	}

	var many []xy
	if err := json.Unmarshal(raw, &many); err == nil {
		points := make([]Point, 0, len(many))
		for _, p := range many {
			points = append(points, Point{Lat: p.Y, Lng: p.X})
		}
		return points
	}

	return nil
}

func (w *Waze) routingRequest(ctx context.Context, start, end Point, region string) (*wazeRoute, error) {
	q := url.Values{}
	q.Set("from", fmt.Sprintf("x:%v y:%v", start.Lng, start.Lat))
	q.Set("to", fmt.Sprintf("x:%v y:%v", end.Lng, end.Lat))
	q.Set("at", "0")
	q.Set("returnJSON", "true")
	q.Set("returnGeometries", "true")
	q.Set("returnInstructions", "false")
	q.Set("timeout", "60000")
	q.Set("nPaths", "1")
	q.Set("options", "AVOID_TOLL_ROADS:t")

	reqURL := fmt.Sprintf("%s/%s?%s", w.baseURL, regionServer(region), q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &Error{Provider: NameWaze, Msg: "failed to create request", Err: err}
	}
	// The routing endpoint rejects requests without a browser-ish identity
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64)")
	req.Header.Set("Referer", w.baseURL+"/")

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, &Error{Provider: NameWaze, Msg: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{Provider: NameWaze, Msg: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Provider: NameWaze, Msg: "failed to read response", Err: err}
	}

	var parsed wazeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &Error{Provider: NameWaze, Msg: "malformed response", Err: err}
	}
	if parsed.Error != "" {
		return nil, &Error{Provider: NameWaze, Msg: parsed.Error}
	}

	route := parsed.Response
	if route == nil && len(parsed.Alternatives) > 0 {
		route = parsed.Alternatives[0].Response
	}
	if route == nil {
		return nil, &Error{Provider: NameWaze, Msg: "response contains no route"}
	}
	return route, nil
}
