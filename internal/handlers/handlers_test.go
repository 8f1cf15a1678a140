package handlers

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/IdoKimhi/route-analyzer/internal/config"
	"github.com/IdoKimhi/route-analyzer/internal/provider"
	"github.com/IdoKimhi/route-analyzer/internal/store"
)

// fakeGeometry is a geometry provider with a scripted outcome
type fakeGeometry struct {
	points []provider.Point
	err    error
}

func (f *fakeGeometry) Name() string { return "waze" }

func (f *fakeGeometry) FetchETA(ctx context.Context, start, end provider.Point, region string) (*provider.ETA, error) {
	return nil, &provider.Error{Provider: "waze", Msg: "not used in tests"}
}

func (f *fakeGeometry) FetchRouteGeometry(ctx context.Context, start, end provider.Point, region string) ([]provider.Point, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.points, nil
}

func testApp(t *testing.T, geometry provider.Client) (http.Handler, *store.DB) {
	t.Helper()

	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}

	cfg := &config.Config{
		SecretKey:   "test-secret",
		DatabaseURL: "unused",
		WazeRegion:  "IL",
	}
	router, err := NewRouter(cfg, db, geometry, []string{provider.NameWaze, provider.NameOSRM})
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	return router, db
}

func seedRoute(t *testing.T, db *store.DB) int64 {
	t.Helper()
	id, err := db.CreateRoute(context.Background(), store.Route{
		Name: "home -> office", Enabled: true,
		StartLat: 32.0853, StartLng: 34.7818,
		EndLat: 31.7683, EndLng: 35.2137,
		Region: "IL",
	})
	if err != nil {
		t.Fatalf("CreateRoute: %v", err)
	}
	return id
}

func postForm(t *testing.T, router http.Handler, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func get(t *testing.T, router http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	router, _ := testApp(t, &fakeGeometry{})

	rec := get(t, router, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad health body: %v", err)
	}
	if body["ok"] != true {
		t.Errorf("expected ok:true, got %v", body)
	}
}

func TestSetupRejectsOutOfRangeCoordinates(t *testing.T) {
	router, db := testApp(t, &fakeGeometry{})

	cases := []struct {
		name string
		form url.Values
	}{
		{"lat too big", url.Values{"start_lat": {"95"}, "start_lng": {"34.78"}, "end_lat": {"31.77"}, "end_lng": {"35.21"}}},
		{"lat too small", url.Values{"start_lat": {"32.08"}, "start_lng": {"34.78"}, "end_lat": {"-91"}, "end_lng": {"35.21"}}},
		{"lng too big", url.Values{"start_lat": {"32.08"}, "start_lng": {"181"}, "end_lat": {"31.77"}, "end_lng": {"35.21"}}},
		{"not a number", url.Values{"start_lat": {"abc"}, "start_lng": {"34.78"}, "end_lat": {"31.77"}, "end_lng": {"35.21"}}},
		{"missing field", url.Values{"start_lat": {"32.08"}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postForm(t, router, "/setup", tc.form)
			if rec.Code != http.StatusSeeOther {
				t.Errorf("expected redirect on bad input, got %d", rec.Code)
			}
			if !strings.Contains(rec.Header().Get("Set-Cookie"), flashCookie+"=") {
				t.Error("expected a flash cookie on validation failure")
			}
		})
	}

	routes, err := db.ListRoutes(context.Background())
	if err != nil {
		t.Fatalf("ListRoutes: %v", err)
	}
	if len(routes) != 0 {
		t.Errorf("invalid input created %d routes", len(routes))
	}
}

func TestSetupCreatesRouteWithDefaults(t *testing.T) {
	router, db := testApp(t, &fakeGeometry{})

	form := url.Values{
		"start_lat": {"32.0853"}, "start_lng": {"34.7818"},
		"end_lat": {"31.7683"}, "end_lng": {"35.2137"},
		"region":  {"eu"},
		"enabled": {"on"},
	}
	rec := postForm(t, router, "/setup", form)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect, got %d", rec.Code)
	}

	routes, err := db.ListRoutes(context.Background())
	if err != nil {
		t.Fatalf("ListRoutes: %v", err)
	}
	if len(routes) != 1 {
		t.Fatalf("expected 1 route, got %d", len(routes))
	}
	r := routes[0]
	if !r.Enabled {
		t.Error("route not enabled")
	}
	if r.Region != "EU" {
		t.Errorf("region not uppercased: %q", r.Region)
	}
	if r.Name == "" || !strings.Contains(r.Name, "->") {
		t.Errorf("blank name not defaulted: %q", r.Name)
	}
}

func TestToggleAndDeleteUnknownRoute(t *testing.T) {
	router, _ := testApp(t, &fakeGeometry{})

	for _, path := range []string{"/routes/999/toggle", "/routes/999/delete", "/routes/abc/toggle"} {
		rec := postForm(t, router, path, url.Values{})
		if rec.Code != http.StatusSeeOther {
			t.Errorf("%s: expected flash redirect, got %d", path, rec.Code)
		}
		if !strings.Contains(rec.Header().Get("Set-Cookie"), flashCookie+"=") {
			t.Errorf("%s: expected a flash cookie", path)
		}
	}
}

func TestAPIRoutes(t *testing.T) {
	router, db := testApp(t, &fakeGeometry{})
	id := seedRoute(t, db)

	rec := get(t, router, "/api/routes")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var routes []routeJSON
	if err := json.Unmarshal(rec.Body.Bytes(), &routes); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if len(routes) != 1 {
		t.Fatalf("expected 1 route, got %d", len(routes))
	}
	r := routes[0]
	if r.ID != id || !r.Enabled || r.Region != "IL" {
		t.Errorf("unexpected route: %+v", r)
	}
	if len(r.Start) != 2 || r.Start[0] != 32.0853 || r.Start[1] != 34.7818 {
		t.Errorf("unexpected start pair: %v", r.Start)
	}
}

func TestRoutePathFallbackOnProviderFailure(t *testing.T) {
	geo := &fakeGeometry{err: &provider.Error{Provider: "waze", Msg: "upstream down"}}
	router, db := testApp(t, geo)
	id := seedRoute(t, db)

	rec := get(t, router, "/api/routes/"+itoa(id)+"/path")
	if rec.Code != http.StatusOK {
		t.Fatalf("geometry failure must not fail the request: status %d", rec.Code)
	}

	var body struct {
		Points  [][]float64 `json:"points"`
		Warning string      `json:"warning"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if len(body.Points) != 2 {
		t.Errorf("expected two-point fallback line, got %v", body.Points)
	}
	if body.Warning == "" {
		t.Error("expected a warning field on fallback")
	}
	if body.Points[0][0] != 32.0853 || body.Points[1][0] != 31.7683 {
		t.Errorf("fallback line endpoints wrong: %v", body.Points)
	}
}

func TestRoutePathUnknownRoute(t *testing.T) {
	router, _ := testApp(t, &fakeGeometry{})

	rec := get(t, router, "/api/routes/999/path")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown route, got %d", rec.Code)
	}
}

func TestAPISamples(t *testing.T) {
	router, db := testApp(t, &fakeGeometry{})
	id := seedRoute(t, db)

	now := time.Now().UTC()
	duration := 630  // rounds to 11 min
	distance := 9876 // 9.88 km
	msg := "timeout"

	inWindow := store.Sample{
		TS: now.Add(-time.Hour), CycleID: "c1", RouteID: id,
		Provider: "waze", Status: store.StatusOK,
		DurationSec: &duration, DistanceM: &distance,
	}
	failed := store.Sample{
		TS: now.Add(-30 * time.Minute), CycleID: "c2", RouteID: id,
		Provider: "osrm", Status: store.StatusError, Error: &msg,
	}
	old := store.Sample{
		TS: now.Add(-200 * time.Hour), CycleID: "c0", RouteID: id,
		Provider: "waze", Status: store.StatusOK,
		DurationSec: &duration, DistanceM: &distance,
	}
	if err := db.AppendSamples(context.Background(), []store.Sample{inWindow, failed, old}); err != nil {
		t.Fatalf("AppendSamples: %v", err)
	}

	rec := get(t, router, "/api/samples?hours=168")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var items []sampleJSON
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 samples in window, got %d", len(items))
	}

	ok := items[0]
	if ok.Status != "ok" || ok.DurationMin == nil || *ok.DurationMin != 11 {
		t.Errorf("duration_min rounding wrong: %+v", ok)
	}
	if ok.DistanceKm == nil || *ok.DistanceKm != 9.88 {
		t.Errorf("distance_km rounding wrong: %+v", ok)
	}
	if _, err := time.Parse(time.RFC3339, ok.TS); err != nil {
		t.Errorf("ts not RFC3339: %q", ok.TS)
	}

	bad := items[1]
	if bad.Status != "error" || bad.Error == nil || *bad.Error != "timeout" {
		t.Errorf("error sample wrong: %+v", bad)
	}
	if bad.DurationMin != nil || bad.DistanceKm != nil {
		t.Errorf("error sample carries numbers: %+v", bad)
	}

	// Provider filter
	rec = get(t, router, "/api/samples?hours=168&provider=osrm")
	items = nil
	json.Unmarshal(rec.Body.Bytes(), &items)
	if len(items) != 1 || items[0].Provider != "osrm" {
		t.Errorf("provider filter mismatch: %+v", items)
	}
}

func TestDownloadCSVRoundTrip(t *testing.T) {
	router, db := testApp(t, &fakeGeometry{})
	id := seedRoute(t, db)

	now := time.Now().UTC().Truncate(time.Second)
	duration := 600
	distance := 9000
	msg := "no route"

	batch := []store.Sample{
		{TS: now.Add(-2 * time.Hour), CycleID: "c1", RouteID: id, Provider: "waze",
			Status: store.StatusOK, DurationSec: &duration, DistanceM: &distance},
		{TS: now.Add(-time.Hour), CycleID: "c2", RouteID: id, Provider: "osrm",
			Status: store.StatusError, Error: &msg},
	}
	if err := db.AppendSamples(context.Background(), batch); err != nil {
		t.Fatalf("AppendSamples: %v", err)
	}

	rec := get(t, router, "/download?hours=168")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("content type = %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "samples_last_168h.csv") {
		t.Errorf("content disposition = %q", cd)
	}

	rows, err := csv.NewReader(rec.Body).ReadAll()
	if err != nil {
		t.Fatalf("bad csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(rows))
	}

	header := []string{"ts_utc", "route_id", "provider", "status", "duration_sec", "distance_m", "error"}
	for i, col := range header {
		if rows[0][i] != col {
			t.Errorf("header[%d] = %q, expected %q", i, rows[0][i], col)
		}
	}

	okRow := rows[1]
	if okRow[0] != batch[0].TS.Format(time.RFC3339) || okRow[1] != itoa(id) ||
		okRow[2] != "waze" || okRow[3] != "ok" || okRow[4] != "600" || okRow[5] != "9000" || okRow[6] != "" {
		t.Errorf("ok row mismatch: %v", okRow)
	}

	errRow := rows[2]
	if errRow[2] != "osrm" || errRow[3] != "error" || errRow[4] != "" || errRow[5] != "" || errRow[6] != "no route" {
		t.Errorf("error row mismatch: %v", errRow)
	}
}

func TestHomeAndSetupPagesRender(t *testing.T) {
	router, db := testApp(t, &fakeGeometry{})
	seedRoute(t, db)

	for _, path := range []string{"/", "/setup"} {
		rec := get(t, router, path)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status %d", path, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "home -&gt; office") &&
			!strings.Contains(rec.Body.String(), "home -> office") {
			t.Errorf("%s: seeded route not rendered", path)
		}
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
