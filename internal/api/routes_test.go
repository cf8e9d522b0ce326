package api

import (
	"context"
	"encoding/json"
	"lrtp-viewer/internal/layers"
	"lrtp-viewer/internal/report"
	"lrtp-viewer/internal/search"
	"lrtp-viewer/internal/session"
	"lrtp-viewer/internal/wfs"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	geojson "github.com/paulmach/go.geojson"
)

type catalogFetcher struct {
	cat  *layers.Catalog
	data map[string][]map[string]any
}

func (f *catalogFetcher) GetFeatures(_ context.Context, q wfs.Query) ([]*geojson.Feature, error) {
	for alias, rows := range f.data {
		if f.cat.TypeName(alias) != q.TypeName {
			continue
		}
		var out []*geojson.Feature
		for _, p := range rows {
			ft := geojson.NewPointFeature([]float64{1, 2})
			ft.Properties = p
			out = append(out, ft)
		}
		return out, nil
	}
	return nil, nil
}

type fixture struct {
	srv *httptest.Server
	mgr *session.Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cat, err := layers.Default()
	if err != nil {
		t.Fatal(err)
	}
	f := &catalogFetcher{cat: cat, data: map[string][]map[string]any{
		"airports":       {{"town": "Bedford", "airport_name": "Hanscom"}},
		"park_ride_lots": {{"town": "Quincy"}},
		"seaports":       {{"term_name": "Long Wharf", "passenger": "Yes", "mpo": "Boston Region"}},
		"bikes_table":    {{"local_name": "Minuteman", "sum_len_miles": 10.0}},
		"bus_routes":     {{"ctps_route_text": "7", "route_name": "City Point"}},
	}}
	mgr, err := session.NewManager(context.Background(), session.Deps{Catalog: cat, Fetcher: f, Root: "http://gs"}, 8, 0)
	if err != nil {
		t.Fatal(err)
	}
	mux := BuildRoutes(Deps{Sessions: mgr, Catalog: cat, Search: search.New(f, cat)})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, mgr: mgr}
}

func (fx *fixture) do(t *testing.T, method, path string, out any) int {
	t.Helper()
	req, err := http.NewRequest(method, fx.srv.URL+path, nil)
	if err != nil {
		t.Fatal(err)
	}
	c := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	resp, err := c.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil {
		_ = json.NewDecoder(resp.Body).Decode(out)
	}
	return resp.StatusCode
}

func (fx *fixture) newSession(t *testing.T) string {
	t.Helper()
	var created struct{ ID string }
	if code := fx.do(t, http.MethodPost, "/sessions", &created); code != http.StatusCreated || created.ID == "" {
		t.Fatalf("create session code=%d id=%q", code, created.ID)
	}
	return created.ID
}

func TestLayerLegendFlow(t *testing.T) {
	fx := newFixture(t)
	id := fx.newSession(t)

	var shown struct {
		Slots []struct {
			Index    int
			Category string
			Header   string
		}
	}
	if code := fx.do(t, http.MethodPost, "/sessions/"+id+"/layers/2010pop", &shown); code != http.StatusOK {
		t.Fatalf("show code=%d", code)
	}
	if len(shown.Slots) != 1 || shown.Slots[0].Index != 1 || shown.Slots[0].Category != "demographic" {
		t.Fatalf("slots %+v", shown.Slots)
	}
	if code := fx.do(t, http.MethodPost, "/sessions/"+id+"/layers/CR", nil); code != http.StatusOK {
		t.Fatalf("show CR code=%d", code)
	}

	var reg struct {
		Registry map[string]int
		Max      int
	}
	fx.do(t, http.MethodGet, "/sessions/"+id+"/legends", &reg)
	if reg.Max != 5 || reg.Registry["demographic"] != 1 || reg.Registry["infrastructure"] != 2 || reg.Registry["truck"] != 0 {
		t.Fatalf("registry %+v", reg)
	}

	var cleared struct{ Removed bool }
	fx.do(t, http.MethodDelete, "/sessions/"+id+"/layers/demographic", &cleared)
	if !cleared.Removed {
		t.Fatal("expected removal")
	}
	fx.do(t, http.MethodGet, "/sessions/"+id+"/legends", &reg)
	if reg.Registry["infrastructure"] != 1 {
		t.Fatalf("infrastructure must shift down: %+v", reg.Registry)
	}

	if code := fx.do(t, http.MethodPost, "/sessions/"+id+"/layers/bogus", nil); code != http.StatusBadRequest {
		t.Fatalf("unknown item code=%d", code)
	}
	if code := fx.do(t, http.MethodDelete, "/sessions/"+id+"/layers/weather", nil); code != http.StatusBadRequest {
		t.Fatalf("unknown category code=%d", code)
	}
	if code := fx.do(t, http.MethodDelete, "/sessions/"+id+"/layers/all", nil); code != http.StatusOK {
		t.Fatalf("clear all code=%d", code)
	}
}

func TestUnknownSession(t *testing.T) {
	fx := newFixture(t)
	if code := fx.do(t, http.MethodGet, "/sessions/0b6d1d1e-0000-4000-8000-000000000000/legends", nil); code != http.StatusNotFound {
		t.Fatalf("code=%d", code)
	}
	if code := fx.do(t, http.MethodDelete, "/sessions/nope", nil); code != http.StatusNotFound {
		t.Fatalf("code=%d", code)
	}
}

func TestRegionwideReportAndExport(t *testing.T) {
	fx := newFixture(t)
	id := fx.newSession(t)

	if code := fx.do(t, http.MethodGet, "/sessions/"+id+"/export?tab=Airports", nil); code != http.StatusFound {
		t.Fatalf("unfiltered export code=%d", code)
	}
	if code := fx.do(t, http.MethodGet, "/sessions/"+id+"/export?tab=Population", nil); code != http.StatusConflict {
		t.Fatalf("town export without town report code=%d", code)
	}

	var started struct{ Generation uint64 }
	if code := fx.do(t, http.MethodPost, "/sessions/"+id+"/reports/regionwide", &started); code != http.StatusAccepted || started.Generation == 0 {
		t.Fatalf("start code=%d gen=%d", code, started.Generation)
	}
	sc, err := fx.mgr.Get(id)
	if err != nil {
		t.Fatal(err)
	}
	sc.Wait()

	var view report.View
	fx.do(t, http.MethodGet, "/sessions/"+id+"/report", &view)
	if view.Kind != report.KindRegionwide || len(view.Sections) != 4 || view.Running {
		t.Fatalf("view kind=%s sections=%d running=%v", view.Kind, len(view.Sections), view.Running)
	}
	if view.Sections[0].Caption != "Airports in the Boston Region" {
		t.Fatalf("caption %q", view.Sections[0].Caption)
	}

	if code := fx.do(t, http.MethodPost, "/sessions/"+id+"/reports/weather", nil); code != http.StatusBadRequest {
		t.Fatalf("bad kind code=%d", code)
	}
	if code := fx.do(t, http.MethodPost, "/sessions/"+id+"/reports/corridor", nil); code != http.StatusBadRequest {
		t.Fatalf("corridor without name code=%d", code)
	}
	if code := fx.do(t, http.MethodDelete, "/sessions/"+id+"/report", nil); code != http.StatusNoContent {
		t.Fatalf("clear code=%d", code)
	}
}

func TestCorridorReportLabel(t *testing.T) {
	fx := newFixture(t)
	id := fx.newSession(t)
	if code := fx.do(t, http.MethodPost, "/sessions/"+id+"/reports/corridor?name=South&label=Southeast+Expressway", nil); code != http.StatusAccepted {
		t.Fatalf("start code=%d", code)
	}
	sc, err := fx.mgr.Get(id)
	if err != nil {
		t.Fatal(err)
	}
	sc.Wait()
	var view report.View
	fx.do(t, http.MethodGet, "/sessions/"+id+"/report", &view)
	if view.Criterion.Label != "Southeast Expressway" || view.Criterion.Filter != "(plan2035_radial_corr='South')" {
		t.Fatalf("criterion %+v", view.Criterion)
	}
}

func TestExportRedirectLocation(t *testing.T) {
	fx := newFixture(t)
	id := fx.newSession(t)
	req, _ := http.NewRequest(http.MethodGet, fx.srv.URL+"/sessions/"+id+"/export?tab=Boat+Docks", nil)
	c := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	resp, err := c.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	loc := resp.Header.Get("Location")
	if !strings.HasPrefix(loc, "http://gs/wfs?request=getfeature") || !strings.Contains(loc, "CQL_filter=") {
		t.Fatalf("location %s", loc)
	}
}

func TestSearchEndpoints(t *testing.T) {
	fx := newFixture(t)
	var corr search.Corridor
	if code := fx.do(t, http.MethodGet, "/corridors/Region", &corr); code != http.StatusOK || corr.Extent != search.RegionExtent {
		t.Fatalf("code=%d corridor %+v", code, corr)
	}
	if code := fx.do(t, http.MethodGet, "/towns/Atlantis", nil); code != http.StatusNotFound {
		t.Fatalf("town code=%d", code)
	}
	var routes []search.Route
	if code := fx.do(t, http.MethodGet, "/bus-routes", &routes); code != http.StatusOK || len(routes) != 1 || routes[0].Label != "7, City Point" {
		t.Fatalf("code=%d routes %+v", code, routes)
	}
	if code := fx.do(t, http.MethodGet, "/taz/abc", nil); code != http.StatusBadRequest {
		t.Fatalf("taz code=%d", code)
	}
}

func TestCatalogHealthRunsStats(t *testing.T) {
	fx := newFixture(t)
	var cat struct {
		Items []layers.Item
		Tabs  []string
	}
	if code := fx.do(t, http.MethodGet, "/catalog?category=crash", &cat); code != http.StatusOK || len(cat.Items) != 3 || len(cat.Tabs) != 12 {
		t.Fatalf("code=%d items=%d tabs=%d", code, len(cat.Items), len(cat.Tabs))
	}
	if code := fx.do(t, http.MethodGet, "/health", nil); code != http.StatusOK {
		t.Fatalf("health code=%d", code)
	}
	if code := fx.do(t, http.MethodGet, "/runs", nil); code != http.StatusServiceUnavailable {
		t.Fatalf("runs code=%d", code)
	}
	var stats map[string]any
	if code := fx.do(t, http.MethodGet, "/stats", &stats); code != http.StatusOK || stats["sessions"] != 0.0 {
		t.Fatalf("stats code=%d %v", code, stats)
	}
}
