package search

import (
	"context"
	"errors"
	"lrtp-viewer/internal/wfs"
	"testing"

	geojson "github.com/paulmach/go.geojson"
)

type namer struct{}

func (namer) TypeName(a string) string { return "postgis:" + a }

type stubFetcher struct {
	fs   []*geojson.Feature
	err  error
	last wfs.Query
	n    int
}

func (s *stubFetcher) GetFeatures(_ context.Context, q wfs.Query) ([]*geojson.Feature, error) {
	s.last = q
	s.n++
	return s.fs, s.err
}

func point(x, y float64, p map[string]any) *geojson.Feature {
	f := geojson.NewPointFeature([]float64{x, y})
	f.Properties = p
	return f
}

func TestTown(t *testing.T) {
	f := &stubFetcher{fs: []*geojson.Feature{point(10, 20, map[string]any{"town_id": 35.0, "town": "BOSTON"})}}
	s := New(f, namer{})
	got, err := s.Town(context.Background(), " Boston ")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != 35 || got.Name != "BOSTON" || got.Extent != (wfs.Extent{10, 20, 10, 20}) {
		t.Fatalf("got %+v", got)
	}
	if f.last.TypeName != "postgis:towns_layer" || f.last.Filter != "(town=='BOSTON')" {
		t.Fatalf("query %+v", f.last)
	}

	f.fs = nil
	if _, err := s.Town(context.Background(), "Atlantis"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v", err)
	}
}

func TestCorridorRegionSkipsFetch(t *testing.T) {
	f := &stubFetcher{}
	c, err := New(f, namer{}).Corridor(context.Background(), "Region")
	if err != nil {
		t.Fatal(err)
	}
	if f.n != 0 || c.Extent != RegionExtent {
		t.Fatalf("fetches=%d extent=%v", f.n, c.Extent)
	}
}

func TestCorridorCoreAndNamed(t *testing.T) {
	f := &stubFetcher{fs: []*geojson.Feature{point(1, 1, nil)}}
	s := New(f, namer{})
	c, err := s.Corridor(context.Background(), "Core")
	if err != nil {
		t.Fatal(err)
	}
	if c.TypeName != "postgis:central_corr" || c.Style != "Dest2040_corridor_Central" || f.last.Filter != "(circumferential_corridor=='CEN')" {
		t.Fatalf("core %+v / %+v", c, f.last)
	}
	if c.Criterion.Filter != "(circumferential_corridor in ('BOS','CEN'))" {
		t.Fatalf("criterion %s", c.Criterion.Filter)
	}
	c, err = s.Corridor(context.Background(), "North")
	if err != nil {
		t.Fatal(err)
	}
	if c.Style != "Dest2040_corridor_North" || f.last.Filter != "(corridor=='North')" {
		t.Fatalf("named %+v / %+v", c, f.last)
	}

	f.fs = append(f.fs, point(2, 2, nil))
	if _, err := s.Corridor(context.Background(), "North"); !errors.Is(err, ErrAmbiguous) {
		t.Fatalf("err=%v", err)
	}
}

func TestBusRoutesSortedNumerically(t *testing.T) {
	f := &stubFetcher{fs: []*geojson.Feature{
		point(0, 0, map[string]any{"ctps_route_text": "111", "route_name": "Woodlawn"}),
		point(0, 0, map[string]any{"ctps_route_text": "SL1", "route_name": "Silver"}),
		point(0, 0, map[string]any{"ctps_route_text": "7", "route_name": "City Point"}),
		point(0, 0, map[string]any{"ctps_route_text": "23", "route_name": "Ashmont"}),
	}}
	rs, err := New(f, namer{}).BusRoutes(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"7", "23", "111", "SL1"}
	for i, r := range rs {
		if r.Route != want[i] {
			t.Fatalf("order %v", rs)
		}
	}
	if rs[0].Label != "7, City Point" || f.last.Filter != "direction=0" {
		t.Fatalf("label %q filter %q", rs[0].Label, f.last.Filter)
	}
}

func TestBusRouteAcceptsLabel(t *testing.T) {
	f := &stubFetcher{fs: []*geojson.Feature{
		point(1, 2, map[string]any{"ctps_route_text": "7", "route_name": "City Point"}),
		point(3, 4, map[string]any{"ctps_route_text": "7", "route_name": "City Point"}),
	}}
	r, ext, err := New(f, namer{}).BusRoute(context.Background(), "7, City Point")
	if err != nil {
		t.Fatal(err)
	}
	if f.last.Filter != "(ctps_route=='7')" || r.Name != "City Point" || ext != (wfs.Extent{1, 2, 3, 4}) {
		t.Fatalf("route %+v ext %v filter %s", r, ext, f.last.Filter)
	}
	f.fs = nil
	if _, _, err := New(f, namer{}).BusRoute(context.Background(), "999"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v", err)
	}
}

func TestTAZ(t *testing.T) {
	f := &stubFetcher{fs: []*geojson.Feature{point(5, 5, map[string]any{"taz": 120.0, "town": "QUINCY"})}}
	s := New(f, namer{})
	z, err := s.TAZ(context.Background(), 120)
	if err != nil || z.ID != 120 || z.Town != "QUINCY" {
		t.Fatalf("taz %+v err %v", z, err)
	}
	f.fs = append(f.fs, point(6, 6, nil))
	if _, err := s.TAZ(context.Background(), 120); !errors.Is(err, ErrAmbiguous) {
		t.Fatalf("err=%v", err)
	}
}

func TestTAZAtUsesBBox(t *testing.T) {
	f := &stubFetcher{fs: []*geojson.Feature{point(5, 5, map[string]any{"taz": 9.0})}}
	z, err := New(f, namer{}).TAZAt(context.Background(), 100, 200, 2)
	if err != nil || z.ID != 9 {
		t.Fatalf("taz %+v err %v", z, err)
	}
	if f.last.BBox != "98,198,102,202,EPSG:26986" || f.last.Filter != "" {
		t.Fatalf("query %+v", f.last)
	}
	f.fs = nil
	if _, err := New(f, namer{}).TAZAt(context.Background(), 0, 0, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v", err)
	}
}

func TestFetchErrorPassesThrough(t *testing.T) {
	boom := errors.New("boom")
	f := &stubFetcher{err: boom}
	if _, err := New(f, namer{}).Town(context.Background(), "x"); !errors.Is(err, boom) {
		t.Fatalf("err=%v", err)
	}
}
