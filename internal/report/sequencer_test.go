package report

import (
	"context"
	"errors"
	"lrtp-viewer/internal/wfs"
	"strings"
	"sync"
	"testing"

	geojson "github.com/paulmach/go.geojson"
)

type aliasNamer struct{}

func (aliasNamer) TypeName(alias string) string { return "postgis:" + alias }

type fakeFetcher struct {
	mu      sync.Mutex
	byType  map[string][]map[string]any
	errs    map[string]error
	queries []wfs.Query
	hook    func(q wfs.Query)
}

func (f *fakeFetcher) GetFeatures(_ context.Context, q wfs.Query) ([]*geojson.Feature, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	hook := f.hook
	f.mu.Unlock()
	if hook != nil {
		hook(q)
	}
	if err := f.errs[q.TypeName]; err != nil {
		return nil, err
	}
	var out []*geojson.Feature
	for _, p := range f.byType[q.TypeName] {
		ft := geojson.NewPointFeature([]float64{0, 0})
		ft.Properties = p
		out = append(out, ft)
	}
	return out, nil
}

type memRecorder struct {
	runs []Result
}

func (m *memRecorder) RecordRun(_ context.Context, r Result) error {
	m.runs = append(m.runs, r)
	return nil
}

func corridorData() map[string][]map[string]any {
	return map[string][]map[string]any{
		"postgis:crash_layer_poly": {
			{"epdo": 30.0, "towns": "Quincy", "l1street": "A", "l2street": "B", "crashcount": 1234.0},
			{"epdo": 10.0, "towns": "Milton", "l1street": "C", "l2street": "D", "crashcount": 5.0},
			{"epdo": 20.0, "towns": "Braintree", "l1street": "E", "l2street": "F", "crashcount": 7.0},
		},
		"postgis:VOC_table":     {{"data_key": 2.0, "roadway": "I-93"}, {"data_key": 1.0, "roadway": "Rt 3"}},
		"postgis:spd_idx_table": {{"peakperiod": "PM", "route": "I-93"}, {"peakperiod": "AM", "route": "Rt 3"}},
		"postgis:tt_table":      {{"peakperiod": "AM", "traveltimeindex": 1.4}},
		"postgis:CR_stns":       {{"station": "Quincy Center"}, {"station": "Braintree"}},
	}
}

func TestCorridorRunsAllStagesInOrder(t *testing.T) {
	f := &fakeFetcher{byType: corridorData()}
	rec := &memRecorder{}
	b := NewBoard()
	c := CorridorCriterion("South", "")
	tk := b.Begin(KindCorridor, c)
	res := NewSequencer(f, rec).Run(context.Background(), Corridor(aliasNamer{}), c, tk, tk)
	tk.Finish(res)

	if res.Outcome != OutcomeCompleted || res.HaltedAt() != "" {
		t.Fatalf("outcome=%s halted=%s", res.Outcome, res.HaltedAt())
	}
	want := []string{"crash_layer_poly", "VOC_table", "spd_idx_table", "tt_table", "CR_stns"}
	if len(f.queries) != len(want) {
		t.Fatalf("queries=%d", len(f.queries))
	}
	for i, q := range f.queries {
		if q.TypeName != "postgis:"+want[i] {
			t.Fatalf("stage %d typename=%s", i, q.TypeName)
		}
		if q.Filter != "(plan2035_radial_corr='South')" {
			t.Fatalf("stage %d filter=%s", i, q.Filter)
		}
	}
	v := b.Snapshot()
	if len(v.Sections) != 5 || len(v.Notices) != 0 || v.Running {
		t.Fatalf("view sections=%d notices=%d running=%v", len(v.Sections), len(v.Notices), v.Running)
	}
	crash := v.Sections[0]
	if crash.ID != "crash_grid" || crash.Caption != "Top 5 Percent Crashes for: South Region, Ranked by EPDO Value" {
		t.Fatalf("crash section %+v", crash)
	}
	var epdo []float64
	for _, r := range crash.Rows {
		epdo = append(epdo, r["EPDO"].(float64))
	}
	if epdo[0] != 10 || epdo[1] != 20 || epdo[2] != 30 {
		t.Fatalf("epdo order %v", epdo)
	}
	if crash.Rows[2]["TOTAL_CRASHES"] != "1,234" {
		t.Fatalf("grouped crashcount %v", crash.Rows[2]["TOTAL_CRASHES"])
	}
	if v.Sections[1].Rows[0]["ROADWAY"] != "Rt 3" {
		t.Fatalf("voc not sorted by index")
	}
	if v.Sections[2].Rows[0]["PEAKPERIOD"] != "AM" {
		t.Fatalf("speed index not sorted by period")
	}
	if v.Sections[4].Rows[0]["STATION"] != "Braintree" {
		t.Fatalf("stations not sorted")
	}
	if len(rec.runs) != 1 || len(rec.runs[0].Stages) != 5 {
		t.Fatalf("recorded %+v", rec.runs)
	}
	if v.Result == nil || v.Result.Outcome != OutcomeCompleted {
		t.Fatalf("board result %+v", v.Result)
	}
}

func TestEmptyStageHaltsWithNotice(t *testing.T) {
	data := corridorData()
	delete(data, "postgis:VOC_table")
	f := &fakeFetcher{byType: data}
	b := NewBoard()
	c := CorridorCriterion("Core", "Central")
	tk := b.Begin(KindCorridor, c)
	res := NewSequencer(f, nil).Run(context.Background(), Corridor(aliasNamer{}), c, tk, tk)

	if res.Outcome != OutcomeEmpty || res.HaltedAt() != "voc" {
		t.Fatalf("outcome=%s halted=%s", res.Outcome, res.HaltedAt())
	}
	if len(f.queries) != 2 {
		t.Fatalf("later stages must not run, queries=%d", len(f.queries))
	}
	v := b.Snapshot()
	if len(v.Sections) != 1 || len(v.Notices) != 1 {
		t.Fatalf("sections=%d notices=%d", len(v.Sections), len(v.Notices))
	}
	if v.Notices[0].Text != DefaultEmptyNotice || v.Notices[0].Kind != NoticeEmpty {
		t.Fatalf("notice %+v", v.Notices[0])
	}
	if f.queries[0].Filter != "(circumferential_corridor in ('BOS','CEN'))" {
		t.Fatalf("core filter %s", f.queries[0].Filter)
	}
}

func TestFetchErrorHaltsWithStatusNotice(t *testing.T) {
	data := corridorData()
	f := &fakeFetcher{byType: data, errs: map[string]error{
		"postgis:spd_idx_table": &wfs.FetchError{Op: "getfeature", TypeName: "postgis:spd_idx_table", Status: "500 Internal Server Error", Err: wfs.ErrBadStatus},
	}}
	b := NewBoard()
	c := CorridorCriterion("North", "")
	tk := b.Begin(KindCorridor, c)
	res := NewSequencer(f, nil).Run(context.Background(), Corridor(aliasNamer{}), c, tk, tk)
	if res.Outcome != OutcomeFailed || res.HaltedAt() != "speed_index" {
		t.Fatalf("outcome=%s halted=%s", res.Outcome, res.HaltedAt())
	}
	v := b.Snapshot()
	if len(v.Sections) != 2 || len(v.Notices) != 1 {
		t.Fatalf("sections=%d notices=%d", len(v.Sections), len(v.Notices))
	}
	txt := v.Notices[0].Text
	if !strings.HasPrefix(txt, "WFS request to get speed index data failed.\nStatus: 500 Internal Server Error\nError: ") {
		t.Fatalf("notice text %q", txt)
	}
}

func TestFailureTextPlainError(t *testing.T) {
	got := FailureText(Stage{Subject: "VOC data"}, errors.New("boom"))
	if got != "WFS request to get VOC data failed.\nStatus: error\nError: boom" {
		t.Fatalf("got %q", got)
	}
}

func TestSupersededRunStopsAndDropsWrites(t *testing.T) {
	b := NewBoard()
	c := CorridorCriterion("West", "")
	var second *Ticket
	f := &fakeFetcher{byType: corridorData()}
	f.hook = func(q wfs.Query) {
		if q.TypeName == "postgis:VOC_table" && second == nil {
			second = b.Begin(KindRegionwide, Criterion{})
		}
	}
	tk := b.Begin(KindCorridor, c)
	res := NewSequencer(f, nil).Run(context.Background(), Corridor(aliasNamer{}), c, tk, tk)
	tk.Finish(res)

	if res.Outcome != OutcomeCancelled {
		t.Fatalf("outcome=%s", res.Outcome)
	}
	if len(f.queries) != 2 {
		t.Fatalf("queries=%d", len(f.queries))
	}
	v := b.Snapshot()
	if v.Kind != KindRegionwide || len(v.Sections) != 0 || v.Result != nil || !v.Running {
		t.Fatalf("stale run leaked into board: %+v", v)
	}
	if !tk.Superseded() || second.Superseded() {
		t.Fatalf("ticket states")
	}
}

func TestCancelledContextStopsBeforeFirstStage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := &fakeFetcher{byType: corridorData()}
	b := NewBoard()
	tk := b.Begin(KindRegionwide, Criterion{})
	res := NewSequencer(f, nil).Run(ctx, Regionwide(aliasNamer{}), Criterion{}, tk, tk)
	if res.Outcome != OutcomeCancelled || len(f.queries) != 0 {
		t.Fatalf("outcome=%s queries=%d", res.Outcome, len(f.queries))
	}
}

func TestRegionwideUnfilteredAndDocks(t *testing.T) {
	f := &fakeFetcher{byType: map[string][]map[string]any{
		"postgis:airports":       {{"town": "Norwood", "airport_name": "Norwood Memorial"}, {"town": "Bedford", "airport_name": "Hanscom"}},
		"postgis:park_ride_lots": {{"town": "Quincy", "capacity": "100", "bus_servic": "Yes"}},
		"postgis:seaports": {
			{"term_name": "Long Wharf", "town": "Boston", "passenger": "Yes", "mpo": "Boston Region"},
			{"term_name": "Freight", "town": "Boston", "passenger": "No", "mpo": "Boston Region"},
			{"term_name": "Far Away", "town": "Salem", "passenger": "Yes", "mpo": "Other"},
		},
		"postgis:bikes_table": {{"local_name": "Minuteman", "sum_len_miles": 10.237}},
	}}
	b := NewBoard()
	tk := b.Begin(KindRegionwide, Criterion{Filter: "ignored"})
	res := NewSequencer(f, nil).Run(context.Background(), Regionwide(aliasNamer{}), Criterion{Filter: "ignored"}, tk, tk)
	if res.Outcome != OutcomeCompleted {
		t.Fatalf("outcome=%s", res.Outcome)
	}
	for _, q := range f.queries {
		if q.Filter != "" {
			t.Fatalf("regionwide stage %s carried filter %q", q.TypeName, q.Filter)
		}
	}
	v := b.Snapshot()
	if v.Sections[0].Rows[0]["TOWN"] != "Bedford" {
		t.Fatalf("airports not sorted")
	}
	docks := v.Sections[2]
	if docks.ID != "boatdocks_grid" || len(docks.Rows) != 1 || docks.Rows[0]["TERM_NAME"] != "Long Wharf" {
		t.Fatalf("docks %+v", docks.Rows)
	}
	if v.Sections[3].Rows[0]["LENGTH"] != 10.24 {
		t.Fatalf("bike length %v", v.Sections[3].Rows[0]["LENGTH"])
	}
}

func TestTownStageBuildsThreeSections(t *testing.T) {
	f := &fakeFetcher{byType: map[string][]map[string]any{
		"postgis:taz2727": {
			{"taz": 120.0, "total_pop_2010": 4500.4, "pop_u18_pct_2010": 0.2351, "total_emp_2010": 1200.0, "census_hh_2010": 1800.0},
			{"taz": 7.0, "total_pop_2010": 12.0},
		},
	}}
	b := NewBoard()
	c := TownCriterion(35, "BOSTON")
	tk := b.Begin(KindTown, c)
	res := NewSequencer(f, nil).Run(context.Background(), Town(aliasNamer{}), c, tk, tk)
	if res.Outcome != OutcomeCompleted {
		t.Fatalf("outcome=%s", res.Outcome)
	}
	if f.queries[0].Filter != "(town_id==35)" {
		t.Fatalf("filter %s", f.queries[0].Filter)
	}
	v := b.Snapshot()
	ids := []string{"pop_grid", "emp_grid", "hh_grid"}
	if len(v.Sections) != 3 {
		t.Fatalf("sections=%d", len(v.Sections))
	}
	for i, s := range v.Sections {
		if s.ID != ids[i] {
			t.Fatalf("section %d id %s", i, s.ID)
		}
		if s.Rows[0]["TAZ"] != 7.0 {
			t.Fatalf("section %s not sorted by TAZ", s.ID)
		}
	}
	pop := v.Sections[0].Rows[1]
	if pop["POP_2010"] != "4,500" || pop["PCT_UNDER_18"] != "23.5" || pop["TOWN"] != "Boston" {
		t.Fatalf("pop row %+v", pop)
	}
	if v.Sections[0].Caption != "Population data by TAZ for Boston" {
		t.Fatalf("caption %q", v.Sections[0].Caption)
	}
	row, ok := b.FindRow("", "TAZ", 120)
	if !ok || row["POP_2010"] != "4,500" {
		t.Fatalf("FindRow %v %v", row, ok)
	}
	if _, ok := b.FindRow("", "TAZ", 12); ok {
		t.Fatalf("FindRow must be exact")
	}
}

func TestTownEmptyNotice(t *testing.T) {
	f := &fakeFetcher{}
	b := NewBoard()
	tk := b.Begin(KindTown, TownCriterion(999, "NOWHERE"))
	NewSequencer(f, nil).Run(context.Background(), Town(aliasNamer{}), TownCriterion(999, "NOWHERE"), tk, tk)
	v := b.Snapshot()
	if len(v.Notices) != 1 || v.Notices[0].Text != "No features found, possibly because town outside Plan area" {
		t.Fatalf("notices %+v", v.Notices)
	}
}

func TestByKind(t *testing.T) {
	for _, k := range []string{KindCorridor, KindRegionwide, KindTown} {
		p, err := ByKind(k, aliasNamer{})
		if err != nil || p.Kind != k {
			t.Fatalf("%s: %v", k, err)
		}
	}
	if _, err := ByKind("bogus", aliasNamer{}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestHaltStopsLaterFetches(t *testing.T) {
	cases := []struct {
		name     string
		mutate   func(f *fakeFetcher)
		outcome  Outcome
		halted   string
		queries  int
		sections int
		notice   NoticeKind
	}{
		{
			name:     "first stage empty",
			mutate:   func(f *fakeFetcher) { delete(f.byType, "postgis:crash_layer_poly") },
			outcome:  OutcomeEmpty,
			halted:   "crashes",
			queries:  1,
			sections: 0,
			notice:   NoticeEmpty,
		},
		{
			name: "second stage fails",
			mutate: func(f *fakeFetcher) {
				f.errs = map[string]error{"postgis:VOC_table": errors.New("connection reset")}
			},
			outcome:  OutcomeFailed,
			halted:   "voc",
			queries:  2,
			sections: 1,
			notice:   NoticeError,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := &fakeFetcher{byType: corridorData()}
			tc.mutate(f)
			b := NewBoard()
			c := CorridorCriterion("South", "")
			tk := b.Begin(KindCorridor, c)
			res := NewSequencer(f, nil).Run(context.Background(), Corridor(aliasNamer{}), c, tk, tk)
			if res.Outcome != tc.outcome || res.HaltedAt() != tc.halted {
				t.Fatalf("outcome=%s halted=%s", res.Outcome, res.HaltedAt())
			}
			if len(f.queries) != tc.queries {
				t.Fatalf("queries=%d", len(f.queries))
			}
			v := b.Snapshot()
			if len(v.Sections) != tc.sections || len(v.Notices) != 1 || v.Notices[0].Kind != tc.notice {
				t.Fatalf("sections=%d notices=%+v", len(v.Sections), v.Notices)
			}
		})
	}
}

func TestTownProper(t *testing.T) {
	names := map[string]string{
		"BOSTON":        "Boston",
		"west boylston": "West Boylston",
		"  NEWTON ":     "Newton",
		"":              "",
	}
	for in, want := range names {
		if got := TownProper(in); got != want {
			t.Errorf("TownProper(%q)=%q want %q", in, got, want)
		}
	}
}
