package layers

import (
	"errors"
	"lrtp-viewer/internal/legend"
	"strings"
	"testing"
)

func mustDefault(t *testing.T) *Catalog {
	t.Helper()
	c, err := Default()
	if err != nil {
		t.Fatalf("embedded catalog: %v", err)
	}
	return c
}

func TestDefaultCatalogCoversEveryCategory(t *testing.T) {
	c := mustDefault(t)
	for _, cat := range legend.Categories {
		if len(c.Items(cat)) == 0 {
			t.Errorf("no items for %s", cat)
		}
	}
	if got := c.TypeName("crash_layer_poly"); got != "postgis:dest2040_crash13_15_h_all_poly" {
		t.Errorf("TypeName=%q", got)
	}
	if got := c.TypeNames([]string{"CR_arcs", "CR_stns"}); got != "postgis:dest2040_mbta_cr_arc,postgis:dest2040_mbta_cr_sta_augmented" {
		t.Errorf("TypeNames=%q", got)
	}
}

func TestLegendForDemographicKeepsHeader(t *testing.T) {
	c := mustDefault(t)
	it, err := c.Item("2010pop")
	if err != nil {
		t.Fatal(err)
	}
	h, body, ok := c.LegendFor(it, "http://gs")
	if !ok || h != "Population Density 2010:<br/>Residents per Sq Mi" {
		t.Fatalf("header=%q ok=%v", h, ok)
	}
	if !strings.Contains(body, "layer=postgis%3Adest2040_taz_demographics&style=Dest2040_pop_2010") {
		t.Fatalf("body=%q", body)
	}
}

func TestLegendForCrashUsesPolygonStyle(t *testing.T) {
	c := mustDefault(t)
	it, _ := c.Item("bike_crashes")
	h, body, ok := c.LegendFor(it, "http://gs")
	if !ok || !strings.HasSuffix(h, "<br/>") {
		t.Fatalf("header=%q", h)
	}
	if !strings.Contains(body, "layer=postgis%3Adest2040_crash13_15_h_bk_poly&style=Dest2040_crash_bike_poly_1color") {
		t.Fatalf("body=%q", body)
	}
}

func TestLegendForCustomAndBuses(t *testing.T) {
	c := mustDefault(t)
	it, _ := c.Item("CR")
	_, body, ok := c.LegendFor(it, "http://gs")
	if !ok || !strings.Contains(body, "purple_line3.gif") {
		t.Fatalf("custom legend not used: %q", body)
	}
	bus, _ := c.Item("buses")
	if _, _, ok := c.LegendFor(bus, "http://gs"); ok {
		t.Fatal("buses must not produce a legend")
	}
}

func TestUnknownLookups(t *testing.T) {
	c := mustDefault(t)
	if _, err := c.Item("nope"); !errors.Is(err, ErrUnknownItem) {
		t.Errorf("Item err=%v", err)
	}
	if _, err := c.Download("nope"); !errors.Is(err, ErrUnknownTab) {
		t.Errorf("Download err=%v", err)
	}
	d, err := c.Download("Boat Docks")
	if err != nil || d.Filter != FilterDocks {
		t.Errorf("Boat Docks=%+v err=%v", d, err)
	}
}

func TestLoadRejectsBadAlias(t *testing.T) {
	doc := []byte(`
gs_layers: {a: "postgis:a"}
items:
  - {key: x, category: voc, sld: s, layers: [missing]}
`)
	if _, err := Load(doc); err == nil {
		t.Fatal("expected alias error")
	}
	doc = []byte(`
gs_layers: {a: "postgis:a"}
items:
  - {key: x, category: weather, sld: s, layers: [a]}
`)
	if _, err := Load(doc); err == nil {
		t.Fatal("expected category error")
	}
}
