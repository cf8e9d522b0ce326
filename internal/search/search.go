// 包 search：城镇、走廊、公交线路、TAZ 的定位查询，返回要素属性与地图范围
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"lrtp-viewer/internal/cql"
	"lrtp-viewer/internal/logger"
	"lrtp-viewer/internal/report"
	"lrtp-viewer/internal/wfs"
	"sort"
	"strconv"
	"strings"

	geojson "github.com/paulmach/go.geojson"
)

var (
	ErrNotFound  = errors.New("no matching feature")
	ErrAmbiguous = errors.New("more than one matching feature")
)

// RegionExtent：全区范围（EPSG:26986），选择 Region 走廊时直接使用，不发请求
var RegionExtent = wfs.Extent{182154.0280675815, 862336.7599726944, 283662.5148839877, 942093.4281855851}

// Searcher：定位查询
type Searcher struct {
	f   report.Fetcher
	tn  report.TypeNamer
	log *slog.Logger
}

func New(f report.Fetcher, tn report.TypeNamer) *Searcher {
	return &Searcher{f: f, tn: tn, log: logger.Component("search")}
}

type Town struct {
	ID     int        `json:"id"`
	Name   string     `json:"name"`
	Extent wfs.Extent `json:"extent"`
}

// Town：按名称查城镇，大小写不敏感；多个要素时取第一个
func (s *Searcher) Town(ctx context.Context, name string) (Town, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Town{}, ErrNotFound
	}
	fs, err := s.f.GetFeatures(ctx, wfs.Query{TypeName: s.tn.TypeName("towns_layer"), Filter: cql.TownName(name)})
	if err != nil {
		return Town{}, err
	}
	if len(fs) == 0 {
		s.log.Info("search_town_miss", "name", name)
		return Town{}, fmt.Errorf("town %q: %w", name, ErrNotFound)
	}
	p := fs[0].Properties
	t := Town{ID: intProp(p, "town_id"), Name: strProp(p, "town")}
	t.Extent, _ = wfs.ExtentOf(fs[0])
	return t, nil
}

// Corridor：走廊定位结果；Region 只有范围，其余带图层与样式供地图高亮
type Corridor struct {
	Name      string           `json:"name"`
	TypeName  string           `json:"typeName,omitempty"`
	Style     string           `json:"style,omitempty"`
	Filter    string           `json:"filter,omitempty"`
	Extent    wfs.Extent       `json:"extent"`
	Criterion report.Criterion `json:"criterion"`
}

// Corridor：Region 返回全区范围；Core 查中心环带；其余按走廊名查；结果必须恰好一个要素
func (s *Searcher) Corridor(ctx context.Context, name string) (Corridor, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Corridor{}, ErrNotFound
	}
	c := Corridor{Name: name, Criterion: report.CorridorCriterion(name, "")}
	switch name {
	case cql.CorridorRegion:
		c.Extent = RegionExtent
		return c, nil
	case cql.CorridorCore:
		c.TypeName = s.tn.TypeName("central_corr")
		c.Filter = cql.CentralShape()
		c.Style = "Dest2040_corridor_Central"
	default:
		c.TypeName = s.tn.TypeName("corridors")
		c.Filter = cql.CorridorShape(name)
		c.Style = "Dest2040_corridor_" + name
	}
	fs, err := s.f.GetFeatures(ctx, wfs.Query{TypeName: c.TypeName, Filter: c.Filter})
	if err != nil {
		return Corridor{}, err
	}
	switch len(fs) {
	case 0:
		return Corridor{}, fmt.Errorf("corridor %q: %w", name, ErrNotFound)
	case 1:
	default:
		s.log.Warn("search_corridor_ambiguous", "name", name, "features", len(fs))
		return Corridor{}, fmt.Errorf("corridor %q: %d features: %w", name, len(fs), ErrAmbiguous)
	}
	c.Extent, _ = wfs.ExtentOf(fs[0])
	return c, nil
}

// Route：一条公交线路
type Route struct {
	Route string `json:"route"`
	Name  string `json:"name"`
	Label string `json:"label"`
}

func routeOf(p map[string]any) Route {
	r := Route{Route: strProp(p, "ctps_route_text"), Name: strProp(p, "route_name")}
	if r.Route == "" {
		r.Route = strProp(p, "ctps_route")
	}
	r.Label = r.Route + ", " + r.Name
	return r
}

// BusRoutes：公交线路列表，每条线路只取 direction=0 一个方向，按线路号数值升序
func (s *Searcher) BusRoutes(ctx context.Context) ([]Route, error) {
	fs, err := s.f.GetFeatures(ctx, wfs.Query{
		TypeName:   s.tn.TypeName("bus_routes"),
		Filter:     cql.BusRouteList(),
		Properties: []string{"route_name", "ctps_route_text"},
	})
	if err != nil {
		return nil, err
	}
	out := make([]Route, 0, len(fs))
	for _, f := range fs {
		if f != nil {
			out = append(out, routeOf(f.Properties))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, ea := strconv.ParseFloat(out[i].Route, 64)
		b, eb := strconv.ParseFloat(out[j].Route, 64)
		switch {
		case ea == nil && eb == nil:
			return a < b
		case ea == nil:
			return true
		case eb == nil:
			return false
		}
		return out[i].Route < out[j].Route
	})
	return out, nil
}

// BusRoute：一条线路的两个方向；线路信息取第一个要素，范围覆盖全部要素
func (s *Searcher) BusRoute(ctx context.Context, route string) (Route, wfs.Extent, error) {
	route = strings.TrimSpace(route)
	if i := strings.IndexByte(route, ','); i >= 0 {
		route = strings.TrimSpace(route[:i])
	}
	if route == "" {
		return Route{}, wfs.Extent{}, ErrNotFound
	}
	fs, err := s.f.GetFeatures(ctx, wfs.Query{TypeName: s.tn.TypeName("bus_routes"), Filter: cql.BusRoute(route)})
	if err != nil {
		return Route{}, wfs.Extent{}, err
	}
	if len(fs) == 0 {
		return Route{}, wfs.Extent{}, fmt.Errorf("bus route %q: %w", route, ErrNotFound)
	}
	ext, _ := wfs.ExtentOf(fs...)
	return routeOf(fs[0].Properties), ext, nil
}

type TAZ struct {
	ID     int            `json:"id"`
	Town   string         `json:"town,omitempty"`
	Extent wfs.Extent     `json:"extent"`
	Props  map[string]any `json:"properties,omitempty"`
}

func tazOf(f *geojson.Feature) TAZ {
	t := TAZ{ID: intProp(f.Properties, "taz"), Town: strProp(f.Properties, "town"), Props: f.Properties}
	t.Extent, _ = wfs.ExtentOf(f)
	return t
}

// TAZ：按编号查 TAZ，必须恰好一个要素
func (s *Searcher) TAZ(ctx context.Context, id int) (TAZ, error) {
	fs, err := s.f.GetFeatures(ctx, wfs.Query{TypeName: s.tn.TypeName("taz2727"), Filter: cql.TAZ(id)})
	if err != nil {
		return TAZ{}, err
	}
	switch len(fs) {
	case 0:
		return TAZ{}, fmt.Errorf("taz %d: %w", id, ErrNotFound)
	case 1:
		return tazOf(fs[0]), nil
	}
	s.log.Error("search_taz_ambiguous", "taz", id, "features", len(fs))
	return TAZ{}, fmt.Errorf("taz %d: %w", id, ErrAmbiguous)
}

// TAZAt：地图点击定位，在点击点周围 tol 米的方框内取第一个 TAZ；规划区外返回 ErrNotFound
func (s *Searcher) TAZAt(ctx context.Context, x, y, tol float64) (TAZ, error) {
	if tol <= 0 {
		tol = 1
	}
	bbox := fmt.Sprintf("%g,%g,%g,%g,EPSG:26986", x-tol, y-tol, x+tol, y+tol)
	fs, err := s.f.GetFeatures(ctx, wfs.Query{TypeName: s.tn.TypeName("taz2727"), BBox: bbox})
	if err != nil {
		return TAZ{}, err
	}
	if len(fs) == 0 || fs[0] == nil {
		s.log.Debug("search_taz_outside_plan_area", "x", x, "y", y)
		return TAZ{}, ErrNotFound
	}
	return tazOf(fs[0]), nil
}

func strProp(p map[string]any, k string) string {
	switch v := p[k].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

func intProp(p map[string]any, k string) int {
	switch v := p[k].(type) {
	case float64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(strings.TrimSpace(v))
		return n
	}
	return 0
}
