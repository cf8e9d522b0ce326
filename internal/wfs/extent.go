package wfs

import (
	"math"

	geojson "github.com/paulmach/go.geojson"
)

// Extent：minx, miny, maxx, maxy，坐标系与图层一致
type Extent [4]float64

func emptyExtent() Extent {
	return Extent{math.Inf(1), math.Inf(1), math.Inf(-1), math.Inf(-1)}
}

func (e Extent) Empty() bool { return e[0] > e[2] || e[1] > e[3] }

func (e *Extent) add(p []float64) {
	if len(p) < 2 {
		return
	}
	e[0] = math.Min(e[0], p[0])
	e[1] = math.Min(e[1], p[1])
	e[2] = math.Max(e[2], p[0])
	e[3] = math.Max(e[3], p[1])
}

func (e *Extent) addGeometry(g *geojson.Geometry) {
	if g == nil {
		return
	}
	if len(g.BoundingBox) == 4 {
		e.add(g.BoundingBox[:2])
		e.add(g.BoundingBox[2:])
		return
	}
	switch g.Type {
	case geojson.GeometryPoint:
		e.add(g.Point)
	case geojson.GeometryMultiPoint:
		for _, p := range g.MultiPoint {
			e.add(p)
		}
	case geojson.GeometryLineString:
		for _, p := range g.LineString {
			e.add(p)
		}
	case geojson.GeometryMultiLineString:
		for _, l := range g.MultiLineString {
			for _, p := range l {
				e.add(p)
			}
		}
	case geojson.GeometryPolygon:
		for _, r := range g.Polygon {
			for _, p := range r {
				e.add(p)
			}
		}
	case geojson.GeometryMultiPolygon:
		for _, poly := range g.MultiPolygon {
			for _, r := range poly {
				for _, p := range r {
					e.add(p)
				}
			}
		}
	case geojson.GeometryCollection:
		for _, sub := range g.Geometries {
			e.addGeometry(sub)
		}
	}
}

// ExtentOf：要素集合的外包矩形；没有任何坐标时 ok 为 false
func ExtentOf(fs ...*geojson.Feature) (Extent, bool) {
	e := emptyExtent()
	for _, f := range fs {
		if f == nil {
			continue
		}
		if len(f.BoundingBox) == 4 {
			e.add(f.BoundingBox[:2])
			e.add(f.BoundingBox[2:])
			continue
		}
		e.addGeometry(f.Geometry)
	}
	if e.Empty() {
		return Extent{}, false
	}
	return e, true
}
