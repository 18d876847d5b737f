package spatial

import (
	"math"
	"sort"

	"github.com/ctessum/polyclip-go"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkt"
	"github.com/twpayne/go-geom/xy"
	"github.com/twpayne/go-geom/xy/location"

	"github.com/sells-group/lidarhd/internal/model"
)

// ring is a closed XY ring in flat form: the last vertex repeats the first.
type ring []float64

// polygon is a shell followed by zero or more holes.
type polygon []ring

// Union dissolves the given polygonal geometries into a single multipolygon.
// All inputs must share one reference frame; the result carries srid, with
// counter-clockwise shells and clockwise holes.
func Union(geoms []geom.T, srid int) (*geom.MultiPolygon, error) {
	var acc polyclip.Polygon
	for _, g := range geoms {
		polys, err := polygonsOf(g)
		if err != nil {
			return nil, err
		}
		for _, p := range polys {
			clip := toPolyclip(p)
			if len(clip) == 0 {
				continue
			}
			if len(acc) == 0 {
				acc = clip
				continue
			}
			acc = acc.Construct(polyclip.UNION, clip)
		}
	}
	if len(acc) == 0 {
		return nil, eris.Wrap(model.ErrInvalidArgument, "spatial: union of empty geometry")
	}
	return fromPolyclip(acc, srid)
}

// Area returns the planar area of a polygonal geometry, holes subtracted,
// whatever the winding of its rings.
func Area(g geom.T) float64 {
	polys, err := polygonsOf(g)
	if err != nil {
		return 0
	}
	var total float64
	for _, p := range polys {
		for i, r := range p {
			a := math.Abs(xy.SignedArea(geom.XY, r))
			if i == 0 {
				total += a
			} else {
				total -= a
			}
		}
	}
	return total
}

// IsCounterClockwise reports the winding of a closed ring.
func IsCounterClockwise(coords []geom.Coord) bool {
	return xy.IsRingCounterClockwise(geom.XY, ringFromCoords(coords))
}

// ClipWKT renders a union as WKT, collapsing a single-part multipolygon to POLYGON.
func ClipWKT(mp *geom.MultiPolygon) (string, error) {
	var g geom.T = mp
	if mp.NumPolygons() == 1 {
		g = mp.Polygon(0)
	}
	s, err := wkt.Marshal(g)
	if err != nil {
		return "", eris.Wrap(err, "spatial: encode WKT")
	}
	return s, nil
}

// polygonsOf flattens a polygonal geometry into closed XY rings, dropping
// rings with fewer than three distinct vertices.
func polygonsOf(g geom.T) ([]polygon, error) {
	switch t := g.(type) {
	case *geom.Polygon:
		return []polygon{polygonFromCoords(t.Coords())}, nil
	case *geom.MultiPolygon:
		coords := t.Coords()
		out := make([]polygon, 0, len(coords))
		for _, pc := range coords {
			out = append(out, polygonFromCoords(pc))
		}
		return out, nil
	case nil:
		return nil, eris.Wrap(model.ErrInvalidArgument, "spatial: nil geometry")
	default:
		return nil, eris.Wrapf(model.ErrInvalidArgument, "spatial: %T is not polygonal", g)
	}
}

func polygonFromCoords(rings [][]geom.Coord) polygon {
	p := make(polygon, 0, len(rings))
	for _, rc := range rings {
		if r := ringFromCoords(rc); len(r) >= 8 {
			p = append(p, r)
		}
	}
	return p
}

// ringFromCoords keeps X and Y of each vertex and closes the ring if needed.
func ringFromCoords(coords []geom.Coord) ring {
	r := make(ring, 0, 2*len(coords)+2)
	for _, c := range coords {
		r = append(r, c.X(), c.Y())
	}
	if n := len(r); n >= 2 && (r[0] != r[n-2] || r[1] != r[n-1]) {
		r = append(r, r[0], r[1])
	}
	return r
}

func toPolyclip(p polygon) polyclip.Polygon {
	out := make(polyclip.Polygon, 0, len(p))
	for _, r := range p {
		c := make(polyclip.Contour, 0, len(r)/2)
		for i := 0; i+3 < len(r); i += 2 {
			c = append(c, polyclip.Point{X: r[i], Y: r[i+1]})
		}
		out = append(out, c)
	}
	return out
}

// fromPolyclip converts polyclip's flat contour list back into polygons.
func fromPolyclip(pc polyclip.Polygon, srid int) (*geom.MultiPolygon, error) {
	rings := make([]ring, 0, len(pc))
	for _, c := range pc {
		if len(c) < 3 {
			continue
		}
		r := make(ring, 0, 2*len(c)+2)
		for _, pt := range c {
			r = append(r, pt.X, pt.Y)
		}
		rings = append(rings, append(r, c[0].X, c[0].Y))
	}
	return assemble(rings, srid)
}

// MultiPolygonFromRings nests an unordered list of rings into shells and
// holes. Input winding is ignored; the result is normalised like Union's.
func MultiPolygonFromRings(coords [][]geom.Coord, srid int) (*geom.MultiPolygon, error) {
	p := polygonFromCoords(coords)
	if len(p) == 0 {
		return nil, eris.Wrap(model.ErrInvalidArgument, "spatial: no ring with at least three vertices")
	}
	return assemble(p, srid)
}

// assemble treats a ring nested inside an odd number of others as a hole of
// the smallest shell that contains it. Shells come out counter-clockwise and
// holes clockwise.
func assemble(rings []ring, srid int) (*geom.MultiPolygon, error) {
	depth := make([]int, len(rings))
	for i := range rings {
		for j := range rings {
			if i != j && ringInside(rings[i], rings[j]) {
				depth[i]++
			}
		}
	}

	var shells []int
	holes := make(map[int][]int)
	for i := range rings {
		if depth[i]%2 == 0 {
			shells = append(shells, i)
		}
	}
	for i := range rings {
		if depth[i]%2 == 0 {
			continue
		}
		best, bestArea := -1, math.Inf(1)
		for _, s := range shells {
			if depth[s] != depth[i]-1 || !ringInside(rings[i], rings[s]) {
				continue
			}
			if a := math.Abs(xy.SignedArea(geom.XY, rings[s])); a < bestArea {
				best, bestArea = s, a
			}
		}
		if best >= 0 {
			holes[best] = append(holes[best], i)
		}
	}
	sort.Ints(shells)

	mp := geom.NewMultiPolygon(geom.XY).SetSRID(srid)
	for _, s := range shells {
		flat := append([]float64(nil), oriented(rings[s], true)...)
		ends := []int{len(flat)}
		for _, h := range holes[s] {
			flat = append(flat, oriented(rings[h], false)...)
			ends = append(ends, len(flat))
		}
		if err := mp.Push(geom.NewPolygonFlat(geom.XY, flat, ends)); err != nil {
			return nil, eris.Wrap(err, "spatial: push polygon")
		}
	}
	return mp, nil
}

// ringInside reports whether inner lies inside outer, judged on the first
// vertex of inner that is not on outer's boundary.
func ringInside(inner, outer ring) bool {
	for i := 0; i+1 < len(inner); i += 2 {
		switch xy.LocatePointInRing(geom.XY, geom.Coord{inner[i], inner[i+1]}, outer) {
		case location.Interior:
			return true
		case location.Exterior:
			return false
		}
	}
	return false
}

// oriented returns r wound counter-clockwise when ccw is set, clockwise otherwise.
func oriented(r ring, ccw bool) ring {
	if xy.IsRingCounterClockwise(geom.XY, r) == ccw {
		return r
	}
	out := make(ring, len(r))
	for i := 0; i+1 < len(r); i += 2 {
		j := len(r) - 2 - i
		out[j], out[j+1] = r[i], r[i+1]
	}
	return out
}
