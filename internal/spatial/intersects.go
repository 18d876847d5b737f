package spatial

import (
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"github.com/twpayne/go-geom/xy/lineintersector"
	"github.com/twpayne/go-geom/xy/location"
)

// Intersects reports whether two polygonal geometries share at least one
// point, boundaries included. Non-polygonal input never intersects.
func Intersects(a, b geom.T) bool {
	if a == nil || b == nil || !boundsOverlap(a.Bounds(), b.Bounds()) {
		return false
	}
	pa, err := polygonsOf(a)
	if err != nil {
		return false
	}
	pb, err := polygonsOf(b)
	if err != nil {
		return false
	}
	for _, p := range pa {
		for _, q := range pb {
			if polygonsIntersect(p, q) {
				return true
			}
		}
	}
	return false
}

func boundsOverlap(a, b *geom.Bounds) bool {
	if a == nil || b == nil || a.IsEmpty() || b.IsEmpty() {
		return false
	}
	return a.Overlaps(geom.XY, b)
}

func polygonsIntersect(p, q polygon) bool {
	if len(p) == 0 || len(q) == 0 {
		return false
	}
	for _, rp := range p {
		for _, rq := range q {
			if ringsCross(rp, rq) {
				return true
			}
		}
	}
	// No boundary contact: either one lies inside the other or they are disjoint.
	return polygonContains(q, firstVertex(p[0])) || polygonContains(p, firstVertex(q[0]))
}

// polygonContains reports whether v lies in the closed polygon: not outside
// the shell and not strictly inside any hole.
func polygonContains(p polygon, v geom.Coord) bool {
	if xy.LocatePointInRing(geom.XY, v, p[0]) == location.Exterior {
		return false
	}
	for _, hole := range p[1:] {
		if xy.LocatePointInRing(geom.XY, v, hole) == location.Interior {
			return false
		}
	}
	return true
}

// ringsCross reports whether any edge of a touches or crosses any edge of b.
func ringsCross(a, b ring) bool {
	var robust lineintersector.RobustLineIntersector
	for i := 0; i+3 < len(a); i += 2 {
		a1, a2 := geom.Coord{a[i], a[i+1]}, geom.Coord{a[i+2], a[i+3]}
		for j := 0; j+3 < len(b); j += 2 {
			res := lineintersector.LineIntersectsLine(robust, a1, a2, geom.Coord{b[j], b[j+1]}, geom.Coord{b[j+2], b[j+3]})
			if res.HasIntersection() {
				return true
			}
		}
	}
	return false
}

func firstVertex(r ring) geom.Coord { return geom.Coord{r[0], r[1]} }
