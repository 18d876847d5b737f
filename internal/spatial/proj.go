// Package spatial implements the planar geometry the catalog needs: reprojection
// between EPSG reference frames, areal union and polygon intersection.
package spatial

import (
	"math"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/wroge/wgs84"

	"github.com/sells-group/lidarhd/internal/model"
)

// Frequently used EPSG codes.
const (
	SRIDWGS84       = 4326
	SRIDWebMercator = 3857
	SRIDLambert93   = 2154
)

var (
	epsg  = wgs84.EPSG()
	codes = sync.OnceValue(func() map[int]bool {
		known := make(map[int]bool)
		for _, c := range epsg.Codes() {
			known[c] = true
		}
		return known
	})
)

// Supported reports whether srid is a registered EPSG code usable as a
// source or target frame.
func Supported(srid int) bool {
	return codes()[srid]
}

// Transform returns a copy of g with its coordinates reprojected from one frame
// to another. Only point, polygon and multipolygon geometries are handled.
func Transform(g geom.T, fromSRID, toSRID int) (geom.T, error) {
	if !Supported(fromSRID) {
		return nil, eris.Wrapf(model.ErrInvalidArgument, "spatial: unsupported source EPSG:%d", fromSRID)
	}
	if !Supported(toSRID) {
		return nil, eris.Wrapf(model.ErrInvalidArgument, "spatial: unsupported target EPSG:%d", toSRID)
	}

	flat, err := transformFlat(g.FlatCoords(), g.Stride(), fromSRID, toSRID)
	if err != nil {
		return nil, err
	}

	switch t := g.(type) {
	case *geom.Point:
		return geom.NewPointFlat(t.Layout(), flat).SetSRID(toSRID), nil
	case *geom.Polygon:
		return geom.NewPolygonFlat(t.Layout(), flat, append([]int(nil), t.Ends()...)).SetSRID(toSRID), nil
	case *geom.MultiPolygon:
		endss := make([][]int, len(t.Endss()))
		for i, ends := range t.Endss() {
			endss[i] = append([]int(nil), ends...)
		}
		return geom.NewMultiPolygonFlat(t.Layout(), flat, endss).SetSRID(toSRID), nil
	default:
		return nil, eris.Wrapf(model.ErrInvalidArgument, "spatial: cannot reproject %T", g)
	}
}

// transformFlat reprojects X and Y of every vertex; other ordinates are copied.
func transformFlat(in []float64, stride, fromSRID, toSRID int) ([]float64, error) {
	out := append([]float64(nil), in...)
	if fromSRID == toSRID {
		return out, nil
	}
	project := epsg.Transform(fromSRID, toSRID)
	for i := 0; i+1 < len(out); i += stride {
		x, y, _ := project(out[i], out[i+1], 0)
		if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
			return nil, eris.Wrapf(model.ErrInvalidArgument,
				"spatial: coordinate (%g, %g) cannot be expressed in EPSG:%d", in[i], in[i+1], toSRID)
		}
		out[i], out[i+1] = x, y
	}
	return out, nil
}
