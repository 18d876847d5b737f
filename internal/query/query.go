// Package query selects the catalog tiles that intersect an area of interest.
package query

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/lidarhd/internal/model"
	"github.com/sells-group/lidarhd/internal/spatial"
)

// Result holds the matching tiles, in catalog order, and the dissolved area
// of interest in the working frame.
type Result struct {
	Tiles   []model.Tile
	Union   *geom.MultiPolygon
	AreaKm2 float64
}

// URLs returns the download URL of every matching tile.
func (r *Result) URLs() []string {
	urls := make([]string, len(r.Tiles))
	for i, t := range r.Tiles {
		urls[i] = t.URL
	}
	return urls
}

// Intersecting returns every tile whose footprint intersects the union of
// the area of interest. Touching counts as intersecting.
func Intersecting(c *model.Catalog, area model.AreaOfInterest) (*Result, error) {
	if c == nil {
		return nil, eris.Wrap(model.ErrNotLoaded, "query: catalog not loaded")
	}
	if len(area.Geometries) == 0 {
		return nil, eris.Wrap(model.ErrInvalidArgument, "query: empty area of interest")
	}

	projected := make([]geom.T, 0, len(area.Geometries))
	for _, g := range area.Geometries {
		p, err := spatial.Transform(g, area.SRID, model.WorkingSRID)
		if err != nil {
			return nil, eris.Wrap(err, "query: reproject area of interest")
		}
		projected = append(projected, p)
	}

	union, err := spatial.Union(projected, model.WorkingSRID)
	if err != nil {
		return nil, eris.Wrap(err, "query: dissolve area of interest")
	}
	areaKm2 := spatial.Area(union) / 1e6

	res := &Result{Union: union, AreaKm2: areaKm2}
	for _, i := range c.Search(union.Bounds()) {
		t := c.Tile(i)
		if spatial.Intersects(t.Geometry, union) {
			res.Tiles = append(res.Tiles, t)
		}
	}

	zap.L().Info("area of interest resolved",
		zap.String("component", "query"),
		zap.Float64("area_km2", areaKm2),
		zap.Int("tiles", len(res.Tiles)),
	)
	return res, nil
}
