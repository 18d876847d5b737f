package catalog

import (
	"os"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/lidarhd/internal/gpkg"
	"github.com/sells-group/lidarhd/internal/model"
	"github.com/sells-group/lidarhd/internal/spatial"
)

// Shapefile attribute columns, in dbf order.
var exportFields = []shp.Field{
	shp.StringField("URL", 254),
	shp.StringField("BLOC", 64),
	shp.StringField("NAME", 128),
}

// ExportShapefile writes the catalog footprints to a polygon shapefile with a
// Lambert-93 .prj sidecar. Multi-part footprints become multi-part records.
func ExportShapefile(c *model.Catalog, path string) error {
	if c == nil {
		return eris.Wrap(model.ErrNotLoaded, "catalog: export")
	}
	if !strings.HasSuffix(strings.ToLower(path), ".shp") {
		return eris.Wrapf(model.ErrInvalidArgument, "catalog: export path %q must end in .shp", path)
	}

	base := path[:len(path)-len(".shp")]
	w, err := shp.Create(path, shp.POLYGON)
	if err != nil {
		return eris.Wrapf(err, "catalog: create shapefile %s", path)
	}
	skipped, err := writeShapes(w, c.Tiles())
	// Close writes the shp, shx and dbf headers and reports no error.
	w.Close()
	if err != nil {
		return err
	}

	// go-shp v0.1.1 names the attribute table "<base>dbf" while readers open "<base>.dbf".
	if err := os.Rename(base+"dbf", base+".dbf"); err != nil {
		return eris.Wrap(err, "catalog: place dbf sidecar")
	}
	if def, ok := gpkg.Definition(model.WorkingSRID); ok {
		if err := os.WriteFile(base+".prj", []byte(def), 0o644); err != nil {
			return eris.Wrapf(err, "catalog: write %s.prj", base)
		}
	}

	zap.L().Info("catalog exported",
		zap.String("path", path),
		zap.Int("tiles", c.Len()-skipped),
		zap.Int("skipped", skipped),
	)
	return nil
}

// writeShapes writes one record per tile with a polygonal footprint and
// returns the number of tiles skipped.
func writeShapes(w *shp.Writer, tiles []model.Tile) (int, error) {
	if err := w.SetFields(exportFields); err != nil {
		return 0, eris.Wrap(err, "catalog: set shapefile fields")
	}
	var skipped, written int
	for _, t := range tiles {
		poly := shapeOf(t.Geometry)
		if poly == nil {
			skipped++
			continue
		}
		if row := int(w.Write(poly)); row != written {
			return skipped, eris.Errorf("catalog: shapefile record %d written as %d", written, row)
		}
		for i, v := range []string{t.URL, t.Bloc, t.Name} {
			if err := w.WriteAttribute(written, i, v); err != nil {
				return skipped, eris.Wrapf(err, "catalog: write attributes for %s", t.URL)
			}
		}
		written++
	}
	return skipped, nil
}

// shapeOf converts a footprint to a shapefile polygon. Shells are written
// clockwise and holes counter-clockwise.
func shapeOf(g geom.T) *shp.Polygon {
	var polys [][][]geom.Coord
	switch t := g.(type) {
	case *geom.Polygon:
		polys = [][][]geom.Coord{t.Coords()}
	case *geom.MultiPolygon:
		polys = t.Coords()
	default:
		return nil
	}

	var parts [][]shp.Point
	for _, rings := range polys {
		for i, r := range rings {
			if len(r) < 4 {
				continue
			}
			if (i == 0) == spatial.IsCounterClockwise(r) {
				r = reversed(r)
			}
			pts := make([]shp.Point, len(r))
			for j, c := range r {
				pts[j] = shp.Point{X: c.X(), Y: c.Y()}
			}
			parts = append(parts, pts)
		}
	}
	if len(parts) == 0 {
		return nil
	}
	poly := shp.Polygon(*shp.NewPolyLine(parts))
	return &poly
}

func reversed(r []geom.Coord) []geom.Coord {
	out := make([]geom.Coord, len(r))
	for i, c := range r {
		out[len(r)-1-i] = c
	}
	return out
}
