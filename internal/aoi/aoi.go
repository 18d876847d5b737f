// Package aoi reads areas of interest from GeoJSON, shapefile, WKT and bounding boxes.
package aoi

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"github.com/twpayne/go-geom/encoding/wkt"
	"go.uber.org/zap"

	"github.com/sells-group/lidarhd/internal/model"
	"github.com/sells-group/lidarhd/internal/spatial"
)

// Load reads an area of interest from a file, picking the reader from the extension.
func Load(path string, srid int) (model.AreaOfInterest, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".geojson", ".json":
		f, err := os.Open(path)
		if err != nil {
			return model.AreaOfInterest{}, eris.Wrapf(err, "aoi: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		return FromGeoJSON(f, srid)
	case ".shp":
		return FromShapefile(path, srid)
	case ".wkt":
		data, err := os.ReadFile(path)
		if err != nil {
			return model.AreaOfInterest{}, eris.Wrapf(err, "aoi: read %s", path)
		}
		return FromWKT(string(data), srid)
	default:
		return model.AreaOfInterest{}, eris.Wrapf(model.ErrInvalidArgument, "aoi: unsupported file type %q", filepath.Ext(path))
	}
}

// FromGeoJSON accepts a FeatureCollection, a single Feature or a bare geometry.
func FromGeoJSON(r io.Reader, srid int) (model.AreaOfInterest, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return model.AreaOfInterest{}, eris.Wrap(err, "aoi: read geojson")
	}

	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return model.AreaOfInterest{}, eris.Wrapf(model.ErrInvalidArgument, "aoi: parse geojson: %v", err)
	}

	var geoms []geom.T
	switch head.Type {
	case "FeatureCollection":
		var fc geojson.FeatureCollection
		if err := json.Unmarshal(data, &fc); err != nil {
			return model.AreaOfInterest{}, eris.Wrapf(model.ErrInvalidArgument, "aoi: parse feature collection: %v", err)
		}
		for _, f := range fc.Features {
			if f != nil && f.Geometry != nil {
				geoms = append(geoms, f.Geometry)
			}
		}
	case "Feature":
		var f geojson.Feature
		if err := json.Unmarshal(data, &f); err != nil {
			return model.AreaOfInterest{}, eris.Wrapf(model.ErrInvalidArgument, "aoi: parse feature: %v", err)
		}
		if f.Geometry != nil {
			geoms = append(geoms, f.Geometry)
		}
	default:
		var g geom.T
		if err := geojson.Unmarshal(data, &g); err != nil {
			return model.AreaOfInterest{}, eris.Wrapf(model.ErrInvalidArgument, "aoi: parse geometry: %v", err)
		}
		geoms = append(geoms, g)
	}
	return New(geoms, srid)
}

// FromWKT parses a single WKT geometry.
func FromWKT(s string, srid int) (model.AreaOfInterest, error) {
	g, err := wkt.Unmarshal(strings.TrimSpace(s))
	if err != nil {
		return model.AreaOfInterest{}, eris.Wrapf(model.ErrInvalidArgument, "aoi: parse wkt: %v", err)
	}
	return New([]geom.T{g}, srid)
}

// FromBBox builds a rectangular area of interest.
func FromBBox(minX, minY, maxX, maxY float64, srid int) (model.AreaOfInterest, error) {
	if !(minX < maxX) || !(minY < maxY) {
		return model.AreaOfInterest{}, eris.Wrapf(model.ErrInvalidArgument,
			"aoi: degenerate bbox %g,%g,%g,%g", minX, minY, maxX, maxY)
	}
	poly, err := geom.NewPolygon(geom.XY).SetCoords([][]geom.Coord{{
		{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}, {minX, minY},
	}})
	if err != nil {
		return model.AreaOfInterest{}, eris.Wrap(err, "aoi: build bbox")
	}
	return New([]geom.T{poly}, srid)
}

// FromShapefile reads every polygon record of a shapefile. Records of other
// shape types are skipped; a file with no polygon is rejected.
func FromShapefile(path string, srid int) (model.AreaOfInterest, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return model.AreaOfInterest{}, eris.Wrapf(err, "aoi: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	var (
		geoms   []geom.T
		skipped int
	)
	for reader.Next() {
		_, shape := reader.Shape()
		p, ok := shape.(*shp.Polygon)
		if !ok || p.NumParts == 0 {
			skipped++
			continue
		}
		mp, err := spatial.MultiPolygonFromRings(shapeRings(p), srid)
		if err != nil {
			skipped++
			continue
		}
		geoms = append(geoms, mp)
	}
	if skipped > 0 {
		zap.L().Debug("aoi: skipped shapefile records", zap.String("path", path), zap.Int("skipped", skipped))
	}
	return New(geoms, srid)
}

// New validates geometries and tags them with srid. Geometry collections are
// flattened; anything other than polygons is rejected.
func New(geoms []geom.T, srid int) (model.AreaOfInterest, error) {
	if !spatial.Supported(srid) {
		return model.AreaOfInterest{}, eris.Wrapf(model.ErrInvalidArgument, "aoi: unsupported srid %d", srid)
	}

	var out []geom.T
	var walk func(g geom.T) error
	walk = func(g geom.T) error {
		switch t := g.(type) {
		case *geom.Polygon:
			if t.NumLinearRings() > 0 {
				out = append(out, geom.NewPolygonFlat(t.Layout(), t.FlatCoords(), t.Ends()).SetSRID(srid))
			}
		case *geom.MultiPolygon:
			if t.NumPolygons() > 0 {
				out = append(out, geom.NewMultiPolygonFlat(t.Layout(), t.FlatCoords(), t.Endss()).SetSRID(srid))
			}
		case *geom.GeometryCollection:
			for _, child := range t.Geoms() {
				if err := walk(child); err != nil {
					return err
				}
			}
		case nil:
		default:
			return eris.Wrapf(model.ErrInvalidArgument, "aoi: %T is not polygonal", g)
		}
		return nil
	}
	for _, g := range geoms {
		if err := walk(g); err != nil {
			return model.AreaOfInterest{}, err
		}
	}
	if len(out) == 0 {
		return model.AreaOfInterest{}, eris.Wrap(model.ErrInvalidArgument, "aoi: no polygon in input")
	}
	return model.AreaOfInterest{Geometries: out, SRID: srid}, nil
}

func shapeRings(p *shp.Polygon) [][]geom.Coord {
	rings := make([][]geom.Coord, 0, p.NumParts)
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}
		coords := make([]geom.Coord, 0, end-start)
		for j := start; j < end; j++ {
			coords = append(coords, geom.Coord{p.Points[j].X, p.Points[j].Y})
		}
		rings = append(rings, coords)
	}
	return rings
}
