package catalog

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/lidarhd/internal/model"
)

func TestExportShapefile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiles.shp")
	tiles := testTiles()
	tiles[1].Name = "T2.copc.laz"
	require.NoError(t, ExportShapefile(model.NewCatalog(tiles), path))

	base := strings.TrimSuffix(path, ".shp")
	assert.FileExists(t, base+".dbf")
	assert.FileExists(t, base+".prj")
	assert.NoFileExists(t, base+"dbf")

	r, err := shp.Open(path)
	require.NoError(t, err)
	defer r.Close() //nolint:errcheck

	assert.Len(t, r.Fields(), 3)
	assert.Equal(t, 2, r.AttributeCount())

	var urls, blocs, names []string
	for r.Next() {
		_, shape := r.Shape()
		poly, ok := shape.(*shp.Polygon)
		require.True(t, ok)
		assert.Equal(t, int32(1), poly.NumParts)
		assert.Len(t, poly.Points, 5)
		urls = append(urls, attr(r, 0))
		blocs = append(blocs, attr(r, 1))
		names = append(names, attr(r, 2))
	}
	assert.Equal(t, []string{"https://x/T1.copc.laz", "https://x/T2.copc.laz"}, urls)
	assert.Equal(t, []string{"T1", "T2"}, blocs)
	assert.Equal(t, []string{"", "T2.copc.laz"}, names)
}

func TestExportShapefile_OrientsRings(t *testing.T) {
	// Counter-clockwise shell with a clockwise hole.
	withHole := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{
		{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}},
		{{2, 2}, {2, 4}, {4, 4}, {4, 2}, {2, 2}},
	})
	poly := shapeOf(withHole)
	require.NotNil(t, poly)
	assert.Equal(t, int32(2), poly.NumParts)

	shell := poly.Points[:poly.Parts[1]]
	hole := poly.Points[poly.Parts[1]:]
	assert.Less(t, shoelace(shell), 0.0)
	assert.Greater(t, shoelace(hole), 0.0)
}

func TestExportShapefile_AttributeTooLong(t *testing.T) {
	tiles := testTiles()
	tiles[0].Bloc = strings.Repeat("b", 65)
	err := ExportShapefile(model.NewCatalog(tiles), filepath.Join(t.TempDir(), "x.shp"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write attributes for https://x/T1.copc.laz")
}

func TestExportShapefile_Errors(t *testing.T) {
	err := ExportShapefile(nil, filepath.Join(t.TempDir(), "x.shp"))
	assert.True(t, errors.Is(err, model.ErrNotLoaded))

	err = ExportShapefile(model.NewCatalog(testTiles()), filepath.Join(t.TempDir(), "x.gpkg"))
	assert.True(t, errors.Is(err, model.ErrInvalidArgument))
}

func attr(r *shp.Reader, field int) string {
	return strings.TrimRight(r.Attribute(field), "\x00 ")
}

func shoelace(pts []shp.Point) float64 {
	var sum float64
	for i := 0; i < len(pts)-1; i++ {
		sum += pts[i].X*pts[i+1].Y - pts[i+1].X*pts[i].Y
	}
	return sum / 2
}
