package query

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/lidarhd/internal/model"
	"github.com/sells-group/lidarhd/internal/spatial"
)

func box(x0, y0, x1, y1 float64) *geom.Polygon {
	return geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{
		{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}, {x0, y0},
	}}).SetSRID(model.WorkingSRID)
}

func grid(n int, size float64) *model.Catalog {
	var tiles []model.Tile
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			x, y := float64(i)*size, float64(j)*size
			url := fmt.Sprintf("https://x/T_%d_%d.copc.laz", i, j)
			tiles = append(tiles, model.Tile{URL: url, Bloc: model.BlocFromURL(url), Geometry: box(x, y, x+size, y+size)})
		}
	}
	return model.NewCatalog(tiles)
}

func TestIntersecting_NotLoaded(t *testing.T) {
	_, err := Intersecting(nil, model.AreaOfInterest{Geometries: []geom.T{box(0, 0, 1, 1)}, SRID: 2154})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrNotLoaded))
}

func TestIntersecting_ClockwiseArea(t *testing.T) {
	c := model.NewCatalog([]model.Tile{
		{URL: "https://x/T1.copc.laz", Bloc: "T1", Geometry: box(0, 0, 1000, 1000)},
	})
	clockwise := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{
		{100, 100}, {100, 600}, {600, 600}, {600, 100}, {100, 100},
	}})

	res, err := Intersecting(c, model.AreaOfInterest{Geometries: []geom.T{clockwise}, SRID: 2154})
	require.NoError(t, err)
	assert.Greater(t, res.AreaKm2, 0.0)
	assert.InDelta(t, 0.25, res.AreaKm2, 1e-9)
	assert.Len(t, res.Tiles, 1)
}

func TestIntersecting_ProjectedFrame(t *testing.T) {
	// A UTM 31N box around 3°E 46.5°N lands near the Lambert-93 origin.
	c := model.NewCatalog([]model.Tile{
		{URL: "https://x/origin.copc.laz", Geometry: box(699000, 6599000, 701000, 6601000)},
		{URL: "https://x/far.copc.laz", Geometry: box(100000, 6000000, 101000, 6001000)},
	})
	center, err := spatial.Transform(geom.NewPointFlat(geom.XY, []float64{3, 46.5}), spatial.SRIDWGS84, 32631)
	require.NoError(t, err)
	x, y := center.FlatCoords()[0], center.FlatCoords()[1]

	res, err := Intersecting(c, model.AreaOfInterest{Geometries: []geom.T{box(x-100, y-100, x+100, y+100)}, SRID: 32631})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://x/origin.copc.laz"}, res.URLs())
}

func TestIntersecting_EmptyArea(t *testing.T) {
	_, err := Intersecting(grid(2, 10), model.AreaOfInterest{SRID: 2154})
	assert.True(t, errors.Is(err, model.ErrInvalidArgument))
}

func TestIntersecting_TwoTiles(t *testing.T) {
	c := model.NewCatalog([]model.Tile{
		{URL: "https://x/T1.copc.laz", Bloc: "T1", Geometry: box(0, 0, 10, 10)},
		{URL: "https://x/T2.copc.laz", Bloc: "T2", Geometry: box(10, 0, 20, 10)},
		{URL: "https://x/T3.copc.laz", Bloc: "T3", Geometry: box(100, 100, 110, 110)},
	})
	aoi := model.AreaOfInterest{Geometries: []geom.T{box(5, 2, 15, 8)}, SRID: 2154}

	res, err := Intersecting(c, aoi)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://x/T1.copc.laz", "https://x/T2.copc.laz"}, res.URLs())
	assert.InDelta(t, 60e-6, res.AreaKm2, 1e-12)
	assert.Equal(t, 1, res.Union.NumPolygons())
}

func TestIntersecting_TouchingEdge(t *testing.T) {
	c := model.NewCatalog([]model.Tile{{URL: "https://x/A.laz", Geometry: box(0, 0, 10, 10)}})
	res, err := Intersecting(c, model.AreaOfInterest{Geometries: []geom.T{box(10, 0, 20, 10)}, SRID: 2154})
	require.NoError(t, err)
	assert.Len(t, res.Tiles, 1)
}

func TestIntersecting_Disjoint(t *testing.T) {
	res, err := Intersecting(grid(3, 10), model.AreaOfInterest{Geometries: []geom.T{box(500, 500, 600, 600)}, SRID: 2154})
	require.NoError(t, err)
	assert.Empty(t, res.Tiles)
}

func TestIntersecting_HoleExcludesTile(t *testing.T) {
	ring := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{
		{{0, 0}, {30, 0}, {30, 30}, {0, 30}, {0, 0}},
		{{5, 5}, {25, 5}, {25, 25}, {5, 25}, {5, 5}},
	})
	c := model.NewCatalog([]model.Tile{
		{URL: "https://x/inside-hole.laz", Geometry: box(12, 12, 18, 18)},
		{URL: "https://x/on-ring.laz", Geometry: box(-2, -2, 2, 2)},
	})
	res, err := Intersecting(c, model.AreaOfInterest{Geometries: []geom.T{ring}, SRID: 2154})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://x/on-ring.laz"}, res.URLs())
}

func TestIntersecting_ReprojectsCopy(t *testing.T) {
	// Lambert-93 square around (700000, 6600000), expressed in WGS84 degrees.
	c := model.NewCatalog([]model.Tile{{URL: "https://x/O.laz", Geometry: box(699500, 6599500, 700500, 6600500)}})
	wgs := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{
		{2.999, 46.499}, {3.001, 46.499}, {3.001, 46.501}, {2.999, 46.501}, {2.999, 46.499},
	}}).SetSRID(4326)
	before := append([]float64(nil), wgs.FlatCoords()...)

	res, err := Intersecting(c, model.AreaOfInterest{Geometries: []geom.T{wgs}, SRID: 4326})
	require.NoError(t, err)
	assert.Len(t, res.Tiles, 1)
	assert.Equal(t, model.WorkingSRID, res.Union.SRID())
	assert.Equal(t, before, wgs.FlatCoords())
	assert.Equal(t, 4326, wgs.SRID())
}

func TestIntersecting_MatchesBruteForce(t *testing.T) {
	c := grid(12, 100)
	rng := rand.New(rand.NewSource(7))

	for k := 0; k < 25; k++ {
		x, y := rng.Float64()*1200-100, rng.Float64()*1200-100
		w, h := rng.Float64()*300+1, rng.Float64()*300+1
		aoi := model.AreaOfInterest{
			Geometries: []geom.T{box(x, y, x+w, y+h), box(x+w/2, y-h/3, x+w*1.5, y+h/3)},
			SRID:       2154,
		}
		res, err := Intersecting(c, aoi)
		require.NoError(t, err)

		var want []string
		for _, tile := range c.Tiles() {
			if spatial.Intersects(tile.Geometry, res.Union) {
				want = append(want, tile.URL)
			}
		}
		got := res.URLs()
		if len(want) == 0 {
			assert.Empty(t, got)
			continue
		}
		assert.Equal(t, want, got, "case %d", k)
	}
}
