package catalog

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/lidarhd/internal/model"
)

func square(x, y, size float64) *geom.Polygon {
	return geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{
		{x, y}, {x + size, y}, {x + size, y + size}, {x, y + size}, {x, y},
	}}).SetSRID(model.WorkingSRID)
}

// fakePages serves a fixed map of offset -> tiles. Offsets not in the map fail.
type fakePages struct {
	mu      sync.Mutex
	pages   map[int][]model.Tile
	offsets []int
}

func (f *fakePages) FetchPage(_ context.Context, _ int, start int) ([]model.Tile, bool) {
	f.mu.Lock()
	f.offsets = append(f.offsets, start)
	f.mu.Unlock()
	tiles, ok := f.pages[start]
	if !ok || len(tiles) == 0 {
		return nil, false
	}
	return tiles, true
}

func TestBuilder_Offsets(t *testing.T) {
	b := NewBuilder(&fakePages{}, BuilderOptions{PageSize: 5000, MaxPages: 3})
	assert.Equal(t, []int{0, 5000, 10000}, b.Offsets())

	def := NewBuilder(&fakePages{}, BuilderOptions{})
	offsets := def.Offsets()
	require.Len(t, offsets, 100)
	assert.Equal(t, 495000, offsets[99])
}

func TestBuilder_Build_SkipsFailedPages(t *testing.T) {
	pages := &fakePages{pages: map[int][]model.Tile{
		0: {
			{URL: "https://x/A.copc.laz", Geometry: square(0, 0, 1)},
			{URL: "https://x/B.copc.laz", Geometry: square(1, 0, 1)},
		},
		20: {{URL: "https://x/C.copc.laz", Geometry: square(2, 0, 1)}},
	}}
	b := NewBuilder(pages, BuilderOptions{PageSize: 10, MaxPages: 4, Concurrency: 2})

	c, err := b.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, c.Len())

	var urls, blocs []string
	for _, tile := range c.Tiles() {
		urls = append(urls, tile.URL)
		blocs = append(blocs, tile.Bloc)
	}
	sort.Strings(urls)
	sort.Strings(blocs)
	assert.Equal(t, []string{"https://x/A.copc.laz", "https://x/B.copc.laz", "https://x/C.copc.laz"}, urls)
	assert.Equal(t, []string{"A", "B", "C"}, blocs)

	sort.Ints(pages.offsets)
	assert.Equal(t, []int{0, 10, 20, 30}, pages.offsets)
}

func TestBuilder_Build_NoData(t *testing.T) {
	b := NewBuilder(&fakePages{}, BuilderOptions{PageSize: 10, MaxPages: 3})
	_, err := b.Build(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrEmptyResult))
}

func TestBuilder_Build_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pages := &fakePages{pages: map[int][]model.Tile{0: {{URL: "https://x/A.laz", Geometry: square(0, 0, 1)}}}}
	_, err := NewBuilder(pages, BuilderOptions{PageSize: 10, MaxPages: 2}).Build(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
