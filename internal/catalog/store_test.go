package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lidarhd/internal/gpkg"
	"github.com/sells-group/lidarhd/internal/model"
)

type countingBuilder struct {
	calls int
	tiles []model.Tile
	err   error
}

func (b *countingBuilder) Build(context.Context) (*model.Catalog, error) {
	b.calls++
	if b.err != nil {
		return nil, b.err
	}
	return model.NewCatalog(b.tiles), nil
}

func testTiles() []model.Tile {
	return []model.Tile{
		{URL: "https://x/T1.copc.laz", Bloc: "T1", Geometry: square(0, 0, 10)},
		{URL: "https://x/T2.copc.laz", Bloc: "T2", Geometry: square(10, 0, 10)},
	}
}

func fixedDay(s string) func() time.Time {
	return func() time.Time {
		d, _ := time.Parse("2006-01-02", s)
		return d
	}
}

func TestFileName(t *testing.T) {
	day := time.Date(2025, 3, 7, 15, 4, 5, 0, time.UTC)
	assert.Equal(t, "LidarHD_tiles_database_2025-03-07.gpkg", FileName(day))
}

func TestResolve_BuildsWhenMissing(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "catalog")
	b := &countingBuilder{tiles: testTiles()}
	s := NewStore(dir, b)
	s.now = fixedDay("2025-01-02")

	c, path, err := s.Resolve(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, b.calls)
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, filepath.Join(dir, "LidarHD_tiles_database_2025-01-02.gpkg"), path)
	assert.FileExists(t, path)
}

func TestResolve_ReusesExisting(t *testing.T) {
	dir := t.TempDir()
	b := &countingBuilder{tiles: testTiles()}
	s := NewStore(dir, b)
	s.now = fixedDay("2025-01-02")

	_, first, err := s.Resolve(context.Background(), false)
	require.NoError(t, err)

	s.now = fixedDay("2025-02-01")
	c, second, err := s.Resolve(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, b.calls)
	assert.Equal(t, first, second)
	assert.Equal(t, 2, c.Len())
}

func TestResolve_OverwriteAddsGeneration(t *testing.T) {
	dir := t.TempDir()
	b := &countingBuilder{tiles: testTiles()}
	s := NewStore(dir, b)
	s.now = fixedDay("2025-01-02")
	_, old, err := s.Resolve(context.Background(), false)
	require.NoError(t, err)

	b.tiles = testTiles()[:1]
	s.now = fixedDay("2025-03-04")
	c, path, err := s.Resolve(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 2, b.calls)
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, filepath.Join(dir, "LidarHD_tiles_database_2025-03-04.gpkg"), path)
	assert.FileExists(t, old)

	gens, err := s.Generations()
	require.NoError(t, err)
	require.Len(t, gens, 2)
	assert.Equal(t, path, gens[0].Path)
}

func TestResolve_SameDayOverwriteReplaces(t *testing.T) {
	dir := t.TempDir()
	b := &countingBuilder{tiles: testTiles()}
	s := NewStore(dir, b)
	s.now = fixedDay("2025-01-02")

	_, _, err := s.Resolve(context.Background(), false)
	require.NoError(t, err)
	b.tiles = testTiles()[1:]
	c, _, err := s.Resolve(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, "T2", c.Tile(0).Bloc)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestResolve_BuildError(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, &countingBuilder{err: model.ErrEmptyResult})
	_, _, err := s.Resolve(context.Background(), false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrEmptyResult))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDiscover_PicksNewest(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"LidarHD_tiles_database_2024-12-31.gpkg",
		"LidarHD_tiles_database_2025-06-01.gpkg",
		"LidarHD_tiles_database_2025-01-15.gpkg",
		"LidarHD_tiles_database_latest.gpkg",
		"notes.txt",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}

	path, found, err := NewStore(dir, nil).Discover()
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, filepath.Join(dir, "LidarHD_tiles_database_2025-06-01.gpkg"), path)

	gens, err := NewStore(dir, nil).Generations()
	require.NoError(t, err)
	assert.Len(t, gens, 3)
}

func TestDiscover_MissingFolder(t *testing.T) {
	_, found, err := NewStore(filepath.Join(t.TempDir(), "absent"), nil).Discover()
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRebuild_NoBuilder(t *testing.T) {
	_, err := NewStore(t.TempDir(), nil).Rebuild(context.Background())
	assert.Error(t, err)
}

func TestLoad_NotFound(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "missing.gpkg"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrNotFound))

	_, err = Load(context.Background(), "")
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestLoad_ReprojectsToWorkingFrame(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "mercator.gpkg")

	// Web Mercator square near Paris.
	merc := square(261000, 6250000, 1000).SetSRID(3857)
	require.NoError(t, gpkg.Write(ctx, path, 3857, []model.Tile{{URL: "https://x/P.laz", Bloc: "P", Geometry: merc}}))

	c, err := Load(ctx, path)
	require.NoError(t, err)
	require.Equal(t, 1, c.Len())

	g := c.Tile(0).Geometry
	assert.Equal(t, model.WorkingSRID, g.SRID())
	b := g.Bounds()
	assert.InDelta(t, 652000, b.Min(0), 5000)
	assert.InDelta(t, 6862000, b.Min(1), 5000)
}
