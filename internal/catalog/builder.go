// Package catalog builds the LiDAR HD tile catalog from the WFS and manages its dated
// GeoPackage generations on disk.
package catalog

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/lidarhd/internal/model"
)

// PageFetcher returns one page of tiles; ok is false when the page failed or was empty.
type PageFetcher interface {
	FetchPage(ctx context.Context, pageSize, startOffset int) (tiles []model.Tile, ok bool)
}

// BuilderOptions bounds the pagination. The catalog is truncated if the
// remote collection holds more than PageSize*MaxPages features.
type BuilderOptions struct {
	PageSize    int
	MaxPages    int
	Concurrency int
}

// Builder fetches every page of the remote collection concurrently.
type Builder struct {
	pages PageFetcher
	opts  BuilderOptions
}

// NewBuilder creates a Builder. Zero options fall back to 5000 tiles x 100 pages on 12 workers.
func NewBuilder(pages PageFetcher, opts BuilderOptions) *Builder {
	if opts.PageSize <= 0 {
		opts.PageSize = 5000
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 100
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 12
	}
	return &Builder{pages: pages, opts: opts}
}

// Offsets lists the start index of every page requested: (n-1)*PageSize for n in 1..MaxPages.
func (b *Builder) Offsets() []int {
	offsets := make([]int, b.opts.MaxPages)
	for n := 1; n <= b.opts.MaxPages; n++ {
		offsets[n-1] = (n - 1) * b.opts.PageSize
	}
	return offsets
}

// Build fetches all pages and concatenates the ones that returned data, in
// completion order. It fails with model.ErrEmptyResult when no page did.
func (b *Builder) Build(ctx context.Context) (*model.Catalog, error) {
	log := zap.L().With(zap.String("component", "catalog.builder"))
	offsets := b.Offsets()
	start := time.Now()

	log.Info("fetching tile pages",
		zap.Int("pages", len(offsets)),
		zap.Int("page_size", b.opts.PageSize),
		zap.Int("workers", b.opts.Concurrency),
	)

	var (
		mu     sync.Mutex
		chunks [][]model.Tile
		done   atomic.Int64
		filled atomic.Int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.Concurrency)

	for _, offset := range offsets {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			tiles, ok := b.pages.FetchPage(gctx, b.opts.PageSize, offset)
			n := done.Add(1)
			if ok {
				filled.Add(1)
				mu.Lock()
				chunks = append(chunks, tiles)
				mu.Unlock()
			}
			if n%10 == 0 || int(n) == len(offsets) {
				log.Debug("fetching tile pages", zap.Int64("done", n), zap.Int("total", len(offsets)))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "catalog: fetch pages")
	}

	if len(chunks) == 0 {
		return nil, eris.Wrap(model.ErrEmptyResult, "catalog: no page returned data")
	}
	if int(filled.Load()) == len(offsets) {
		log.Warn("every requested page returned data, catalog may be truncated",
			zap.Int("max_pages", b.opts.MaxPages),
			zap.Int("page_size", b.opts.PageSize),
		)
	}

	var total int
	for _, c := range chunks {
		total += len(c)
	}
	tiles := make([]model.Tile, 0, total)
	for _, c := range chunks {
		for _, t := range c {
			t.Bloc = model.BlocFromURL(t.URL)
			tiles = append(tiles, t)
		}
	}

	log.Info("tile pages fetched",
		zap.Int64("pages_with_data", filled.Load()),
		zap.Int("tiles", len(tiles)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return model.NewCatalog(tiles), nil
}
