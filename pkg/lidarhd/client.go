// Package lidarhd finds IGN LiDAR HD point-cloud tiles for an area of interest
// and downloads them as a single clipped, merged LAZ file.
//
// A Client resolves its tile catalog once, at construction: the newest dated
// GeoPackage in the catalog folder is reused unless overwrite is requested,
// in which case the whole catalog is fetched again from the WFS.
package lidarhd

import (
	"context"
	"time"

	"github.com/sells-group/lidarhd/internal/aoi"
	"github.com/sells-group/lidarhd/internal/catalog"
	"github.com/sells-group/lidarhd/internal/fetcher"
	"github.com/sells-group/lidarhd/internal/model"
	"github.com/sells-group/lidarhd/internal/pdal"
	"github.com/sells-group/lidarhd/internal/query"
	"github.com/sells-group/lidarhd/internal/retrieval"
	"github.com/sells-group/lidarhd/internal/wfs"
)

// Re-exported domain types.
type (
	Tile           = model.Tile
	AreaOfInterest = model.AreaOfInterest
	PointTable     = pdal.PointTable
	Pipeline       = pdal.Pipeline
	Result         = query.Result
)

// Errors callers can test with errors.Is.
var (
	ErrNotFound          = model.ErrNotFound
	ErrNotLoaded         = model.ErrNotLoaded
	ErrInvalidArgument   = model.ErrInvalidArgument
	ErrEmptyResult       = model.ErrEmptyResult
	ErrPipelineExecution = model.ErrPipelineExecution
)

// DefaultFolder is where catalogs are kept when no folder is given.
const DefaultFolder = "./lidarhd_data/"

// Option configures a Client.
type Option func(*settings)

type settings struct {
	folder    string
	overwrite bool
	wfs       wfs.Options
	builder   catalog.BuilderOptions
	http      fetcher.HTTPOptions
	pdalBin   string
	tempDir   string
	engine    pdal.Executor
}

// WithFolder sets the catalog folder. It is created if missing.
func WithFolder(dir string) Option {
	return func(s *settings) { s.folder = dir }
}

// WithOverwrite forces a fresh catalog download even when one is on disk.
func WithOverwrite(overwrite bool) Option {
	return func(s *settings) { s.overwrite = overwrite }
}

// WithBaseURL points the catalog fetch at another WFS GetFeature endpoint.
func WithBaseURL(u string) Option {
	return func(s *settings) { s.wfs.BaseURL = u }
}

// WithSRSName overrides the SRSNAME sent to the WFS.
func WithSRSName(name string) Option {
	return func(s *settings) { s.wfs.SRSName = name }
}

// WithOutputFormat overrides the OUTPUTFORMAT sent to the WFS.
func WithOutputFormat(format string) Option {
	return func(s *settings) { s.wfs.OutputFormat = format }
}

// WithPaging sets the page size, the page count and the number of pages fetched at once.
func WithPaging(pageSize, maxPages, concurrency int) Option {
	return func(s *settings) {
		s.builder = catalog.BuilderOptions{PageSize: pageSize, MaxPages: maxPages, Concurrency: concurrency}
	}
}

// WithHTTP tunes the WFS HTTP client.
func WithHTTP(userAgent string, timeout time.Duration, maxRetries int, ratePerSecond float64) Option {
	return func(s *settings) {
		s.http = fetcher.HTTPOptions{
			UserAgent:     userAgent,
			Timeout:       timeout,
			MaxRetries:    maxRetries,
			RatePerSecond: ratePerSecond,
		}
	}
}

// WithPDAL sets the pdal binary and the folder for its intermediate files.
func WithPDAL(binPath, tempDir string) Option {
	return func(s *settings) {
		s.pdalBin = binPath
		s.tempDir = tempDir
	}
}

func withExecutor(e pdal.Executor) Option {
	return func(s *settings) { s.engine = e }
}

// Client answers intersection and download requests against one catalog.
type Client struct {
	catalog *model.Catalog
	path    string
	service *retrieval.Service
}

// New resolves the catalog, downloading it when needed, and returns a ready Client.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	s := settings{folder: DefaultFolder}
	for _, opt := range opts {
		opt(&s)
	}
	if s.wfs.BaseURL == "" {
		s.wfs.BaseURL = wfs.DefaultBaseURL
	}
	if s.wfs.OutputFormat == "" {
		s.wfs.OutputFormat = "application/json"
	}
	if s.engine == nil {
		s.engine = pdal.NewCLIExecutor(s.pdalBin, s.tempDir)
	}

	pages := wfs.NewClient(fetcher.NewHTTPFetcher(s.http), s.wfs)
	store := catalog.NewStore(s.folder, catalog.NewBuilder(pages, s.builder))

	c, path, err := store.Resolve(ctx, s.overwrite)
	if err != nil {
		return nil, err
	}
	return &Client{
		catalog: c,
		path:    path,
		service: retrieval.NewService(c, s.engine),
	}, nil
}

// Catalog returns the loaded tile catalog.
func (c *Client) Catalog() *model.Catalog { return c.catalog }

// CatalogPath returns the GeoPackage the catalog was loaded from.
func (c *Client) CatalogPath() string { return c.path }

// Intersecting lists the tiles that intersect the area of interest.
func (c *Client) Intersecting(_ context.Context, area AreaOfInterest) (*Result, error) {
	return query.Intersecting(c.catalog, area)
}

// Plan returns the pipeline Download would run, without running it.
func (c *Client) Plan(ctx context.Context, area AreaOfInterest, outputPath string) (*Pipeline, *Result, error) {
	return c.service.Plan(ctx, area, outputPath)
}

// Download writes the points of every intersecting tile, clipped to the area
// of interest, to outputPath (a .laz file) and returns them.
func (c *Client) Download(ctx context.Context, area AreaOfInterest, outputPath string) (*PointTable, error) {
	return c.service.Download(ctx, area, outputPath)
}

// LoadAOI reads an area of interest from a .geojson, .json, .shp or .wkt file.
func LoadAOI(path string, srid int) (AreaOfInterest, error) {
	return aoi.Load(path, srid)
}

// BBox returns a rectangular area of interest.
func BBox(minX, minY, maxX, maxY float64, srid int) (AreaOfInterest, error) {
	return aoi.FromBBox(minX, minY, maxX, maxY, srid)
}
