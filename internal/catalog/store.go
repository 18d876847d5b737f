package catalog

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lidarhd/internal/gpkg"
	"github.com/sells-group/lidarhd/internal/model"
	"github.com/sells-group/lidarhd/internal/spatial"
)

const (
	filePrefix = "LidarHD_tiles_database_"
	fileExt    = ".gpkg"
	dateLayout = "2006-01-02"
)

// CatalogBuilder produces a fresh catalog from the remote service.
type CatalogBuilder interface {
	Build(ctx context.Context) (*model.Catalog, error)
}

// Generation is one dated catalog file on disk.
type Generation struct {
	Path string
	Date time.Time
}

// Store owns the catalog folder. It never deletes older generations.
type Store struct {
	dir     string
	builder CatalogBuilder
	now     func() time.Time
}

// NewStore creates a Store over dir. builder may be nil when the store is only read.
func NewStore(dir string, builder CatalogBuilder) *Store {
	return &Store{dir: dir, builder: builder, now: time.Now}
}

// Dir returns the catalog folder.
func (s *Store) Dir() string { return s.dir }

// FileName returns the catalog file name for the given day.
func FileName(day time.Time) string {
	return filePrefix + day.Format(dateLayout) + fileExt
}

// Resolve returns the catalog to use and the file it was loaded from:
//   - no generation on disk: build, save, load
//   - generation found, overwrite false: load it
//   - generation found, overwrite true: build a new generation, save, load
func (s *Store) Resolve(ctx context.Context, overwrite bool) (*model.Catalog, string, error) {
	log := zap.L().With(zap.String("component", "catalog.store"), zap.String("dir", s.dir))

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, "", eris.Wrapf(err, "catalog: create folder %s", s.dir)
	}

	existing, found, err := s.Discover()
	if err != nil {
		return nil, "", err
	}

	path := existing
	if found && !overwrite {
		log.Info("using existing catalog", zap.String("path", existing))
	} else {
		if found {
			log.Info("updating catalog", zap.String("previous", existing))
		} else {
			log.Info("no catalog on disk, downloading")
		}
		if path, err = s.Rebuild(ctx); err != nil {
			return nil, "", err
		}
	}

	c, err := Load(ctx, path)
	if err != nil {
		return nil, "", err
	}
	return c, path, nil
}

// Rebuild builds a new catalog and saves it as today's generation.
func (s *Store) Rebuild(ctx context.Context) (string, error) {
	if s.builder == nil {
		return "", eris.New("catalog: store has no builder")
	}
	c, err := s.builder.Build(ctx)
	if err != nil {
		return "", err
	}
	return s.Save(ctx, c)
}

// Save writes c as the generation for the current day. A same-day generation
// is replaced atomically (last write wins).
func (s *Store) Save(ctx context.Context, c *model.Catalog) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "catalog: create folder %s", s.dir)
	}
	path := filepath.Join(s.dir, FileName(s.now()))
	tmp := path + "." + uuid.New().String() + ".tmp"

	if err := gpkg.Write(ctx, tmp, model.WorkingSRID, c.Tiles()); err != nil {
		_ = os.Remove(tmp)
		return "", eris.Wrapf(err, "catalog: write %s", path)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", eris.Wrapf(err, "catalog: rename into %s", path)
	}

	zap.L().Info("catalog saved", zap.String("path", path), zap.Int("tiles", c.Len()))
	return path, nil
}

// Discover returns the most recent generation, if any.
func (s *Store) Discover() (string, bool, error) {
	gens, err := s.Generations()
	if err != nil {
		return "", false, err
	}
	if len(gens) == 0 {
		return "", false, nil
	}
	return gens[0].Path, true, nil
}

// Generations lists the dated catalog files, newest first. Names that do not
// carry a valid date are ignored.
func (s *Store) Generations() ([]Generation, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "catalog: list %s", s.dir)
	}

	var gens []Generation
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		day, ok := parseFileName(e.Name())
		if !ok {
			continue
		}
		gens = append(gens, Generation{Path: filepath.Join(s.dir, e.Name()), Date: day})
	}
	sort.Slice(gens, func(i, j int) bool {
		if !gens[i].Date.Equal(gens[j].Date) {
			return gens[i].Date.After(gens[j].Date)
		}
		return gens[i].Path > gens[j].Path
	})
	return gens, nil
}

func parseFileName(name string) (time.Time, bool) {
	if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileExt) {
		return time.Time{}, false
	}
	stamp := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileExt)
	day, err := time.Parse(dateLayout, stamp)
	if err != nil {
		return time.Time{}, false
	}
	return day, true
}

// Load reads a catalog file and reprojects its footprints into the working frame.
// It fails with model.ErrNotFound when path does not exist.
func Load(ctx context.Context, path string) (*model.Catalog, error) {
	if path == "" {
		return nil, eris.Wrap(model.ErrNotFound, "catalog: no catalog file")
	}
	layer, err := gpkg.Read(ctx, path)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: load %s", path)
	}

	tiles := layer.Tiles
	if layer.SRID != model.WorkingSRID {
		for i, t := range tiles {
			if t.Geometry == nil {
				continue
			}
			g, err := spatial.Transform(t.Geometry, layer.SRID, model.WorkingSRID)
			if err != nil {
				return nil, eris.Wrapf(err, "catalog: reproject %s", t.URL)
			}
			tiles[i].Geometry = g
		}
	}

	zap.L().Debug("catalog loaded", zap.String("path", path), zap.Int("tiles", len(tiles)))
	return model.NewCatalog(tiles), nil
}
