// Package retrieval turns an area of interest into a merged, clipped point
// cloud written to disk.
package retrieval

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lidarhd/internal/model"
	"github.com/sells-group/lidarhd/internal/pdal"
	"github.com/sells-group/lidarhd/internal/query"
	"github.com/sells-group/lidarhd/internal/spatial"
)

// Service downloads point clouds for areas of interest out of one catalog.
type Service struct {
	catalog *model.Catalog
	engine  pdal.Executor
}

// NewService creates a Service over a loaded catalog.
func NewService(c *model.Catalog, engine pdal.Executor) *Service {
	return &Service{catalog: c, engine: engine}
}

// Plan resolves the tiles for area and assembles the pipeline that would
// write them to outputPath, without running it.
func (s *Service) Plan(_ context.Context, area model.AreaOfInterest, outputPath string) (*pdal.Pipeline, *query.Result, error) {
	if !strings.HasSuffix(outputPath, pdal.OutputExt) {
		return nil, nil, eris.Wrapf(model.ErrInvalidArgument, "retrieval: output %q must end in %s", outputPath, pdal.OutputExt)
	}

	res, err := query.Intersecting(s.catalog, area)
	if err != nil {
		return nil, nil, err
	}
	if len(res.Tiles) == 0 {
		return nil, res, eris.Wrap(model.ErrEmptyResult, "retrieval: no tile intersects the area of interest")
	}

	clip, err := spatial.ClipWKT(res.Union)
	if err != nil {
		return nil, nil, err
	}
	p, err := pdal.Build(res.URLs(), clip, outputPath)
	if err != nil {
		return nil, nil, err
	}
	return p, res, nil
}

// Download plans and executes the pipeline. Engine failures are returned as is.
func (s *Service) Download(ctx context.Context, area model.AreaOfInterest, outputPath string) (*pdal.PointTable, error) {
	log := zap.L().With(zap.String("component", "retrieval"), zap.String("output", outputPath))

	p, res, err := s.Plan(ctx, area, outputPath)
	if err != nil {
		return nil, err
	}
	log.Info("downloading point cloud", zap.Int("tiles", len(res.Tiles)), zap.Float64("area_km2", res.AreaKm2))

	points, err := s.engine.Execute(ctx, p)
	if err != nil {
		return nil, err
	}
	log.Info("point cloud written", zap.Int("points", points.Len()))
	return points, nil
}
