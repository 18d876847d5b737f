package pdal

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lidarhd/internal/model"
)

// PointTable is the in-memory result of a pipeline run: one row per point,
// one column per dimension.
type PointTable struct {
	Columns []string
	Rows    [][]float64
}

// Len returns the number of points.
func (t *PointTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Column returns the index of a dimension, matched case-insensitively, or -1.
func (t *PointTable) Column(name string) int {
	for i, c := range t.Columns {
		if strings.EqualFold(c, name) {
			return i
		}
	}
	return -1
}

// Executor runs a pipeline to completion and returns the points it wrote.
type Executor interface {
	Execute(ctx context.Context, p *Pipeline) (*PointTable, error)
}

// CLIExecutor runs pipelines through the pdal command-line tool.
type CLIExecutor struct {
	binPath string
	tempDir string
}

// NewCLIExecutor creates a CLIExecutor. If binPath is empty, "pdal" is used.
// Intermediate files go to tempDir, or the system temp dir when empty.
func NewCLIExecutor(binPath, tempDir string) *CLIExecutor {
	if binPath == "" {
		binPath = "pdal"
	}
	return &CLIExecutor{binPath: binPath, tempDir: tempDir}
}

// Execute writes the pipeline to a temporary file, runs `pdal pipeline` on
// it, then reads the written output back as CSV through `pdal translate`.
func (e *CLIExecutor) Execute(ctx context.Context, p *Pipeline) (*PointTable, error) {
	log := zap.L().With(zap.String("component", "pdal"))

	out := p.Output()
	if out == "" {
		return nil, eris.Wrap(model.ErrInvalidArgument, "pdal: pipeline has no writer stage")
	}
	data, err := p.JSON()
	if err != nil {
		return nil, err
	}

	base := filepath.Join(e.dir(), "lidarhd-"+uuid.New().String())
	spec, csvPath := base+".json", base+".csv"
	if err := os.WriteFile(spec, data, 0o600); err != nil {
		return nil, eris.Wrap(err, "pdal: write pipeline file")
	}
	defer func() { _ = os.Remove(spec) }()
	defer func() { _ = os.Remove(csvPath) }()

	start := time.Now()
	log.Info("running pipeline", zap.Int("readers", p.Readers()), zap.String("output", out))
	if err := e.run(ctx, "pipeline", spec); err != nil {
		return nil, err
	}
	log.Info("pipeline finished", zap.Duration("elapsed", time.Since(start)))

	if err := e.run(ctx, "translate", out, csvPath); err != nil {
		return nil, err
	}
	f, err := os.Open(csvPath)
	if err != nil {
		return nil, eris.Wrap(err, "pdal: open point export")
	}
	defer f.Close() //nolint:errcheck

	return readPoints(ctx, f)
}

func (e *CLIExecutor) dir() string {
	if e.tempDir != "" {
		return e.tempDir
	}
	return os.TempDir()
}

func (e *CLIExecutor) run(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, e.binPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return eris.Wrapf(model.ErrPipelineExecution, "pdal %s: %v: %s",
			args[0], err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// readPoints parses `pdal translate` text output: a header of dimension
// names followed by one numeric row per point. ctx is checked every
// checkEvery rows so a cancelled download stops a long parse.
func readPoints(ctx context.Context, r io.Reader) (*PointTable, error) {
	const checkEvery = 4096

	cr := csv.NewReader(r)
	cr.ReuseRecord = true
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return &PointTable{}, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "pdal: read point export header")
	}
	table := &PointTable{Columns: make([]string, len(header))}
	for i, h := range header {
		table.Columns[i] = strings.TrimSpace(h)
	}

	for n := 0; ; n++ {
		if n%checkEvery == 0 && ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "pdal: read point export")
		}
		rec, err := cr.Read()
		if err == io.EOF {
			return table, nil
		}
		if err != nil {
			return nil, eris.Wrapf(model.ErrPipelineExecution, "pdal: point export row %d: %v", n+1, err)
		}
		row := make([]float64, len(rec))
		for i, v := range rec {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, eris.Wrapf(model.ErrPipelineExecution, "pdal: non-numeric value %q in point export", v)
			}
			row[i] = f
		}
		table.Rows = append(table.Rows, row)
	}
}
