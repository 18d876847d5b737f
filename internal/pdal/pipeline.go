// Package pdal builds declarative point-cloud pipelines and runs them with
// the PDAL engine.
package pdal

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lidarhd/internal/model"
)

// Stage types.
const (
	ReaderCOPC  = "readers.copc"
	FilterMerge = "filters.merge"
	WriterLAS   = "writers.las"
)

// OutputExt is the required extension of a pipeline output file.
const OutputExt = ".laz"

// Stage is one step of a pipeline. Unset options are omitted.
type Stage struct {
	Type        string `json:"type" yaml:"type"`
	Filename    string `json:"filename,omitempty" yaml:"filename,omitempty"`
	Polygon     string `json:"polygon,omitempty" yaml:"polygon,omitempty"`
	Compression string `json:"compression,omitempty" yaml:"compression,omitempty"`
}

// Pipeline is an ordered list of stages, serialised as {"pipeline": [...]}.
type Pipeline struct {
	Stages []Stage `json:"pipeline" yaml:"pipeline"`
}

// Build assembles one clipped reader per source, a merge stage when there is
// more than one source, and a compressed LAS writer.
func Build(sources []string, clipWKT, outputPath string) (*Pipeline, error) {
	if len(sources) == 0 {
		return nil, eris.Wrap(model.ErrEmptyResult, "pdal: no source to read")
	}
	if !strings.HasSuffix(outputPath, OutputExt) {
		return nil, eris.Wrapf(model.ErrInvalidArgument, "pdal: output %q must end in %s", outputPath, OutputExt)
	}

	stages := make([]Stage, 0, len(sources)+2)
	for _, src := range sources {
		stages = append(stages, Stage{Type: ReaderCOPC, Filename: src, Polygon: clipWKT})
	}
	if len(sources) > 1 {
		stages = append(stages, Stage{Type: FilterMerge})
	}
	stages = append(stages, Stage{Type: WriterLAS, Filename: outputPath, Compression: "true"})
	return &Pipeline{Stages: stages}, nil
}

// Readers returns the number of reader stages.
func (p *Pipeline) Readers() int {
	var n int
	for _, s := range p.Stages {
		if strings.HasPrefix(s.Type, "readers.") {
			n++
		}
	}
	return n
}

// Output returns the filename of the last writer stage.
func (p *Pipeline) Output() string {
	for i := len(p.Stages) - 1; i >= 0; i-- {
		if strings.HasPrefix(p.Stages[i].Type, "writers.") {
			return p.Stages[i].Filename
		}
	}
	return ""
}

// JSON renders the pipeline in the form accepted by `pdal pipeline`.
func (p *Pipeline) JSON() ([]byte, error) {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return nil, eris.Wrap(err, "pdal: marshal pipeline")
	}
	return data, nil
}
