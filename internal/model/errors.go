package model

import "github.com/rotisserie/eris"

// Failure causes surfaced to callers. Wrap them with eris and match with errors.Is.
var (
	// ErrNotFound is returned when a catalog file must be loaded but does not exist.
	ErrNotFound = eris.New("catalog file not found")

	// ErrNotLoaded is returned when a query runs before any catalog is available.
	ErrNotLoaded = eris.New("catalog is not loaded")

	// ErrInvalidArgument reports malformed caller input.
	ErrInvalidArgument = eris.New("invalid argument")

	// ErrEmptyResult is returned when no tile intersects the area of interest,
	// or when no catalog page returned data.
	ErrEmptyResult = eris.New("empty result")

	// ErrPipelineExecution wraps failures of the point-cloud read/merge/write engine.
	ErrPipelineExecution = eris.New("pipeline execution failed")
)
