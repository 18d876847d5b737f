// Package fetcher performs paced, retried HTTP GETs against remote data services.
package fetcher

import (
	"context"
	"io"
)

// Fetcher downloads a remote resource.
type Fetcher interface {
	// Download returns the body of a successful response. The caller closes it.
	Download(ctx context.Context, url string) (io.ReadCloser, error)
}
