// Package fetcher downloads collaborator data (directory listings, locality
// datasets) over HTTP and streams CSV payloads.
package fetcher

import (
	"context"
	"io"
)

// Fetcher downloads remote documents.
type Fetcher interface {
	// Download fetches url and returns the response body. The caller closes it.
	Download(ctx context.Context, url string) (io.ReadCloser, error)
}
