// Package fetcher downloads filings, vendor feeds and price files from the
// exchanges and decodes the CSV, ZIP, XLSX, XML and JSON payloads they come
// in.
package fetcher

import (
	"context"
	"io"
	"net/http"
)

// Fetcher downloads remote documents.
type Fetcher interface {
	// Download returns the body of a successful GET.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// Get reads a whole response with extra request headers. Non-200
	// responses return a *StatusError.
	Get(ctx context.Context, url string, header http.Header) ([]byte, error)
}
