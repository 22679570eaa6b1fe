// Package fetcher downloads research dataset files over HTTP and FTP and
// parses the CSV, XLSX, and ZIP containers vendors ship them in.
package fetcher

import (
	"context"
	"io"
)

// Fetcher defines the interface for downloading remote dataset files.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL and writes it to the given path. Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}
