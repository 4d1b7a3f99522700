package checker

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/ozinsight/ozcheck/internal/fetcher"
	"github.com/ozinsight/ozcheck/internal/zone"
)

// Source opens the checker geometry document.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
	String() string
}

// FileSource reads the document from a local path.
type FileSource struct {
	Path string
}

func (s FileSource) Open(_ context.Context) (io.ReadCloser, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, &zone.FetchError{URL: s.Path, Err: err}
	}
	return f, nil
}

func (s FileSource) String() string { return s.Path }

// URLSource downloads the document over HTTP.
type URLSource struct {
	URL     string
	Fetcher fetcher.Fetcher
}

func (s URLSource) Open(ctx context.Context) (io.ReadCloser, error) {
	rc, err := s.Fetcher.Download(ctx, s.URL)
	if err != nil {
		return nil, &zone.FetchError{URL: s.URL, Err: err}
	}
	return rc, nil
}

func (s URLSource) String() string { return s.URL }

// NewSource returns a URLSource for http(s) locations and a FileSource
// otherwise.
func NewSource(location string, f fetcher.Fetcher) Source {
	if isURL(location) {
		return URLSource{URL: location, Fetcher: f}
	}
	return FileSource{Path: location}
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
