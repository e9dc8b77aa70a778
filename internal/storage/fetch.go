package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strings"
)

// Fetcher resolves a query media reference to a local file. Local paths
// pass through; http(s) URLs are downloaded to a temp file the caller
// must remove.
type Fetcher struct {
	client *http.Client
	tmpDir string
}

// NewFetcher creates a fetcher. timeout bounds the whole download.
func NewFetcher(client *http.Client, tmpDir string) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{client: client, tmpDir: tmpDir}
}

// Fetch returns a local path for ref and whether the caller owns a temp
// file that should be removed after use.
func (f *Fetcher) Fetch(ctx context.Context, ref string) (localPath string, cleanup func(), err error) {
	if !strings.HasPrefix(ref, "http://") && !strings.HasPrefix(ref, "https://") {
		if _, statErr := os.Stat(ref); statErr != nil {
			return "", nil, fmt.Errorf("local media %s: %w", ref, statErr)
		}
		return ref, func() {}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, http.NoBody)
	if err != nil {
		return "", nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("download %s: %w", ref, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("download %s: unexpected status %d", ref, resp.StatusCode)
	}

	if err := os.MkdirAll(f.tmpDir, 0o750); err != nil {
		return "", nil, fmt.Errorf("create tmp dir: %w", err)
	}

	tmp, err := os.CreateTemp(f.tmpDir, "query-*"+path.Ext(ref))
	if err != nil {
		return "", nil, fmt.Errorf("create temp file: %w", err)
	}

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", nil, fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", nil, fmt.Errorf("close temp file: %w", err)
	}

	name := tmp.Name()
	return name, func() { _ = os.Remove(name) }, nil
}
