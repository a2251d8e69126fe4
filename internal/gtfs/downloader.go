package gtfs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// feedFile is the name of the cached feed inside the downloader's directory.
const feedFile = "gtfs.zip"

// Downloader keeps a local copy of the GTFS zip, refreshing it only when the
// server reports a newer version.
type Downloader struct {
	client *http.Client
	url    string
	dir    string
	logger *slog.Logger
}

// NewDownloader creates a Downloader for the given GTFS URL, caching into dir.
func NewDownloader(url, dir string, logger *slog.Logger) *Downloader {
	return &Downloader{
		client: &http.Client{Timeout: 2 * time.Minute},
		url:    url,
		dir:    dir,
		logger: logger,
	}
}

// Path is where the cached feed lives.
func (d *Downloader) Path() string { return filepath.Join(d.dir, feedFile) }

// Download refreshes the cached feed and returns its path. The request is
// conditional on the cached file's modification time; a 304 keeps the file.
func (d *Downloader) Download(ctx context.Context) (string, error) {
	if err := os.MkdirAll(d.dir, 0755); err != nil {
		return "", fmt.Errorf("create dir: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, "GET", d.url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	cached, statErr := os.Stat(d.Path())
	if statErr == nil {
		req.Header.Set("If-Modified-Since", cached.ModTime().UTC().Format(http.TimeFormat))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("GET %s: %w", d.url, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified && statErr == nil:
		d.logger.Info("GTFS feed unchanged", "path", d.Path())
		return d.Path(), nil
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	written, err := d.replace(resp.Body)
	if err != nil {
		return "", err
	}
	if lm, err := http.ParseTime(resp.Header.Get("Last-Modified")); err == nil {
		os.Chtimes(d.Path(), lm, lm)
	}
	d.logger.Info("GTFS feed downloaded",
		"path", d.Path(),
		"size_mb", fmt.Sprintf("%.1f", float64(written)/(1024*1024)),
	)
	return d.Path(), nil
}

// replace writes body to a temp file and renames it over the cached feed, so a
// failed transfer never leaves a truncated zip behind.
func (d *Downloader) replace(body io.Reader) (int64, error) {
	tmp, err := os.CreateTemp(d.dir, "gtfs-*.zip.part")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	written, err := io.Copy(tmp, body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return 0, fmt.Errorf("write feed: %w", err)
	}
	if err := os.Rename(tmp.Name(), d.Path()); err != nil {
		os.Remove(tmp.Name())
		return 0, fmt.Errorf("install feed: %w", err)
	}
	return written, nil
}

// FetchStops refreshes the feed and returns its stops.
func (d *Downloader) FetchStops(ctx context.Context) ([]Stop, error) {
	path, err := d.Download(ctx)
	if err != nil {
		return nil, err
	}
	return LoadStops(path, d.logger)
}
