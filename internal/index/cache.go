// Package index turns a quarterly EDGAR form index into a sequence of
// filing references: it caches the raw index on disk, parses matching
// lines and applies the allow-list or count selection.
package index

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/seenimoa/form13f/internal/sec"
)

// IndexFetcher downloads an index file; dest must appear only when complete.
type IndexFetcher interface {
	BaseURL() string
	FetchIndex(ctx context.Context, url, dest string) error
}

// Cache stores one index file per (year, quarter) in dir. Entries are
// written once and never refreshed.
type Cache struct {
	dir     string
	fetcher IndexFetcher
	group   singleflight.Group
	logger  *slog.Logger
}

// NewCache creates a cache rooted at dir.
func NewCache(dir string, fetcher IndexFetcher, logger *slog.Logger) *Cache {
	if dir == "" {
		dir = "."
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		dir:     dir,
		fetcher: fetcher,
		logger:  logger.With("component", "index"),
	}
}

// Path returns the cache file for a year and quarter.
func (c *Cache) Path(year int, q sec.Quarter) string {
	return filepath.Join(c.dir, fmt.Sprintf("index_%d_%s.txt", year, q))
}

// Get returns the raw index bytes, downloading them on the first miss.
func (c *Cache) Get(ctx context.Context, year int, q sec.Quarter) ([]byte, error) {
	path := c.Path(year, q)
	data, err := os.ReadFile(path)
	if err == nil {
		c.logger.Debug("index cache hit", "path", path, "bytes", len(data))
		return data, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read index cache %s: %w", path, err)
	}

	v, err, _ := c.group.Do(path, func() (any, error) {
		return c.populate(ctx, year, q, path)
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// populate downloads into a uniquely named staging file and renames it
// over path, so concurrent runs never observe a partial entry.
func (c *Cache) populate(ctx context.Context, year int, q sec.Quarter, path string) ([]byte, error) {
	if data, err := os.ReadFile(path); err == nil {
		return data, nil
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create index cache dir: %w", err)
	}

	stage := filepath.Join(c.dir, "."+filepath.Base(path)+"."+uuid.NewString())
	defer os.Remove(stage)

	url := sec.IndexURL(c.fetcher.BaseURL(), year, q)
	c.logger.Info("downloading index", "url", url, "path", path)
	if err := c.fetcher.FetchIndex(ctx, url, stage); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(stage)
	if err != nil {
		return nil, fmt.Errorf("read staged index: %w", err)
	}
	if err := os.Rename(stage, path); err != nil {
		return nil, fmt.Errorf("install index cache %s: %w", path, err)
	}
	c.logger.Info("index cached", "path", path, "bytes", len(data))
	return data, nil
}
