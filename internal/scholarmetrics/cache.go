package scholarmetrics

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/GhUserLiu/paperflow/internal/rank"
)

// fileCache memoizes journal metrics across runs. Journal-level indicators
// move slowly, so entries never expire; the file is the source of truth and
// is rewritten after every update. An empty path keeps the cache in memory
// only.
type fileCache struct {
	mu      sync.Mutex
	path    string
	entries map[string]rank.MetricSet
}

type cacheFile struct {
	Metadata cacheMetadata             `json:"metadata"`
	Metrics  map[string]rank.MetricSet `json:"metrics"`
}

type cacheMetadata struct {
	LastUpdated  string `json:"last_updated"`
	TotalEntries int    `json:"total_entries"`
	Version      string `json:"version"`
}

func newFileCache(path string) (*fileCache, error) {
	c := &fileCache{
		path:    path,
		entries: make(map[string]rank.MetricSet),
	}
	if path == "" {
		return c, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading metrics cache: %w", err)
	}

	var file cacheFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing metrics cache %s: %w", path, err)
	}
	if file.Metrics != nil {
		c.entries = file.Metrics
	}
	return c, nil
}

func (c *fileCache) get(key string) (rank.MetricSet, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.entries[key]
	return m, ok
}

func (c *fileCache) put(key string, metrics rank.MetricSet) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = metrics
	return c.persist()
}

// persist rewrites the cache file. Callers hold c.mu.
func (c *fileCache) persist() error {
	if c.path == "" {
		return nil
	}
	file := cacheFile{
		Metadata: cacheMetadata{
			LastUpdated:  time.Now().UTC().Format(time.RFC3339),
			TotalEntries: len(c.entries),
			Version:      "1.0",
		},
		Metrics: c.entries,
	}
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding metrics cache: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0o644); err != nil {
		return fmt.Errorf("writing metrics cache: %w", err)
	}
	return nil
}

func (c *fileCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
