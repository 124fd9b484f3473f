package devcache

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"time"
)

type entryFile struct {
	path    string
	modTime time.Time
}

func (c *Cache) entryFiles() ([]entryFile, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, err
	}
	out := make([]entryFile, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, entryFile{path: filepath.Join(c.dir, e.Name()), modTime: info.ModTime()})
	}
	return out, nil
}

// manageSize runs before every save. When the file count exceeds the
// maximum it deletes the oldest files by mtime, overshooting the overage
// by a tenth of the maximum so the pass does not refire on every
// subsequent write.
func (c *Cache) manageSize() {
	if c.maxEntries <= 0 {
		return
	}
	files, err := c.entryFiles()
	if err != nil {
		c.log.Debug("size pass: list cache dir", "error", err)
		return
	}
	if len(files) <= c.maxEntries {
		return
	}

	slack := c.maxEntries / 10
	if slack < 1 {
		slack = 1
	}
	remove := len(files) - c.maxEntries + slack
	sort.Slice(files, func(i, j int) bool { return files[i].modTime.Before(files[j].modTime) })
	for _, f := range files[:remove] {
		if err := os.Remove(f.path); err != nil {
			c.log.Debug("size pass: remove entry", "path", f.path, "error", err)
		}
	}
	c.log.Debug("size pass evicted entries", "count", remove, "max", c.maxEntries)
}

// Warm opportunistically reads a handful of recently modified entries to
// pull them into the OS file cache. Content is discarded and every
// failure ignored; background use only.
func (c *Cache) Warm(_ context.Context) error {
	files, err := c.entryFiles()
	if err != nil {
		return nil
	}
	sort.Slice(files, func(i, j int) bool { return files[i].modTime.After(files[j].modTime) })
	if len(files) > warmReadLimit {
		files = files[:warmReadLimit]
	}
	for _, f := range files {
		os.ReadFile(f.path) //nolint:errcheck
	}
	return nil
}
