// Package devcache persists per-target device-type classifications as one
// JSON file per connection id. Entries carry a format version and expire
// after a TTL; anything unreadable is treated as a miss and deleted, so a
// corrupt cache can only ever force re-detection, never a hard failure.
package devcache

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ykondo/sshmux/internal/config"
	"github.com/ykondo/sshmux/internal/model"
	"github.com/ykondo/sshmux/internal/target"
)

// FormatVersion stamps every entry; entries from other versions are
// discarded on load.
const FormatVersion = 2

const warmReadLimit = 8

type Cache struct {
	dir        string
	ttl        time.Duration
	maxEntries int
	log        *slog.Logger
	now        func() time.Time
}

func New(cfg config.Config, log *slog.Logger) (*Cache, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if err := os.MkdirAll(cfg.CacheDir, 0o700); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Cache{
		dir:        cfg.CacheDir,
		ttl:        cfg.CacheTTL,
		maxEntries: cfg.CacheMaxEntries,
		log:        log,
		now:        time.Now,
	}, nil
}

func (c *Cache) path(tgt string) (string, error) {
	id, err := target.DeriveID(tgt)
	if err != nil {
		return "", err
	}
	return filepath.Join(c.dir, string(id)+".json"), nil
}

// Save writes the classification atomically: temp file in the same
// directory, then rename over the destination, so a reader never sees a
// half-written entry. A size-management pass runs first.
func (c *Cache) Save(tgt, deviceType string, method model.DetectionMethod) error {
	path, err := c.path(tgt)
	if err != nil {
		return err
	}
	c.manageSize()

	entry := model.CacheEntry{
		DeviceType: deviceType,
		DetectedAt: c.now().UTC(),
		Method:     method,
		Version:    FormatVersion,
		Target:     tgt,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("%w: encode entry for %s: %v", model.ErrCacheWrite, tgt, err)
	}

	tmp, err := os.CreateTemp(c.dir, ".entry-*")
	if err != nil {
		return fmt.Errorf("%w: create temp for %s: %v", model.ErrCacheWrite, tgt, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()        //nolint:errcheck
		os.Remove(tmpName) //nolint:errcheck
		return fmt.Errorf("%w: write temp for %s: %v", model.ErrCacheWrite, tgt, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName) //nolint:errcheck
		return fmt.Errorf("%w: close temp for %s: %v", model.ErrCacheWrite, tgt, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName) //nolint:errcheck
		return fmt.Errorf("%w: rename entry for %s: %v", model.ErrCacheWrite, tgt, err)
	}
	return nil
}

// Load returns the entry for the target. Absent, unreadable, empty,
// structurally invalid or version-mismatched files are a miss, and the
// offending file is deleted as a side effect.
func (c *Cache) Load(tgt string) (model.CacheEntry, bool) {
	path, err := c.path(tgt)
	if err != nil {
		return model.CacheEntry{}, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			c.log.Debug("discarding unreadable cache entry", "target", tgt, "path", path)
			os.Remove(path) //nolint:errcheck
		}
		return model.CacheEntry{}, false
	}

	var entry model.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil || !validEntry(entry) {
		c.log.Debug("discarding invalid cache entry", "target", tgt, "path", path)
		os.Remove(path) //nolint:errcheck
		return model.CacheEntry{}, false
	}
	return entry, true
}

func validEntry(e model.CacheEntry) bool {
	return e.DeviceType != "" &&
		!e.DetectedAt.IsZero() &&
		e.Method != "" &&
		e.Version == FormatVersion &&
		e.Target != ""
}

// IsExpired treats anything unloadable as expired: unreadable state
// forces re-detection rather than being trusted.
func (c *Cache) IsExpired(tgt string) bool {
	entry, ok := c.Load(tgt)
	if !ok {
		return true
	}
	return c.now().Sub(entry.DetectedAt) > c.ttl
}

// GetValid returns the device type only for a loadable, unexpired entry.
func (c *Cache) GetValid(tgt string) (string, error) {
	entry, ok := c.Load(tgt)
	if !ok || c.now().Sub(entry.DetectedAt) > c.ttl {
		return "", fmt.Errorf("%w: %s", model.ErrDeviceTypeNotCached, tgt)
	}
	return entry.DeviceType, nil
}

// CachedType adapts GetValid for the connection listing: empty string
// when nothing valid is cached.
func (c *Cache) CachedType(tgt string) string {
	dt, err := c.GetValid(tgt)
	if err != nil {
		return ""
	}
	return dt
}

// Clear removes the entry for the target; clearing a missing entry is a
// no-op.
func (c *Cache) Clear(tgt string) error {
	path, err := c.path(tgt)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clear cache entry for %s: %w", tgt, err)
	}
	return nil
}

// List returns every parseable entry, expired ones included.
func (c *Cache) List() ([]model.CacheEntry, error) {
	files, err := c.entryFiles()
	if err != nil {
		return nil, err
	}
	out := make([]model.CacheEntry, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(f.path)
		if err != nil {
			continue
		}
		var entry model.CacheEntry
		if err := json.Unmarshal(data, &entry); err != nil || !validEntry(entry) {
			continue
		}
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DetectedAt.After(out[j].DetectedAt) })
	return out, nil
}

// Stats partitions the stored entries and reports the cache settings.
type Stats struct {
	Valid   int
	Expired int
	Invalid int
	TTL     time.Duration
	Dir     string
}

func (c *Cache) Stats() (Stats, error) {
	files, err := c.entryFiles()
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{TTL: c.ttl, Dir: c.dir}
	for _, f := range files {
		data, err := os.ReadFile(f.path)
		if err != nil {
			stats.Invalid++
			continue
		}
		var entry model.CacheEntry
		if err := json.Unmarshal(data, &entry); err != nil || !validEntry(entry) {
			stats.Invalid++
			continue
		}
		if c.now().Sub(entry.DetectedAt) > c.ttl {
			stats.Expired++
		} else {
			stats.Valid++
		}
	}
	return stats, nil
}

// Purge deletes every entry file. Administrative.
func (c *Cache) Purge() (int, error) {
	files, err := c.entryFiles()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, f := range files {
		if err := os.Remove(f.path); err == nil {
			removed++
		}
	}
	return removed, nil
}
