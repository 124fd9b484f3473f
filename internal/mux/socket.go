package mux

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ykondo/sshmux/internal/model"
)

// SocketStore is the filesystem area holding one control socket per
// connection id. Presence of a socket file is never proof of a live
// session; callers must go through the health checker.
type SocketStore struct {
	dir string
}

func NewSocketStore(dir string) (*SocketStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create socket dir: %w", err)
	}
	return &SocketStore{dir: dir}, nil
}

func (s *SocketStore) Dir() string {
	return s.dir
}

func (s *SocketStore) Path(id model.ConnectionID) string {
	return filepath.Join(s.dir, string(id)+".sock")
}

func (s *SocketStore) Exists(id model.ConnectionID) bool {
	_, err := os.Lstat(s.Path(id))
	return err == nil
}

// Remove deletes the socket file. Missing files are not an error.
func (s *SocketStore) Remove(id model.ConnectionID) error {
	err := os.Remove(s.Path(id))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove socket %s: %w", id, err)
	}
	return nil
}

// FreshWithin reports whether the socket file's mtime is younger than
// window. Used by the quick health check to skip a round trip.
func (s *SocketStore) FreshWithin(id model.ConnectionID, window time.Duration) bool {
	info, err := os.Lstat(s.Path(id))
	if err != nil {
		return false
	}
	return time.Since(info.ModTime()) < window
}

// List returns the connection ids of every socket file present.
func (s *SocketStore) List() ([]model.ConnectionID, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read socket dir: %w", err)
	}
	out := make([]model.ConnectionID, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if filepath.Ext(name) != ".sock" {
			continue
		}
		out = append(out, model.ConnectionID(name[:len(name)-len(".sock")]))
	}
	return out, nil
}

// Await blocks until the socket file for id appears, the timeout elapses,
// or ctx is cancelled. It watches the directory with fsnotify and keeps a
// ticker fallback at the given interval in case the create event is
// missed (the ssh client may bind the socket before the watch starts).
func (s *SocketStore) Await(ctx context.Context, id model.ConnectionID, timeout, interval time.Duration) error {
	if s.Exists(id) {
		return nil
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(interval)
	defer tick.Stop()

	var events chan fsnotify.Event
	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		defer watcher.Close() //nolint:errcheck
		if err := watcher.Add(s.dir); err == nil {
			events = watcher.Events
		}
	}

	want := s.Path(id)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("%w: socket %s did not appear within %s", model.ErrConnectionTimeout, id, timeout)
		case ev := <-events:
			if ev.Name == want && ev.Op.Has(fsnotify.Create) {
				return nil
			}
		case <-tick.C:
			if s.Exists(id) {
				return nil
			}
		}
	}
}
