package pool

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/ykondo/sshmux/internal/model"
	"github.com/ykondo/sshmux/internal/mux"
	"github.com/ykondo/sshmux/internal/registry"
	"github.com/ykondo/sshmux/internal/target"
)

const orphanDialTimeout = 500 * time.Millisecond

// Sweeper removes dead control sockets and orphaned registry rows. It is
// designed to run in the background: every file it touches may be rewritten
// concurrently by another invocation, so missing files and rows are never
// treated as errors.
type Sweeper struct {
	reg     *registry.Store
	sockets *mux.SocketStore
	checker *mux.Checker
	log     *slog.Logger
}

func NewSweeper(reg *registry.Store, sockets *mux.SocketStore, checker *mux.Checker, log *slog.Logger) *Sweeper {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Sweeper{reg: reg, sockets: sockets, checker: checker, log: log}
}

// Sweep walks every socket file, drops the dead ones together with their
// registry rows, and finally prunes rows whose socket is gone. The
// returned error is informational; callers running via the background
// runner swallow it.
func (s *Sweeper) Sweep(ctx context.Context) error {
	ids, err := s.sockets.List()
	if err != nil {
		return err
	}

	keep := make(map[model.ConnectionID]bool, len(ids))
	for _, id := range ids {
		raw, err := s.reg.TargetByID(ctx, id)
		if errors.Is(err, registry.ErrNotFound) {
			// Orphan socket: remove only when no live master holds it.
			if socketHeldOpen(s.sockets.Path(id)) {
				s.log.Debug("orphan socket still held open, keeping", "connection_id", string(id))
				continue
			}
			if err := s.sockets.Remove(id); err != nil {
				s.log.Debug("remove orphan socket", "connection_id", string(id), "error", err)
			}
			continue
		}
		if err != nil {
			s.log.Debug("resolve socket owner", "connection_id", string(id), "error", err)
			continue
		}

		tgt, err := target.Parse(raw)
		if err != nil {
			// Registry row with an unparsable target cannot be probed.
			s.removeDead(ctx, id)
			continue
		}
		if s.checker.QuickCheck(ctx, tgt) {
			keep[id] = true
			continue
		}
		s.removeDead(ctx, id)
	}

	pruned, err := s.reg.PruneMissing(ctx, keep)
	if err != nil {
		return err
	}
	if pruned > 0 {
		s.log.Debug("pruned socketless registry rows", "count", pruned)
	}
	return nil
}

func (s *Sweeper) removeDead(ctx context.Context, id model.ConnectionID) {
	if err := s.sockets.Remove(id); err != nil {
		s.log.Debug("remove dead socket", "connection_id", string(id), "error", err)
	}
	if err := s.reg.Unregister(ctx, id); err != nil {
		s.log.Debug("unregister dead connection", "connection_id", string(id), "error", err)
	}
}

// socketHeldOpen reports whether something is still accepting on the
// unix socket. A live control master accepts the dial; a leftover file
// refuses it.
func socketHeldOpen(path string) bool {
	conn, err := net.DialTimeout("unix", path, orphanDialTimeout)
	if err != nil {
		return false
	}
	conn.Close() //nolint:errcheck
	return true
}
