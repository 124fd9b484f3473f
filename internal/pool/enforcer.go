package pool

import (
	"context"
	"log/slog"

	"github.com/ykondo/sshmux/internal/background"
	"github.com/ykondo/sshmux/internal/mux"
	"github.com/ykondo/sshmux/internal/registry"
)

// Enforcer applies the hard cap on live connections. It is invoked at
// startup and after every registration; concurrent invocations may evict
// redundantly, which is safe because removals are idempotent.
type Enforcer struct {
	reg     *registry.Store
	sockets *mux.SocketStore
	sweeper *Sweeper
	bg      *background.Runner
	log     *slog.Logger
}

func NewEnforcer(reg *registry.Store, sockets *mux.SocketStore, sweeper *Sweeper, bg *background.Runner, log *slog.Logger) *Enforcer {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Enforcer{reg: reg, sockets: sockets, sweeper: sweeper, bg: bg, log: log}
}

// EnforceCapacity evicts the oldest registry rows and their sockets until
// at most max connections remain, then schedules a background sweep to
// catch anything the evictions left behind. Errors are logged; capacity
// enforcement never fails the caller's registration.
func (e *Enforcer) EnforceCapacity(ctx context.Context, max int) {
	if max <= 0 {
		return
	}
	count, err := e.reg.Count(ctx)
	if err != nil {
		e.log.Warn("count connections", "error", err)
		return
	}
	if count <= max {
		return
	}

	victims, err := e.reg.Oldest(ctx, count-max)
	if err != nil {
		e.log.Warn("select eviction candidates", "error", err)
		return
	}
	for _, row := range victims {
		if err := e.sockets.Remove(row.ConnectionID); err != nil {
			e.log.Warn("evict socket", "connection_id", string(row.ConnectionID), "error", err)
		}
		if err := e.reg.Unregister(ctx, row.ConnectionID); err != nil {
			e.log.Warn("evict registry row", "connection_id", string(row.ConnectionID), "error", err)
			continue
		}
		e.log.Info("evicted connection over capacity", "target", row.Target, "registered_at", row.RegisteredAt)
	}

	if e.bg != nil && e.sweeper != nil {
		e.bg.Spawn("sweep", e.sweeper.Sweep)
	}
}
