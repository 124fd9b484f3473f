// Package background spawns best-effort asynchronous jobs. Jobs are
// detached from the caller's request path: they never block a foreground
// operation, have no ordering guarantee relative to it, and their errors
// are logged and swallowed, never propagated.
package background

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

type Runner struct {
	log *slog.Logger
	wg  sync.WaitGroup
}

func New(log *slog.Logger) *Runner {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Runner{log: log}
}

// Spawn launches fn on its own goroutine with a fresh detached context.
// Panics are recovered; a returned error is logged at debug level under
// the job's run id and otherwise ignored.
func (r *Runner) Spawn(name string, fn func(ctx context.Context) error) {
	runID := uuid.NewString()
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if p := recover(); p != nil {
				r.log.Warn("background job panicked", "job", name, "run_id", runID, "panic", p)
			}
		}()
		if err := fn(context.Background()); err != nil {
			r.log.Debug("background job failed", "job", name, "run_id", runID, "error", err)
		}
	}()
}

// Wait blocks until all spawned jobs finish. Shutdown and test support
// only; foreground paths never call it.
func (r *Runner) Wait() {
	r.wg.Wait()
}
