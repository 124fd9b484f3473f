package background

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

func TestSpawnRunsJobToCompletion(t *testing.T) {
	r := New(nil)
	var ran atomic.Bool
	r.Spawn("noop", func(context.Context) error {
		ran.Store(true)
		return nil
	})
	r.Wait()
	if !ran.Load() {
		t.Fatal("job did not run")
	}
}

func TestSpawnSwallowsErrors(t *testing.T) {
	r := New(nil)
	r.Spawn("failing", func(context.Context) error {
		return errors.New("best-effort failure")
	})
	r.Wait()
}

func TestSpawnRecoversPanics(t *testing.T) {
	r := New(nil)
	r.Spawn("panicking", func(context.Context) error {
		panic("boom")
	})
	r.Wait()

	// A panicked job must not poison later ones.
	var ran atomic.Bool
	r.Spawn("after", func(context.Context) error {
		ran.Store(true)
		return nil
	})
	r.Wait()
	if !ran.Load() {
		t.Fatal("runner unusable after a panic")
	}
}
