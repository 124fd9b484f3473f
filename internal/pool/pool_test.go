package pool

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/ykondo/sshmux/internal/config"
	"github.com/ykondo/sshmux/internal/model"
	"github.com/ykondo/sshmux/internal/mux"
	"github.com/ykondo/sshmux/internal/registry"
	"github.com/ykondo/sshmux/internal/target"
	"github.com/ykondo/sshmux/internal/testutil"
)

type fakeRunner struct {
	err error
}

func (f *fakeRunner) Run(_ context.Context, _ string, _ ...string) ([]byte, error) {
	return nil, f.err
}

type fixture struct {
	store   *registry.Store
	sockets *mux.SocketStore
	checker *mux.Checker
	runner  *fakeRunner
	cfg     config.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, _ := testutil.NewStore(t)
	sockets, err := mux.NewSocketStore(t.TempDir())
	if err != nil {
		t.Fatalf("socket store: %v", err)
	}
	cfg := config.DefaultConfig()
	runner := &fakeRunner{}
	return &fixture{
		store:   store,
		sockets: sockets,
		checker: mux.NewCheckerWithRunner(cfg, sockets, runner),
		runner:  runner,
		cfg:     cfg,
	}
}

func (f *fixture) addConnection(t *testing.T, raw string, at time.Time, withSocket bool) model.ConnectionID {
	t.Helper()
	id, err := target.DeriveID(raw)
	if err != nil {
		t.Fatalf("derive %q: %v", raw, err)
	}
	if err := f.store.Register(context.Background(), id, raw, at); err != nil {
		t.Fatalf("register %q: %v", raw, err)
	}
	if withSocket {
		if err := os.WriteFile(f.sockets.Path(id), nil, 0o600); err != nil {
			t.Fatalf("touch socket: %v", err)
		}
	}
	return id
}

func TestEnforceCapacityEvictsOldestFirst(t *testing.T) {
	f := newFixture(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	oldest := f.addConnection(t, "a@h1", base, true)
	f.addConnection(t, "b@h2", base.Add(time.Minute), true)
	f.addConnection(t, "c@h3", base.Add(2*time.Minute), true)

	e := NewEnforcer(f.store, f.sockets, nil, nil, nil)
	e.EnforceCapacity(context.Background(), 2)

	rows, err := f.store.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows after enforcement, got %d", len(rows))
	}
	for _, row := range rows {
		if row.ConnectionID == oldest {
			t.Fatal("oldest row must be the one evicted")
		}
	}
	if f.sockets.Exists(oldest) {
		t.Fatal("evicted connection's socket must be removed")
	}
}

func TestEnforceCapacityUnderLimitIsNoop(t *testing.T) {
	f := newFixture(t)
	f.addConnection(t, "a@h1", time.Now().UTC(), true)

	e := NewEnforcer(f.store, f.sockets, nil, nil, nil)
	e.EnforceCapacity(context.Background(), 5)

	rows, _ := f.store.List(context.Background())
	if len(rows) != 1 {
		t.Fatalf("no eviction expected, got %d rows", len(rows))
	}
}

func TestSweepRemovesDeadSocketsAndRows(t *testing.T) {
	f := newFixture(t)
	now := time.Now().UTC()
	dead := f.addConnection(t, "a@h1", now, true)
	// Stale mtime forces the quick check through the failing probe.
	old := now.Add(-2 * f.cfg.SocketFreshWindow)
	if err := os.Chtimes(f.sockets.Path(dead), old, old); err != nil {
		t.Fatalf("age socket: %v", err)
	}
	f.runner.err = errors.New("control socket gone")

	s := NewSweeper(f.store, f.sockets, f.checker, nil)
	if err := s.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	if f.sockets.Exists(dead) {
		t.Fatal("dead socket must be removed")
	}
	rows, _ := f.store.List(context.Background())
	if len(rows) != 0 {
		t.Fatalf("dead row must be removed, got %d", len(rows))
	}
}

func TestSweepKeepsHealthyConnections(t *testing.T) {
	f := newFixture(t)
	live := f.addConnection(t, "a@h1", time.Now().UTC(), true)

	s := NewSweeper(f.store, f.sockets, f.checker, nil)
	if err := s.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	if !f.sockets.Exists(live) {
		t.Fatal("healthy socket must survive the sweep")
	}
	rows, _ := f.store.List(context.Background())
	if len(rows) != 1 {
		t.Fatalf("healthy row must survive, got %d", len(rows))
	}
}

func TestSweepRemovesUnheldOrphanSockets(t *testing.T) {
	f := newFixture(t)
	orphan := model.ConnectionID("feedfacefeedface")
	if err := os.WriteFile(f.sockets.Path(orphan), nil, 0o600); err != nil {
		t.Fatalf("touch orphan: %v", err)
	}

	s := NewSweeper(f.store, f.sockets, f.checker, nil)
	if err := s.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if f.sockets.Exists(orphan) {
		t.Fatal("unheld orphan socket must be removed")
	}
}

func TestSweepPrunesSocketlessRows(t *testing.T) {
	f := newFixture(t)
	f.addConnection(t, "a@h1", time.Now().UTC(), false)

	s := NewSweeper(f.store, f.sockets, f.checker, nil)
	if err := s.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	rows, _ := f.store.List(context.Background())
	if len(rows) != 0 {
		t.Fatalf("socketless row must be pruned, got %d", len(rows))
	}
}
