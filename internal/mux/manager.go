package mux

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/ykondo/sshmux/internal/config"
	"github.com/ykondo/sshmux/internal/model"
	"github.com/ykondo/sshmux/internal/registry"
	"github.com/ykondo/sshmux/internal/security"
	"github.com/ykondo/sshmux/internal/target"
)

// CapacityEnforcer is invoked after every successful registration. The
// pool package provides the real implementation; a nil enforcer disables
// the cap.
type CapacityEnforcer interface {
	EnforceCapacity(ctx context.Context, max int)
}

// DeviceTypes resolves the cached classification for a target, empty
// string when unknown. Satisfied by the device cache.
type DeviceTypes interface {
	CachedType(tgt string) string
}

// ExecResult is the unmodified outcome of a remote command.
type ExecResult struct {
	Output   string
	ExitCode int
}

// Manager orchestrates establish, reuse, close, reconnect and command
// execution for multiplexed sessions.
type Manager struct {
	cfg     config.Config
	runner  Runner
	sockets *SocketStore
	checker *Checker
	reg     *registry.Store
	pool    CapacityEnforcer
	devices DeviceTypes
	log     *slog.Logger
}

func NewManager(cfg config.Config, reg *registry.Store, sockets *SocketStore, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Manager{
		cfg:     cfg,
		runner:  OSRunner{},
		sockets: sockets,
		checker: NewChecker(cfg, sockets),
		reg:     reg,
		log:     log,
	}
}

func NewManagerWithRunner(cfg config.Config, reg *registry.Store, sockets *SocketStore, log *slog.Logger, runner Runner) *Manager {
	m := NewManager(cfg, reg, sockets, log)
	m.runner = runner
	m.checker = NewCheckerWithRunner(cfg, sockets, runner)
	return m
}

// SetCapacityEnforcer wires the pool's hard cap into registration.
func (m *Manager) SetCapacityEnforcer(p CapacityEnforcer) {
	m.pool = p
}

// SetDeviceTypes wires the device cache into the detailed listing.
func (m *Manager) SetDeviceTypes(d DeviceTypes) {
	m.devices = d
}

func (m *Manager) Checker() *Checker {
	return m.checker
}

// Establish ensures a healthy multiplexed session for the target. It is
// idempotent: a passing full check skips the start phase and only syncs
// the registry bookkeeping. Otherwise any stale socket is removed, a new
// control master is started, and the socket is awaited and
// health-confirmed within the establish deadline.
func (m *Manager) Establish(ctx context.Context, t model.Target) error {
	id := target.MustDeriveID(t)
	if m.checker.FullCheck(ctx, t) {
		m.log.Debug("reusing existing session", "target", t.Raw, "connection_id", string(id))
		return m.recordReuse(ctx, t, id)
	}

	if err := m.sockets.Remove(id); err != nil {
		m.log.Warn("remove stale socket", "connection_id", string(id), "error", err)
	}

	args := append(controlArgs(m.sockets.Path(id)),
		"-f", "-N",
		"-o", "ControlMaster=yes",
		"-o", fmt.Sprintf("ControlPersist=%ds", int(m.cfg.ControlPersist.Seconds())),
		"-o", fmt.Sprintf("ConnectTimeout=%d", int(m.cfg.ConnectTimeout.Seconds())),
		"-o", "BatchMode=yes",
		"-o", "StrictHostKeyChecking=no",
		"-o", "UserKnownHostsFile=/dev/null",
		"-p", strconv.Itoa(t.Port),
		t.Addr(),
	)
	startCtx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout+m.cfg.EstablishDeadline())
	defer cancel()
	if out, err := m.runner.Run(startCtx, "ssh", args...); err != nil {
		// The wait phase below decides the outcome; the master may still
		// come up via ControlMaster auto-recovery on a racing invocation.
		m.log.Warn("control master start reported failure", "target", t.Raw, "error", err, "output", string(out))
	}

	if err := m.awaitHealthy(ctx, t, id); err != nil {
		return err
	}

	if err := m.reg.Register(ctx, id, t.Raw, time.Now().UTC()); err != nil {
		return err
	}
	if err := m.reg.SetLastTarget(ctx, t.Raw, time.Now().UTC()); err != nil {
		m.log.Warn("record last target", "target", t.Raw, "error", err)
	}
	if m.pool != nil {
		m.pool.EnforceCapacity(ctx, m.cfg.MaxConnections)
	}
	m.log.Info("session established", "target", t.Raw, "connection_id", string(id))
	return nil
}

// recordReuse keeps the registry and last-target pointer consistent when
// Establish finds the session already healthy. A healthy session may be
// untracked (the sweeper pruned the row, or a racing process created the
// master), so the row is re-created if absent; an existing row keeps its
// registration time. The last target moves on every successful connect.
func (m *Manager) recordReuse(ctx context.Context, t model.Target, id model.ConnectionID) error {
	_, err := m.reg.TargetByID(ctx, id)
	switch {
	case errors.Is(err, registry.ErrNotFound):
		if err := m.reg.Register(ctx, id, t.Raw, time.Now().UTC()); err != nil {
			return err
		}
		if m.pool != nil {
			m.pool.EnforceCapacity(ctx, m.cfg.MaxConnections)
		}
	case err != nil:
		return err
	}
	if err := m.reg.SetLastTarget(ctx, t.Raw, time.Now().UTC()); err != nil {
		m.log.Warn("record last target", "target", t.Raw, "error", err)
	}
	return nil
}

func (m *Manager) awaitHealthy(ctx context.Context, t model.Target, id model.ConnectionID) error {
	deadline := m.cfg.EstablishDeadline()
	waitCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	if err := m.sockets.Await(waitCtx, id, deadline, m.cfg.EstablishInterval); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return fmt.Errorf("%w: waiting for control socket of %s", model.ErrConnectionTimeout, t.Raw)
		}
		return err
	}
	if m.checker.FullCheck(ctx, t) {
		return nil
	}

	tick := time.NewTicker(m.cfg.EstablishInterval)
	defer tick.Stop()
	for {
		select {
		case <-waitCtx.Done():
			return fmt.Errorf("%w: session for %s never became healthy", model.ErrConnectionTimeout, t.Raw)
		case <-tick.C:
			if m.checker.FullCheck(ctx, t) {
				return nil
			}
		}
	}
}

// Close tears down the session. A missing socket is ErrConnectionNotFound;
// a failing graceful exit degrades to force-removing the socket file, which
// still succeeds from the caller's point of view but is reported as forced.
// The registry row is removed either way.
func (m *Manager) Close(ctx context.Context, t model.Target) (model.CloseOutcome, error) {
	id := target.MustDeriveID(t)
	if !m.sockets.Exists(id) {
		return "", fmt.Errorf("%w: no session for %s", model.ErrConnectionNotFound, t.Raw)
	}

	outcome := model.CloseGraceful
	exitCtx, cancel := context.WithTimeout(ctx, m.cfg.CheckTimeout)
	args := append(controlArgs(m.sockets.Path(id)), "-O", "exit", "-p", strconv.Itoa(t.Port), t.Addr())
	_, err := m.runner.Run(exitCtx, "ssh", args...)
	cancel()
	if err != nil {
		outcome = model.CloseForced
		if rmErr := m.sockets.Remove(id); rmErr != nil {
			m.log.Warn("force-remove socket", "connection_id", string(id), "error", rmErr)
		}
		m.log.Warn("graceful close failed, socket removed", "target", t.Raw, "error", err)
	}

	if err := m.reg.Unregister(ctx, id); err != nil {
		m.log.Warn("unregister connection", "connection_id", string(id), "error", err)
	}
	m.log.Info("session closed", "target", t.Raw, "outcome", string(outcome))
	return outcome, nil
}

// Reconnect closes (ignoring a missing session) then establishes. Not
// atomic: a crash in between leaves the target disconnected, which is
// acceptable because Establish is idempotent and retryable.
func (m *Manager) Reconnect(ctx context.Context, t model.Target) error {
	if _, err := m.Close(ctx, t); err != nil && !errors.Is(err, model.ErrConnectionNotFound) {
		return err
	}
	return m.Establish(ctx, t)
}

// Execute runs a command over the multiplexed session and returns its
// combined output and exit status unchanged. It fails fast when the
// socket is missing or unhealthy; no retries, no output transformation.
func (m *Manager) Execute(ctx context.Context, t model.Target, command string) (ExecResult, error) {
	id := target.MustDeriveID(t)
	if !m.sockets.Exists(id) {
		return ExecResult{}, fmt.Errorf("%w: no session for %s", model.ErrConnectionNotFound, t.Raw)
	}
	if !m.checker.FullCheck(ctx, t) {
		return ExecResult{}, fmt.Errorf("%w: %s failed liveness check", model.ErrConnectionUnhealthy, t.Raw)
	}

	m.log.Debug("running remote command", "target", t.Raw, "command", security.RedactCommand(command))
	runCtx, cancel := context.WithTimeout(ctx, m.cfg.CommandTimeout)
	defer cancel()
	args := append(controlArgs(m.sockets.Path(id)),
		"-o", "BatchMode=yes",
		"-p", strconv.Itoa(t.Port),
		t.Addr(),
		command,
	)
	out, err := m.runner.Run(runCtx, "ssh", args...)
	code := ExitCode(err)
	if err != nil && code < 0 {
		return ExecResult{Output: string(out), ExitCode: code}, fmt.Errorf("run command on %s: %w", t.Raw, err)
	}
	return ExecResult{Output: string(out), ExitCode: code}, nil
}

// ListConnections reports every registry row with its current health,
// cached device type and registration time. Rows whose socket is gone
// are shown disconnected but left in place for the sweeper.
func (m *Manager) ListConnections(ctx context.Context) ([]model.ConnectionStatus, error) {
	rows, err := m.reg.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.ConnectionStatus, 0, len(rows))
	for _, row := range rows {
		status := model.ConnectionStatus{
			ConnectionID: row.ConnectionID,
			Target:       row.Target,
			RegisteredAt: row.RegisteredAt,
		}
		if t, err := target.Parse(row.Target); err == nil && m.sockets.Exists(row.ConnectionID) {
			status.Connected = m.checker.FullCheck(ctx, t)
		}
		if m.devices != nil {
			status.DeviceType = m.devices.CachedType(row.Target)
		}
		out = append(out, status)
	}
	return out, nil
}
