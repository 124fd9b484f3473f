package mux

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ykondo/sshmux/internal/config"
	"github.com/ykondo/sshmux/internal/model"
	"github.com/ykondo/sshmux/internal/target"
)

// Checker probes multiplexed sessions over the ssh control channel.
// Neither check mutates state; any probe failure maps to false, never to
// an error.
type Checker struct {
	cfg     config.Config
	runner  Runner
	sockets *SocketStore
}

func NewChecker(cfg config.Config, sockets *SocketStore) *Checker {
	return &Checker{cfg: cfg, runner: OSRunner{}, sockets: sockets}
}

func NewCheckerWithRunner(cfg config.Config, sockets *SocketStore, runner Runner) *Checker {
	c := NewChecker(cfg, sockets)
	c.runner = runner
	return c
}

// FullCheck reports whether a control socket exists for the target and a
// liveness probe against it succeeds within the check timeout.
func (c *Checker) FullCheck(ctx context.Context, t model.Target) bool {
	id := target.MustDeriveID(t)
	if !c.sockets.Exists(id) {
		return false
	}
	probeCtx, cancel := context.WithTimeout(ctx, c.cfg.CheckTimeout)
	defer cancel()
	args := append(controlArgs(c.sockets.Path(id)), "-O", "check", "-p", strconv.Itoa(t.Port), t.Addr())
	_, err := c.runner.Run(probeCtx, "ssh", args...)
	return err == nil
}

// QuickCheck accepts a socket younger than the freshness window without a
// round trip, trading a small staleness window for latency. Callers that
// need certainty should use FullCheck.
func (c *Checker) QuickCheck(ctx context.Context, t model.Target) bool {
	id := target.MustDeriveID(t)
	if c.sockets.FreshWithin(id, c.cfg.SocketFreshWindow) {
		return true
	}
	return c.FullCheck(ctx, t)
}

func controlArgs(socketPath string) []string {
	return []string{
		"-o", fmt.Sprintf("ControlPath=%s", socketPath),
	}
}
