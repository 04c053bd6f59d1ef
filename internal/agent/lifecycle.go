package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

func (a *Agent) run(ctx context.Context) error {
	if err := a.Bootstrap(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.connectHypervisors(gctx)
	})
	g.Go(func() error {
		return a.scheduler.Run(gctx)
	})
	g.Go(func() error {
		return a.runHealthLoop(gctx)
	})
	g.Go(func() error {
		return a.runProbeServer(gctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// connectHypervisors dials every configured hypervisor in the background.
// Poll cycles do not wait for it; they dial on demand and skip hosts that
// are still down.
func (a *Agent) connectHypervisors(ctx context.Context) error {
	if err := a.pool.Connect(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("connect hypervisors: %w", err)
	}
	a.health.SetLibvirtConnected(true)
	a.logger.Info("all hypervisors connected", "count", len(a.pool.Conns()))
	return nil
}

func (a *Agent) runHealthLoop(ctx context.Context) error {
	t := time.NewTicker(a.cfg.Agent.HealthInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			a.checkHealth(ctx)
		}
	}
}

func (a *Agent) checkHealth(ctx context.Context) {
	a.health.SetBackendReachable(a.IsActive(ctx))

	connected := true
	for _, c := range a.pool.Conns() {
		if err := c.Healthy(ctx); err != nil {
			a.logger.Warn("libvirt health check failed", "uri", c.URI(), "error", err)
			c.Invalidate()
			connected = false
		}
	}
	a.health.SetLibvirtConnected(connected)
	a.logger.Debug("agent health", "snapshot", a.health.Snapshot())
}

func (a *Agent) shutdown() {
	if err := a.metering.Close(); err != nil {
		a.logger.Warn("metering client close failed", "error", err)
	}
	if err := a.pool.Close(); err != nil {
		a.logger.Warn("libvirt close failed", "error", err)
	}
	a.health.SetLibvirtConnected(false)
	a.health.SetBackendReachable(false)
}

func (a *Agent) probeAddr() (string, error) {
	if a.cfg.Agent.ProbeAddr == "" {
		return "", fmt.Errorf("empty probe listen address")
	}
	return a.cfg.Agent.ProbeAddr, nil
}
