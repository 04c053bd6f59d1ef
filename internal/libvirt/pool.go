package libvirt

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Pool holds one connection manager per compute host.
type Pool struct {
	conns  []*ConnManager
	logger *slog.Logger
}

func NewPool(uris []string, retryWait, maxJitter time.Duration, logger *slog.Logger) *Pool {
	p := &Pool{logger: logger}
	for _, uri := range uris {
		p.conns = append(p.conns, NewConnManager(uri, retryWait, maxJitter, logger))
	}
	return p
}

func (p *Pool) Conns() []*ConnManager {
	return p.conns
}

// Connect dials every hypervisor concurrently, retrying each until ctx
// ends.
func (p *Pool) Connect(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range p.conns {
		g.Go(func() error { return c.Connect(gctx) })
	}
	return g.Wait()
}

func (p *Pool) Close() error {
	var errs []error
	for _, c := range p.conns {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// each runs fn against every hypervisor concurrently and returns the
// results in pool order. A failing hypervisor is logged, invalidated and
// skipped; the call fails only when every hypervisor fails.
func each[T any](ctx context.Context, p *Pool, what string, fn func(context.Context, *ConnManager) ([]T, error)) ([]T, error) {
	if len(p.conns) == 0 {
		return nil, errors.New("no hypervisors configured")
	}
	results := make([][]T, len(p.conns))
	errs := make([]error, len(p.conns))

	var g errgroup.Group
	for i, c := range p.conns {
		g.Go(func() error {
			results[i], errs[i] = fn(ctx, c)
			return nil
		})
	}
	_ = g.Wait()

	var out []T
	failed := 0
	for i, err := range errs {
		if err != nil {
			failed++
			p.logger.Warn("hypervisor query failed", "what", what, "uri", p.conns[i].URI(), "error", err)
			p.conns[i].Invalidate()
			continue
		}
		out = append(out, results[i]...)
	}
	if failed == len(p.conns) {
		return nil, errors.Join(errs...)
	}
	return out, nil
}
