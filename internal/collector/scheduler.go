// Package collector drives the poll cycle: aggregate, push, clear.
package collector

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"skynet-agent/internal/aggregator"
	"skynet-agent/internal/metrics"
	"skynet-agent/internal/model"
	"skynet-agent/internal/zabbix"
)

type Aggregator interface {
	CollectAll(ctx context.Context) []aggregator.Result
}

type Pusher interface {
	SendBatch(ctx context.Context, items ...model.SenderItem) *zabbix.SenderResponse
}

type Clearer interface {
	Clear(full bool)
}

// Report describes one finished poll cycle.
type Report struct {
	Cycle     uint64
	At        time.Time
	Items     int
	Ack       *zabbix.SenderResponse
	FullClear bool
	Duration  time.Duration
}

type Options struct {
	// Host is the monitored host name the items are filed under.
	Host         string
	Interval     time.Duration
	ErrorBackoff time.Duration
	// FullClearEvery drops the identity cache every N cycles; 0 never does.
	FullClearEvery int
}

type Scheduler struct {
	logger  *slog.Logger
	agg     Aggregator
	pusher  Pusher
	cache   Clearer
	metrics *metrics.Metrics
	opts    Options
	now     func() time.Time

	cycles   uint64
	observer func(Report)
}

func NewScheduler(logger *slog.Logger, agg Aggregator, pusher Pusher, cache Clearer, m *metrics.Metrics, opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.ErrorBackoff <= 0 {
		opts.ErrorBackoff = time.Second
	}
	return &Scheduler{
		logger:  logger,
		agg:     agg,
		pusher:  pusher,
		cache:   cache,
		metrics: m,
		opts:    opts,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// OnCycle registers fn to be called after every cycle. It must be set before
// Run.
func (s *Scheduler) OnCycle(fn func(Report)) {
	s.observer = fn
}

// Run polls once immediately and then on every tick until ctx ends.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	s.logger.Info("poll loop started", "interval", s.opts.Interval, "host", s.opts.Host)
	s.cycle(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.cycle(ctx)
		}
	}
}

func (s *Scheduler) cycle(ctx context.Context) {
	r := s.RunOnce(ctx)
	if ctx.Err() != nil {
		return
	}
	if !r.Ack.Success() {
		s.logger.Error("poll cycle push not acknowledged", "cycle", r.Cycle, "items", r.Items, "ack", r.Ack.String())
		s.sleepWithContext(ctx, s.opts.ErrorBackoff)
	}
}

// RunOnce runs every aggregation, pushes the results as one batch and clears
// the per-cycle cache.
func (s *Scheduler) RunOnce(ctx context.Context) Report {
	start := time.Now()
	s.cycles++
	r := Report{Cycle: s.cycles, At: s.now()}

	items := ToItems(s.opts.Host, s.agg.CollectAll(ctx), r.At, s.logger)
	r.Items = len(items)
	if len(items) > 0 {
		r.Ack = s.pusher.SendBatch(ctx, items...)
	}

	r.FullClear = s.opts.FullClearEvery > 0 && r.Cycle%uint64(s.opts.FullClearEvery) == 0
	s.cache.Clear(r.FullClear)
	if r.FullClear {
		s.logger.Info("identity cache dropped", "cycle", r.Cycle)
	}

	r.Duration = time.Since(start)
	s.metrics.ObserveCycle(r.Duration)
	s.logger.Debug("poll cycle done", "cycle", r.Cycle, "items", r.Items, "duration", r.Duration)
	if s.observer != nil {
		s.observer(r)
	}
	return r
}

// ToItems renders each result as one sender item whose value is the result
// encoded as compact JSON.
func ToItems(host string, results []aggregator.Result, at time.Time, logger *slog.Logger) []model.SenderItem {
	items := make([]model.SenderItem, 0, len(results))
	for _, r := range results {
		raw, err := json.Marshal(r.Value)
		if err != nil {
			logger.Error("encode metric value failed", "metric", r.Metric, "error", err)
			continue
		}
		items = append(items, model.SenderItem{
			Host:  host,
			Key:   r.Metric,
			Value: string(raw),
			Clock: at.Unix(),
		})
	}
	return items
}

func (s *Scheduler) sleepWithContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
