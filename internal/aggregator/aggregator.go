// Package aggregator turns raw monitoring items and cloud-platform listings
// into the summary and top-N results published by the bridge. Every method
// contains its collaborators' failures: it logs them and returns a zero
// result of the same shape instead of an error.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"skynet-agent/internal/cache"
	"skynet-agent/internal/metrics"
	"skynet-agent/internal/model"
	"skynet-agent/internal/topn"
)

// Published metric names.
const (
	MetricHostsTotal       = "openstack.hosts.total"
	MetricHostsMemoryUsage = "openstack.hosts.memory.usage"
	MetricHostsCPUUtil     = "openstack.hosts.cpu.util"
	MetricHostsTopMemory   = "openstack.hosts.top.memory.usage"
	MetricHostsTopCPU      = "openstack.hosts.top.cpu.util"
	MetricVMsTotal         = "openstack.vms.total"
	MetricVMsMemoryUsage   = "openstack.vms.memory.usage"
	MetricVMsVCPUUsage     = "openstack.vms.vcpu.usage"
	MetricVMsTopMemory     = "openstack.vms.top.memory.usage"
	MetricVMsTopVCPU       = "openstack.vms.top.vcpu.usage"
	MetricAlarmsTotal      = "openstack.alarms.total"
)

// Item keys queried on the monitoring backend.
const (
	keyMemoryAvailable  = "vm.memory.size[available]"
	keyMemoryTotal      = "vm.memory.size[total]"
	keyMemoryPAvailable = "vm.memory.size[pavailable]"
	keyCPUIdle          = "system.cpu.util[,idle]"
)

// Meters queried on the metering collaborator.
const (
	MeterMemoryUsage = "memory.usage"
	MeterCPUUtil     = "cpu_util"
)

var errNotConfigured = errors.New("collaborator not configured")

type Options struct {
	// HostGroups scopes every host and item query.
	HostGroups []string
	// Top is the default ranking length.
	Top int
	// VMWindow is the trailing window of VM metering queries.
	VMWindow time.Duration
	// ActiveSetTTL bounds how long a cached active set is trusted; 0 keeps
	// it until a full clear.
	ActiveSetTTL time.Duration
}

type Aggregator struct {
	query  Query
	collab Collaborators
	cache  *cache.Cache
	opts   Options

	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	fill    singleflight.Group
}

func New(query Query, collab Collaborators, c *cache.Cache, opts Options, logger *slog.Logger, m *metrics.Metrics) *Aggregator {
	if opts.Top <= 0 {
		opts.Top = 5
	}
	if opts.VMWindow <= 0 {
		opts.VMWindow = 3 * time.Minute
	}
	if c == nil {
		c = cache.New()
	}
	return &Aggregator{
		query:   query,
		collab:  collab,
		cache:   c,
		opts:    opts,
		logger:  logger,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (a *Aggregator) Cache() *cache.Cache {
	return a.cache
}

// Result is one published metric and its value.
type Result struct {
	Metric string
	Value  any
}

// CollectAll runs every aggregation in turn and returns the results in a
// fixed order.
func (a *Aggregator) CollectAll(ctx context.Context) []Result {
	return []Result{
		{MetricHostsTotal, a.HostsSummary(ctx)},
		{MetricHostsMemoryUsage, a.MemoryUsage(ctx)},
		{MetricHostsCPUUtil, a.CPUUtilization(ctx)},
		{MetricHostsTopMemory, a.TopMemoryUsage(ctx)},
		{MetricHostsTopCPU, a.TopCPUUtilization(ctx)},
		{MetricVMsTotal, a.VMSummary(ctx)},
		{MetricVMsMemoryUsage, a.VMMemoryUsage(ctx)},
		{MetricVMsVCPUUsage, a.VMVCPUUsage(ctx)},
		{MetricVMsTopMemory, a.VMTopMemoryUsage(ctx)},
		{MetricVMsTopVCPU, a.VMTopVCPUUsage(ctx)},
		{MetricAlarmsTotal, a.AlarmSummary(ctx)},
	}
}

func (a *Aggregator) fail(metric string, err error) {
	a.logger.Error("failed to get metric", "metric", metric, "error", err)
	a.metrics.AggregationFailed(metric)
}

// render maps ranked ids to display names. Ids without a cached name are
// dropped with a warning.
// render resolves each ranked id to its display name. Ids that do not
// resolve are dropped.
func (a *Aggregator) render(metric string, ranked []topn.Pair[string], decimals int, nameOf func(string) (string, bool)) model.TopNResult {
	out := make(model.TopNResult, 0, len(ranked))
	for _, p := range ranked {
		name, ok := nameOf(p.ID)
		if !ok {
			a.logger.Warn("resource has no known name, it may have been deleted", "metric", metric, "resource_id", p.ID)
			a.metrics.IdentityMissed(metric)
			continue
		}
		out = append(out, model.RankedValue{Name: name, Value: round(p.Value, decimals)})
	}
	return out
}

func valuePairs(values map[string]float64) []topn.Pair[string] {
	pairs := make([]topn.Pair[string], 0, len(values))
	for id, v := range values {
		pairs = append(pairs, topn.Pair[string]{ID: id, Value: v})
	}
	return pairs
}

func round(v float64, decimals int) float64 {
	p := math.Pow10(decimals)
	return math.Round(v*p) / p
}

func parseValue(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse value %q: %w", s, err)
	}
	return v, nil
}
