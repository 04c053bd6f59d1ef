package aggregator

import (
	"context"
	"errors"
	"fmt"

	"skynet-agent/internal/model"
	"skynet-agent/internal/topn"
	"skynet-agent/internal/zabbix"
)

// scope resolves the configured host group names. A lookup the backend
// rejects yields an empty scope.
func (a *Aggregator) scope(ctx context.Context) ([]string, error) {
	if a.query == nil {
		return nil, errNotConfigured
	}
	ids, err := a.query.HostGroupIDs(ctx, a.opts.HostGroups)
	var apiErr *zabbix.APIError
	if errors.As(err, &apiErr) {
		a.logger.Error("host group lookup rejected", "groups", a.opts.HostGroups, "error", err)
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve host groups %v: %w", a.opts.HostGroups, err)
	}
	return ids, nil
}

// validItems keeps the items whose latest and previous values are both
// positive. Unparseable values count as missing.
func validItems(items []model.Item) []model.Item {
	out := make([]model.Item, 0, len(items))
	for _, it := range items {
		last, err := parseValue(it.LastValue)
		if err != nil || last <= 0 {
			continue
		}
		prev, err := parseValue(it.PrevValue)
		if err != nil || prev <= 0 {
			continue
		}
		out = append(out, it)
	}
	return out
}

// scopedHistory fetches the latest history value of every valid item with
// the given key inside the configured scope.
func (a *Aggregator) scopedHistory(ctx context.Context, groupIDs []string, key string, history model.HistoryType) ([]model.Item, []float64, error) {
	items, err := a.query.Items(ctx, groupIDs, key)
	if err != nil {
		return nil, nil, err
	}
	items = validItems(items)
	values := make([]float64, 0, len(items))
	for _, it := range items {
		point, err := a.query.LatestHistory(ctx, history, it.ItemID)
		if err != nil {
			return nil, nil, err
		}
		v, err := parseValue(point.Value)
		if err != nil {
			return nil, nil, fmt.Errorf("item %s: %w", it.ItemID, err)
		}
		values = append(values, v)
	}
	return items, values, nil
}

// HostsSummary counts the scoped hosts. A host is active when it is
// monitored and reports no error.
func (a *Aggregator) HostsSummary(ctx context.Context) model.HostsSummary {
	groupIDs, err := a.scope(ctx)
	if err != nil {
		a.fail(MetricHostsTotal, err)
		return model.HostsSummary{}
	}
	hosts, err := a.query.Hosts(ctx, zabbix.HostFilter{GroupIDs: groupIDs})
	if err != nil {
		a.fail(MetricHostsTotal, fmt.Errorf("list hosts in groups %v: %w", groupIDs, err))
		return model.HostsSummary{}
	}
	active := 0
	for _, h := range hosts {
		if h.Active() {
			active++
		}
	}
	return model.HostsSummary{Total: len(hosts), Active: active, Off: len(hosts) - active}
}

// MemoryUsage sums available and total memory over the scope.
func (a *Aggregator) MemoryUsage(ctx context.Context) model.MemoryUsage {
	groupIDs, err := a.scope(ctx)
	if err != nil {
		a.fail(MetricHostsMemoryUsage, err)
		return model.MemoryUsage{}
	}
	_, available, err := a.scopedHistory(ctx, groupIDs, keyMemoryAvailable, model.HistoryUnsigned)
	if err != nil {
		a.fail(MetricHostsMemoryUsage, err)
		return model.MemoryUsage{}
	}
	_, total, err := a.scopedHistory(ctx, groupIDs, keyMemoryTotal, model.HistoryUnsigned)
	if err != nil {
		a.fail(MetricHostsMemoryUsage, err)
		return model.MemoryUsage{}
	}

	var sumAvailable, sumTotal int64
	for _, v := range available {
		sumAvailable += int64(v)
	}
	for _, v := range total {
		sumTotal += int64(v)
	}
	if sumTotal == 0 {
		a.fail(MetricHostsMemoryUsage, fmt.Errorf("total memory is zero"))
		return model.MemoryUsage{}
	}
	return model.MemoryUsage{
		Available: sumAvailable,
		Total:     sumTotal,
		UsedRatio: round(float64(sumTotal-sumAvailable)/float64(sumTotal), 4),
	}
}

// CPUUtilization averages the used share (100 - idle) across the scope and
// reports it as a ratio of 1.
func (a *Aggregator) CPUUtilization(ctx context.Context) model.CPUUtilization {
	groupIDs, err := a.scope(ctx)
	if err != nil {
		a.fail(MetricHostsCPUUtil, err)
		return model.CPUUtilization{}
	}
	_, idle, err := a.scopedHistory(ctx, groupIDs, keyCPUIdle, model.HistoryFloat)
	if err != nil {
		a.fail(MetricHostsCPUUtil, err)
		return model.CPUUtilization{}
	}
	if len(idle) == 0 {
		a.fail(MetricHostsCPUUtil, fmt.Errorf("no valid cpu idle items"))
		return model.CPUUtilization{}
	}
	var used float64
	for _, v := range idle {
		used += 100 - v
	}
	ratio := round(used/float64(len(idle))/100, 4)
	return model.CPUUtilization{Total: 1.0, Used: ratio, UsedRatio: ratio}
}

// TopMemoryUsage ranks hosts by used memory percentage.
func (a *Aggregator) TopMemoryUsage(ctx context.Context) model.TopNResult {
	return a.hostTop(ctx, MetricHostsTopMemory, keyMemoryPAvailable, 2)
}

// TopCPUUtilization ranks hosts by used CPU percentage.
func (a *Aggregator) TopCPUUtilization(ctx context.Context) model.TopNResult {
	return a.hostTop(ctx, MetricHostsTopCPU, keyCPUIdle, 4)
}

// hostTop ranks hosts by 100 minus the latest value of a "free" percentage
// item, largest first. Values are rounded after selection.
func (a *Aggregator) hostTop(ctx context.Context, metric, key string, decimals int) model.TopNResult {
	defer a.cache.ClearValues()

	groupIDs, err := a.scope(ctx)
	if err != nil {
		a.fail(metric, err)
		return model.TopNResult{}
	}
	items, free, err := a.scopedHistory(ctx, groupIDs, key, model.HistoryFloat)
	if err != nil {
		a.fail(metric, err)
		return model.TopNResult{}
	}

	for i, it := range items {
		a.cache.ObserveValue(it.HostID, 100-free[i])
	}
	selected := topn.Select(valuePairs(a.cache.Values()), a.opts.Top, topn.Descending, a.logger)
	if len(selected) == 0 {
		return model.TopNResult{}
	}

	hostIDs := make([]string, 0, len(selected))
	for _, p := range selected {
		hostIDs = append(hostIDs, p.ID)
	}
	hosts, err := a.query.Hosts(ctx, zabbix.HostFilter{HostIDs: hostIDs})
	if err != nil {
		a.fail(metric, fmt.Errorf("resolve host names: %w", err))
		return model.TopNResult{}
	}
	names := make(map[string]string, len(hosts))
	for _, h := range hosts {
		names[h.HostID] = h.Host
		a.cache.Remember(h.HostID, h.Host)
	}
	return a.render(metric, selected, decimals, func(id string) (string, bool) {
		name, ok := names[id]
		return name, ok
	})
}
