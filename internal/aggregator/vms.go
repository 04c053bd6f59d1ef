package aggregator

import (
	"context"
	"fmt"
	"time"

	"skynet-agent/internal/model"
	"skynet-agent/internal/topn"
)

// VMSummary buckets every instance by status. Active instances not yet known
// are added to the identity cache, and the active set is stored when the
// cache holds none.
func (a *Aggregator) VMSummary(ctx context.Context) model.VMSummary {
	if a.collab.Instances == nil {
		a.fail(MetricVMsTotal, errNotConfigured)
		return model.VMSummary{}
	}
	instances, err := a.collab.Instances.ListInstances(ctx)
	if err != nil {
		a.fail(MetricVMsTotal, fmt.Errorf("list instances: %w", err))
		return model.VMSummary{}
	}

	out := model.VMSummary{Total: len(instances)}
	active := make([]string, 0, len(instances))
	for _, vm := range instances {
		switch vm.Status {
		case model.InstanceActive:
			active = append(active, vm.ID)
			a.cache.RememberIfAbsent(vm.ID, vm.Name)
		case model.InstanceError:
			out.Error++
		case model.InstanceShutoff:
			out.Off++
		case model.InstanceSuspended:
			out.Paused++
		}
	}
	out.Active = len(active)

	now := a.now()
	if _, ok := a.cache.ActiveSet(now, a.opts.ActiveSetTTL); !ok {
		a.cache.SetActiveSet(active, now)
	}
	return out
}

// hypervisorDetails returns the cycle's hypervisor snapshot, fetching it
// once when the cache holds none.
func (a *Aggregator) hypervisorDetails(ctx context.Context) ([]model.Hypervisor, error) {
	if details, ok := a.cache.Hypervisors(); ok {
		return details, nil
	}
	if a.collab.Hypervisors == nil {
		return nil, errNotConfigured
	}
	details, err := a.collab.Hypervisors.ListHypervisors(ctx)
	if err != nil {
		return nil, fmt.Errorf("list hypervisors: %w", err)
	}
	if len(details) == 0 {
		return nil, fmt.Errorf("no hypervisors reported")
	}
	a.cache.SetHypervisors(details)
	return details, nil
}

// VMMemoryUsage sums hypervisor memory capacity and usage.
func (a *Aggregator) VMMemoryUsage(ctx context.Context) model.VMMemoryUsage {
	details, err := a.hypervisorDetails(ctx)
	if err != nil {
		a.fail(MetricVMsMemoryUsage, err)
		return model.VMMemoryUsage{}
	}
	var used, total uint64
	for _, h := range details {
		used += h.MemoryMBUsed
		total += h.MemoryMB
	}
	if total == 0 {
		a.fail(MetricVMsMemoryUsage, fmt.Errorf("total hypervisor memory is zero"))
		return model.VMMemoryUsage{}
	}
	return model.VMMemoryUsage{UsedMB: used, TotalMB: total, UsedRatio: round(float64(used)/float64(total), 4)}
}

// VMVCPUUsage sums hypervisor vCPU capacity and allocation.
func (a *Aggregator) VMVCPUUsage(ctx context.Context) model.VMVCPUUsage {
	details, err := a.hypervisorDetails(ctx)
	if err != nil {
		a.fail(MetricVMsVCPUUsage, err)
		return model.VMVCPUUsage{}
	}
	var used, total uint64
	for _, h := range details {
		used += h.VCPUsUsed
		total += h.VCPUs
	}
	if total == 0 {
		a.fail(MetricVMsVCPUUsage, fmt.Errorf("total hypervisor vcpus is zero"))
		return model.VMVCPUUsage{}
	}
	return model.VMVCPUUsage{Used: used, Total: total, UsedRatio: round(float64(used)/float64(total), 4)}
}

// activeSet returns the cached active instance ids, listing every instance
// to refill the identity cache when the set is missing or expired.
// Concurrent refills share one listing.
func (a *Aggregator) activeSet(ctx context.Context) ([]string, error) {
	if ids, ok := a.cache.ActiveSet(a.now(), a.opts.ActiveSetTTL); ok {
		return ids, nil
	}
	if a.collab.Instances == nil {
		return nil, errNotConfigured
	}
	v, err, _ := a.fill.Do("active-set", func() (any, error) {
		instances, err := a.collab.Instances.ListInstances(ctx)
		if err != nil {
			return nil, fmt.Errorf("list instances: %w", err)
		}
		active := make([]string, 0, len(instances))
		for _, vm := range instances {
			if vm.Status == model.InstanceActive {
				active = append(active, vm.ID)
			}
			a.cache.Remember(vm.ID, vm.Name)
		}
		a.cache.SetActiveSet(active, a.now())
		return active, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

// VMTopMetric ranks active instances by the average of meter over the
// trailing window, largest first. n <= 0 uses the configured top.
func (a *Aggregator) VMTopMetric(ctx context.Context, metric, meter string, n int, window time.Duration) model.TopNResult {
	defer a.cache.ClearValues()
	if n <= 0 {
		n = a.opts.Top
	}
	if window <= 0 {
		window = a.opts.VMWindow
	}

	resources, err := a.activeSet(ctx)
	if err != nil {
		a.fail(metric, err)
		return model.TopNResult{}
	}
	if len(resources) == 0 {
		a.logger.Warn("no active instances to rank", "metric", metric)
		return model.TopNResult{}
	}
	if a.collab.Meters == nil {
		a.fail(metric, errNotConfigured)
		return model.TopNResult{}
	}

	end := a.now()
	stats, err := a.collab.Meters.MeterStatistics(ctx, model.SampleFilter{
		Resources: resources,
		Meter:     meter,
		Start:     end.Add(-window),
		End:       end,
	})
	if err != nil {
		a.fail(metric, fmt.Errorf("meter %s statistics: %w", meter, err))
		return model.TopNResult{}
	}
	for _, s := range stats {
		a.cache.ObserveValue(s.ResourceID, s.Avg)
	}

	selected := topn.Select(valuePairs(a.cache.Values()), n, topn.Descending, a.logger)
	result := a.render(metric, selected, 4, a.cache.Name)
	if len(result) < n {
		a.logger.Warn("fewer ranked instances than requested top", "metric", metric, "ranked", len(result), "top", n)
	}
	return result
}

func (a *Aggregator) VMTopMemoryUsage(ctx context.Context) model.TopNResult {
	return a.VMTopMetric(ctx, MetricVMsTopMemory, MeterMemoryUsage, a.opts.Top, a.opts.VMWindow)
}

func (a *Aggregator) VMTopVCPUUsage(ctx context.Context) model.TopNResult {
	return a.VMTopMetric(ctx, MetricVMsTopVCPU, MeterCPUUtil, a.opts.Top, a.opts.VMWindow)
}
