package aggregator

import (
	"context"

	"skynet-agent/internal/model"
	"skynet-agent/internal/zabbix"
)

// Query is the monitoring backend's read surface. *zabbix.Session
// implements it.
type Query interface {
	HostGroupIDs(ctx context.Context, names []string) ([]string, error)
	Hosts(ctx context.Context, filter zabbix.HostFilter) ([]model.HostRecord, error)
	Items(ctx context.Context, groupIDs []string, searchKey string) ([]model.Item, error)
	LatestHistory(ctx context.Context, history model.HistoryType, itemID string) (model.HistoryPoint, error)
}

// InstanceLister enumerates every instance across all tenants.
type InstanceLister interface {
	ListInstances(ctx context.Context) ([]model.Instance, error)
}

// HypervisorLister returns detailed capacity for every compute host.
type HypervisorLister interface {
	ListHypervisors(ctx context.Context) ([]model.Hypervisor, error)
}

// MeterStatistics aggregates metering samples per resource.
type MeterStatistics interface {
	MeterStatistics(ctx context.Context, filter model.SampleFilter) ([]model.MeterStatistic, error)
}

// AlarmLister enumerates alarm definitions with their current state.
type AlarmLister interface {
	ListAlarms(ctx context.Context) ([]model.Alarm, error)
}

// Collaborators groups the cloud-platform sources. A nil member makes the
// metrics that depend on it fall back to their zero default.
type Collaborators struct {
	Instances   InstanceLister
	Hypervisors HypervisorLister
	Meters      MeterStatistics
	Alarms      AlarmLister
}
