package libvirt

import (
	"context"
	"fmt"
	"log/slog"

	golibvirt "github.com/digitalocean/go-libvirt"

	"skynet-agent/internal/model"
)

// InstanceSource lists the domains of every hypervisor in the pool as
// instances.
type InstanceSource struct {
	pool   *Pool
	logger *slog.Logger
}

func NewInstanceSource(pool *Pool, logger *slog.Logger) *InstanceSource {
	return &InstanceSource{pool: pool, logger: logger}
}

func (s *InstanceSource) ListInstances(ctx context.Context) ([]model.Instance, error) {
	return each(ctx, s.pool, "instances", s.listOn)
}

func (s *InstanceSource) listOn(ctx context.Context, conn *ConnManager) ([]model.Instance, error) {
	client, err := conn.Client(ctx)
	if err != nil {
		return nil, err
	}
	hostname, err := conn.Hostname(ctx)
	if err != nil {
		return nil, err
	}
	doms, _, err := client.ConnectListAllDomains(1, 0)
	if err != nil {
		return nil, fmt.Errorf("ConnectListAllDomains: %w", err)
	}

	out := make([]model.Instance, 0, len(doms))
	for _, dom := range doms {
		state, _, err := client.DomainGetState(dom, 0)
		if err != nil {
			// The domain may have been undefined since the listing.
			s.logger.Debug("domain state unavailable", "domain", dom.Name, "error", err)
			continue
		}
		out = append(out, model.Instance{
			ID:         uuidToString(dom.UUID),
			Name:       dom.Name,
			Status:     instanceStatus(golibvirt.DomainState(state)),
			Hypervisor: hostname,
		})
	}
	return out, nil
}

// instanceStatus maps a libvirt domain state to the compute status label.
func instanceStatus(state golibvirt.DomainState) string {
	switch state {
	case golibvirt.DomainRunning, golibvirt.DomainBlocked:
		return model.InstanceActive
	case golibvirt.DomainPaused, golibvirt.DomainPmsuspended:
		return model.InstanceSuspended
	case golibvirt.DomainShutdown, golibvirt.DomainShutoff:
		return model.InstanceShutoff
	case golibvirt.DomainCrashed:
		return model.InstanceError
	default:
		return model.InstanceBuild
	}
}

func uuidToString(u golibvirt.UUID) string {
	return fmt.Sprintf("%x-%x-%x-%x-%x", u[0:4], u[4:6], u[6:8], u[8:10], u[10:16])
}
