package libvirt

import (
	"context"
	"fmt"
	"log/slog"

	golibvirt "github.com/digitalocean/go-libvirt"

	"skynet-agent/internal/model"
)

// HypervisorSource reports capacity and instance allocation for every
// hypervisor in the pool.
type HypervisorSource struct {
	pool   *Pool
	logger *slog.Logger
}

func NewHypervisorSource(pool *Pool, logger *slog.Logger) *HypervisorSource {
	return &HypervisorSource{pool: pool, logger: logger}
}

func (s *HypervisorSource) ListHypervisors(ctx context.Context) ([]model.Hypervisor, error) {
	return each(ctx, s.pool, "hypervisors", func(ctx context.Context, conn *ConnManager) ([]model.Hypervisor, error) {
		h, err := s.describe(ctx, conn)
		if err != nil {
			return nil, err
		}
		return []model.Hypervisor{h}, nil
	})
}

// allocation is what one running domain holds on its host.
type allocation struct {
	memoryKiB uint64
	vcpus     uint64
}

func (s *HypervisorSource) describe(ctx context.Context, conn *ConnManager) (model.Hypervisor, error) {
	client, err := conn.Client(ctx)
	if err != nil {
		return model.Hypervisor{}, err
	}
	hostname, err := conn.Hostname(ctx)
	if err != nil {
		return model.Hypervisor{}, err
	}
	_, memoryKiB, cpus, _, _, _, _, _, err := client.NodeGetInfo()
	if err != nil {
		return model.Hypervisor{}, fmt.Errorf("NodeGetInfo: %w", err)
	}

	doms, _, err := client.ConnectListAllDomains(1, golibvirt.ConnectListDomainsActive)
	if err != nil {
		return model.Hypervisor{}, fmt.Errorf("ConnectListAllDomains: %w", err)
	}
	allocs := make([]allocation, 0, len(doms))
	for _, dom := range doms {
		_, _, memory, nrVirtCPU, _, err := client.DomainGetInfo(dom)
		if err != nil {
			s.logger.Debug("domain info unavailable", "domain", dom.Name, "error", err)
			continue
		}
		allocs = append(allocs, allocation{memoryKiB: memory, vcpus: uint64(nrVirtCPU)})
	}
	return hypervisorFrom(hostname, memoryKiB, cpus, allocs), nil
}

// hypervisorFrom sums domain allocations against node capacity. Memory is
// reported in MiB.
func hypervisorFrom(hostname string, memoryKiB uint64, cpus int32, allocs []allocation) model.Hypervisor {
	h := model.Hypervisor{Hostname: hostname, MemoryMB: memoryKiB / 1024}
	if cpus > 0 {
		h.VCPUs = uint64(cpus)
	}
	var usedKiB uint64
	for _, a := range allocs {
		usedKiB += a.memoryKiB
		h.VCPUsUsed += a.vcpus
	}
	h.MemoryMBUsed = usedKiB / 1024
	return h
}
