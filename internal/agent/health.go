package agent

import (
	"sync/atomic"
	"time"
)

type HealthStatus struct {
	bootstrapped     atomic.Bool
	backendReachable atomic.Bool
	libvirtConnected atomic.Bool
	lastPushOK       atomic.Bool
	lastCycleAt      atomic.Int64
	lastPushAt       atomic.Int64
	cycles           atomic.Uint64
}

func NewHealthStatus() *HealthStatus {
	return &HealthStatus{}
}

func (h *HealthStatus) SetBootstrapped(ok bool) {
	h.bootstrapped.Store(ok)
}

func (h *HealthStatus) SetBackendReachable(ok bool) {
	h.backendReachable.Store(ok)
}

func (h *HealthStatus) SetLibvirtConnected(ok bool) {
	h.libvirtConnected.Store(ok)
}

// MarkCycle records a finished poll cycle and, when items were pushed,
// whether the backend acknowledged them.
func (h *HealthStatus) MarkCycle(at time.Time, pushed, acked bool) {
	h.cycles.Add(1)
	h.lastCycleAt.Store(at.UnixNano())
	if pushed {
		h.lastPushAt.Store(at.UnixNano())
		h.lastPushOK.Store(acked)
	}
}

// Ready reports whether the agent is bootstrapped and the backend accepted
// the last login probe.
func (h *HealthStatus) Ready() bool {
	return h.bootstrapped.Load() && h.backendReachable.Load()
}

func (h *HealthStatus) Snapshot() map[string]any {
	out := map[string]any{
		"bootstrapped":      h.bootstrapped.Load(),
		"backend_reachable": h.backendReachable.Load(),
		"libvirt_connected": h.libvirtConnected.Load(),
		"cycles":            h.cycles.Load(),
	}
	if v := h.lastCycleAt.Load(); v > 0 {
		out["last_cycle_at"] = time.Unix(0, v).UTC()
	}
	if v := h.lastPushAt.Load(); v > 0 {
		out["last_push_at"] = time.Unix(0, v).UTC()
		out["last_push_ok"] = h.lastPushOK.Load()
	}
	return out
}
