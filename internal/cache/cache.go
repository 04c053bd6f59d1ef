// Package cache holds the bridge's poll-cycle state in two namespaces: a
// durable identity map (resource id -> display name, plus the active resource
// set) and an ephemeral per-aggregation value cache together with the
// hypervisor details snapshot.
package cache

import (
	"sync"
	"time"

	"skynet-agent/internal/model"
)

// Cache is constructed once per process and shared by reference. Clearing
// is explicit: Clear(false) between poll cycles, Clear(true) on a full reset.
type Cache struct {
	mu sync.Mutex

	identities     map[string]string
	active         []string
	activeFilledAt time.Time

	values      map[string]float64
	hypervisors []model.Hypervisor
}

func New() *Cache {
	return &Cache{
		identities: make(map[string]string),
		values:     make(map[string]float64),
	}
}

// Remember records the display name of a resource, replacing any previous one.
func (c *Cache) Remember(id, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.identities[id] = name
}

// RememberIfAbsent records name only for a resource not seen before and
// reports whether it did.
func (c *Cache) RememberIfAbsent(id, name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.identities[id]; ok {
		return false
	}
	c.identities[id] = name
	return true
}

// Name returns the cached display name of a resource.
func (c *Cache) Name(id string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	name, ok := c.identities[id]
	return name, ok
}

func (c *Cache) IdentityCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.identities)
}

// SetActiveSet stores the ids of the resources currently active, stamped
// with the fill time.
func (c *Cache) SetActiveSet(ids []string, filledAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = append([]string(nil), ids...)
	c.activeFilledAt = filledAt
}

// ActiveSet returns the stored active set when it is non-empty and younger
// than ttl at now. A ttl <= 0 never expires.
func (c *Cache) ActiveSet(now time.Time, ttl time.Duration) ([]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.active) == 0 {
		return nil, false
	}
	if ttl > 0 && now.Sub(c.activeFilledAt) >= ttl {
		return nil, false
	}
	return append([]string(nil), c.active...), true
}

// ObserveValue keeps the first value seen for id during one aggregation and
// returns the value now held for it.
func (c *Cache) ObserveValue(id string, v float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if held, ok := c.values[id]; ok {
		return held
	}
	c.values[id] = v
	return v
}

// Values returns a copy of the value cache.
func (c *Cache) Values() map[string]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]float64, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

func (c *Cache) ValueCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.values)
}

// ClearValues empties the value cache; aggregations call it when they finish.
func (c *Cache) ClearValues() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.values)
}

func (c *Cache) SetHypervisors(h []model.Hypervisor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hypervisors = append([]model.Hypervisor(nil), h...)
}

// Hypervisors returns the held hypervisor details snapshot, if any.
func (c *Cache) Hypervisors() ([]model.Hypervisor, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.hypervisors) == 0 {
		return nil, false
	}
	return append([]model.Hypervisor(nil), c.hypervisors...), true
}

// Clear empties the value cache and the hypervisor snapshot. With full it
// also drops every identity and the active set. Clearing an empty cache is a
// no-op.
func (c *Cache) Clear(full bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.values)
	c.hypervisors = nil
	if full {
		clear(c.identities)
		c.active = nil
		c.activeFilledAt = time.Time{}
	}
}
