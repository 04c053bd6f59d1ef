package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skynet-agent/internal/model"
)

func TestNew(t *testing.T) {
	c := New()
	require.NotNil(t, c)
	assert.Equal(t, 0, c.IdentityCount())
	assert.Equal(t, 0, c.ValueCount())
	_, ok := c.ActiveSet(time.Now(), 0)
	assert.False(t, ok)
}

func TestRememberAndName(t *testing.T) {
	c := New()
	c.Remember("vm-1", "web-01")

	name, ok := c.Name("vm-1")
	require.True(t, ok)
	assert.Equal(t, "web-01", name)

	_, ok = c.Name("vm-2")
	assert.False(t, ok)

	assert.False(t, c.RememberIfAbsent("vm-1", "renamed"))
	name, _ = c.Name("vm-1")
	assert.Equal(t, "web-01", name)

	assert.True(t, c.RememberIfAbsent("vm-2", "db-01"))
	assert.Equal(t, 2, c.IdentityCount())
}

func TestActiveSetTTL(t *testing.T) {
	c := New()
	filled := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	c.SetActiveSet([]string{"a", "b"}, filled)

	ids, ok := c.ActiveSet(filled.Add(time.Minute), 10*time.Minute)
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, ids)

	_, ok = c.ActiveSet(filled.Add(10*time.Minute), 10*time.Minute)
	assert.False(t, ok, "expired at ttl")

	_, ok = c.ActiveSet(filled.Add(24*time.Hour), 0)
	assert.True(t, ok, "ttl 0 never expires")
}

func TestActiveSetEmptyCountsAsAbsent(t *testing.T) {
	c := New()
	c.SetActiveSet(nil, time.Now())
	_, ok := c.ActiveSet(time.Now(), 0)
	assert.False(t, ok)
}

func TestActiveSetIsCopied(t *testing.T) {
	c := New()
	ids := []string{"a"}
	c.SetActiveSet(ids, time.Now())
	ids[0] = "mutated"

	got, ok := c.ActiveSet(time.Now(), 0)
	require.True(t, ok)
	assert.Equal(t, []string{"a"}, got)
}

func TestObserveValueFirstWins(t *testing.T) {
	c := New()
	assert.Equal(t, 1.5, c.ObserveValue("r", 1.5))
	assert.Equal(t, 1.5, c.ObserveValue("r", 9.0))
	assert.Equal(t, map[string]float64{"r": 1.5}, c.Values())

	c.ClearValues()
	assert.Equal(t, 0, c.ValueCount())
}

func TestClearPartialKeepsIdentities(t *testing.T) {
	c := New()
	c.Remember("h1", "node-1")
	c.SetActiveSet([]string{"h1"}, time.Now())
	c.ObserveValue("h1", 42)
	c.SetHypervisors([]model.Hypervisor{{Hostname: "cmp-1"}})

	c.Clear(false)

	assert.Equal(t, 1, c.IdentityCount())
	_, ok := c.ActiveSet(time.Now(), 0)
	assert.True(t, ok)
	assert.Equal(t, 0, c.ValueCount())
	_, ok = c.Hypervisors()
	assert.False(t, ok)
}

func TestClearFull(t *testing.T) {
	c := New()
	c.Remember("h1", "node-1")
	c.SetActiveSet([]string{"h1"}, time.Now())
	c.ObserveValue("h1", 42)

	c.Clear(true)

	assert.Equal(t, 0, c.IdentityCount())
	assert.Equal(t, 0, c.ValueCount())
	_, ok := c.ActiveSet(time.Now(), 0)
	assert.False(t, ok)
}

func TestClearIsIdempotent(t *testing.T) {
	c := New()
	c.Remember("h1", "node-1")
	c.Clear(true)
	assert.NotPanics(t, func() {
		c.Clear(true)
		c.Clear(false)
	})
	assert.Equal(t, 0, c.IdentityCount())

	fresh := New()
	fresh.Clear(false)
	assert.Equal(t, 0, fresh.ValueCount())
}
