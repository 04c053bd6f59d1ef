package libvirt

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net/url"
	"sync"
	"time"

	golibvirt "github.com/digitalocean/go-libvirt"
)

// ConnManager owns the RPC connection to one hypervisor and its reconnect
// flow.
type ConnManager struct {
	mu        sync.RWMutex
	client    *golibvirt.Libvirt
	hostname  string
	uri       string
	logger    *slog.Logger
	retryWait time.Duration
	maxJitter time.Duration
	randSrc   *rand.Rand
}

func NewConnManager(uri string, retryWait, maxJitter time.Duration, logger *slog.Logger) *ConnManager {
	if retryWait <= 0 {
		retryWait = 4 * time.Second
	}
	if maxJitter < 0 {
		maxJitter = 0
	}
	return &ConnManager{
		uri:       uri,
		logger:    logger.With("uri", uri),
		retryWait: retryWait,
		maxJitter: maxJitter,
		randSrc:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (m *ConnManager) URI() string {
	return m.uri
}

// Connect dials until it succeeds or ctx ends, waiting retryWait plus jitter
// between attempts. The lock is released while waiting, so Client callers
// are never held up by a hypervisor that stays unreachable.
func (m *ConnManager) Connect(ctx context.Context) error {
	for attempt := 1; ; attempt++ {
		m.mu.Lock()
		err := m.connectLocked(ctx)
		m.mu.Unlock()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		wait := m.retryWait + m.jitter()
		m.logger.Error("libvirt connect failed", "attempt", attempt, "error", err, "retry_in", wait)

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// Client returns the live connection, dialing once when there is none. An
// unreachable hypervisor fails fast so a poll cycle is never held up by it.
func (m *ConnManager) Client(ctx context.Context) (*golibvirt.Libvirt, error) {
	m.mu.RLock()
	c := m.client
	m.mu.RUnlock()
	if c != nil {
		return c, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.connectLocked(ctx); err != nil {
		return nil, err
	}
	return m.client, nil
}

// Hostname is the hypervisor's own hostname, cached after the first lookup.
func (m *ConnManager) Hostname(ctx context.Context) (string, error) {
	m.mu.RLock()
	name := m.hostname
	m.mu.RUnlock()
	if name != "" {
		return name, nil
	}
	c, err := m.Client(ctx)
	if err != nil {
		return "", err
	}
	name, err = c.ConnectGetHostname()
	if err != nil {
		return "", fmt.Errorf("ConnectGetHostname: %w", err)
	}
	m.mu.Lock()
	m.hostname = name
	m.mu.Unlock()
	return name, nil
}

// Invalidate drops the connection after a failed call; the next Client call
// dials again.
func (m *ConnManager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client == nil {
		return
	}
	if err := m.client.Disconnect(); err != nil {
		m.logger.Warn("libvirt disconnect failed", "error", err)
	}
	m.client = nil
}

func (m *ConnManager) Healthy(ctx context.Context) error {
	c, err := m.Client(ctx)
	if err != nil {
		return err
	}
	if _, err := c.Version(); err != nil {
		return fmt.Errorf("libvirt version check failed: %w", err)
	}
	return nil
}

func (m *ConnManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client == nil {
		return nil
	}
	err := m.client.Disconnect()
	m.client = nil
	return err
}

// connectLocked makes one dial attempt unless the held connection still
// answers.
func (m *ConnManager) connectLocked(ctx context.Context) error {
	if m.client != nil {
		if _, err := m.client.Version(); err == nil {
			return nil
		}
		_ = m.client.Disconnect()
		m.client = nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	uri, err := parseURI(m.uri)
	if err != nil {
		return err
	}
	c, err := golibvirt.ConnectToURI(uri)
	if err != nil {
		return fmt.Errorf("connect %s: %w", uri.Redacted(), err)
	}
	m.client = c
	m.logger.Info("libvirt connected")
	return nil
}

func (m *ConnManager) jitter() time.Duration {
	if m.maxJitter == 0 {
		return 0
	}
	return time.Duration(m.randSrc.Int63n(int64(m.maxJitter)))
}

// parseURI falls back to the local system socket when raw is empty or has
// no scheme.
func parseURI(raw string) (*url.URL, error) {
	if raw == "" {
		raw = string(golibvirt.QEMUSystem)
	}
	uri, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse libvirt uri %q: %w", raw, err)
	}
	if uri.Scheme == "" {
		return url.Parse(string(golibvirt.QEMUSystem))
	}
	return uri, nil
}
