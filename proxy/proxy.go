// Package proxy manages the outbound proxy used for backend calls, either
// fixed or periodically refreshed from a provisioning endpoint.
package proxy

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Manager holds the current outbound proxy URL. With a refresh endpoint
// configured, Start keeps it fresh in the background; otherwise the value
// set at construction stays in effect.
type Manager struct {
	refreshURL string
	interval   time.Duration
	httpClient *http.Client
	log        *slog.Logger

	mu      sync.RWMutex
	current *url.URL
}

// Option configures a Manager.
type Option func(*Manager)

// WithHTTPClient sets the HTTP client used for refresh calls.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) { m.httpClient = c }
}

// WithLogger sets the logger. If unset, slog.Default() is used.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// Static creates a Manager pinned to one proxy URL.
func Static(raw string) (*Manager, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("proxy: parse %q: %w", raw, err)
	}
	return &Manager{current: u, log: slog.Default()}, nil
}

// NewManager creates a Manager that fetches a proxy address from
// refreshURL every interval.
func NewManager(refreshURL string, interval time.Duration, opts ...Option) *Manager {
	m := &Manager{
		refreshURL: refreshURL,
		interval:   interval,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = slog.Default()
	}
	return m
}

// Refresh fetches a new proxy address once. The endpoint returns a bare
// host:port line; a JSON body is an error payload.
func (m *Manager) Refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.refreshURL, nil)
	if err != nil {
		return fmt.Errorf("proxy: create request: %w", err)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("proxy: fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("proxy: provisioning endpoint returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if err != nil {
		return fmt.Errorf("proxy: read body: %w", err)
	}
	addr := strings.TrimSpace(string(body))
	if addr == "" || strings.HasPrefix(addr, "{") {
		return fmt.Errorf("proxy: provisioning endpoint returned error payload: %s", addr)
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}

	u, err := url.Parse(addr)
	if err != nil {
		return fmt.Errorf("proxy: parse %q: %w", addr, err)
	}

	m.mu.Lock()
	m.current = u
	m.mu.Unlock()
	m.log.Info("proxy refreshed", "proxy", u.Host)
	return nil
}

// Start refreshes immediately and then every interval until ctx is done.
func (m *Manager) Start(ctx context.Context) {
	if m.refreshURL == "" || m.interval <= 0 {
		return
	}
	if err := m.Refresh(ctx); err != nil {
		m.log.Warn("initial proxy refresh failed", "error", err)
	}
	ticker := time.NewTicker(m.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := m.Refresh(ctx); err != nil {
					m.log.Warn("proxy refresh failed, keeping previous", "error", err)
				}
			}
		}
	}()
}

// Current returns the current proxy URL, or "" when none is set.
func (m *Manager) Current() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return ""
	}
	return m.current.String()
}

// ProxyFunc plugs into http.Transport.Proxy; it re-reads the current proxy
// on every request so refreshes apply to live transports.
func (m *Manager) ProxyFunc() func(*http.Request) (*url.URL, error) {
	return func(*http.Request) (*url.URL, error) {
		m.mu.RLock()
		defer m.mu.RUnlock()
		return m.current, nil
	}
}
