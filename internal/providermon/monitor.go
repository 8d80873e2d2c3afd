// Package providermon runs the background loop that health-checks every
// catalog provider and records its availability in the shared store.
//
// For every model the store keeps a hash availability:{model} with one
// field per provider id, "true" when the last check reached the backend and
// "false" otherwise. Workers share the hashes through the store, so
// operators see one cluster-wide availability view regardless of which
// process ran the check.
package providermon

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/radlab/llm-router/catalog"
	"github.com/radlab/llm-router/internal/logging"
	"github.com/radlab/llm-router/internal/store"
)

const (
	defaultCheckInterval = 30 * time.Second
	probeTimeout         = time.Second
)

// Monitor periodically probes every provider of every active model.
type Monitor struct {
	st           *store.Store
	cat          *catalog.Catalog
	client       *http.Client
	interval     time.Duration
	clearBuffers bool
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithCheckInterval overrides the health-check period.
func WithCheckInterval(d time.Duration) Option {
	return func(m *Monitor) { m.interval = d }
}

// WithClearBuffers purges all availability hashes when the monitor starts.
func WithClearBuffers(clear bool) Option {
	return func(m *Monitor) { m.clearBuffers = clear }
}

// New creates a Monitor over the shared store and catalog.
func New(st *store.Store, cat *catalog.Catalog, opts ...Option) *Monitor {
	m := &Monitor{
		st:       st,
		cat:      cat,
		client:   &http.Client{Timeout: probeTimeout},
		interval: defaultCheckInterval,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start launches the monitor loop in a goroutine. It stops when ctx is
// cancelled.
func (m *Monitor) Start(ctx context.Context) {
	go func() {
		if err := m.Run(ctx); err != nil && ctx.Err() == nil {
			logging.Logger.Error("provider monitor stopped", "err", err)
		}
	}()
}

// Run executes the monitor loop until ctx is cancelled. The first pass runs
// immediately so availability is populated before the first interval
// elapses.
func (m *Monitor) Run(ctx context.Context) error {
	if m.clearBuffers {
		if err := m.st.PurgeAvailability(ctx); err != nil {
			return fmt.Errorf("clear availability buffers: %w", err)
		}
		logging.Logger.Info("availability buffers cleared")
	}

	if err := m.RunOnce(ctx); err != nil {
		logging.Logger.Warn("provider check pass failed", "err", err)
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := m.RunOnce(ctx); err != nil {
				logging.Logger.Warn("provider check pass failed", "err", err)
			}
		}
	}
}

// RunOnce health-checks every provider of every active model and records
// the results.
func (m *Monitor) RunOnce(ctx context.Context) error {
	for _, model := range m.cat.ActiveModels() {
		for _, p := range m.cat.Providers(model) {
			up := m.check(ctx, p)
			logging.Logger.Debug("provider health",
				"model", model, "provider", p.ID, "host", p.Host(), "up", up)
			if err := m.st.SetAvailability(ctx, model, p.ID, up); err != nil {
				return err
			}
		}
	}
	return nil
}

// check probes the provider's health route. Anything below 500 counts as
// reachable; only vLLM exposes a dedicated /health route, the other
// dialects answer on /.
func (m *Monitor) check(ctx context.Context, p catalog.ProviderSpec) bool {
	path := "/"
	if p.APIType == catalog.APITypeVLLM {
		path = "/health"
	}
	url := strings.TrimSuffix(p.APIHost, "/") + path

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode < http.StatusInternalServerError
}
