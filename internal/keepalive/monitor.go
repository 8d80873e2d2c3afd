// Package keepalive runs the background loop that pings idle providers so
// model weights stay resident on GPUs.
//
// Providers opt in through their catalog keep_alive setting; strategies
// register (model, host) pairs in the shared schedule when they pick such a
// provider. One monitor runs per process and workers share the schedule
// through the store, so a pair is pinged once per interval no matter how
// many workers run.
package keepalive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/radlab/llm-router/catalog"
	"github.com/radlab/llm-router/internal/apitypes"
	"github.com/radlab/llm-router/internal/logging"
	"github.com/radlab/llm-router/internal/metrics"
	"github.com/radlab/llm-router/internal/store"
)

// Probe payload constants. The prompt is intentionally trivial: the point
// is loading the weights, not the answer.
const (
	probePrompt    = "Send an empty message."
	probeMaxTokens = 56
	probeTimeout   = 30 * time.Second
)

const defaultCheckInterval = time.Second

// Monitor periodically wakes due providers from the shared schedule.
type Monitor struct {
	st           *store.Store
	cat          *catalog.Catalog
	client       *http.Client
	interval     time.Duration
	clearBuffers bool

	// hostFree decides whether a host is idle enough to ping. The
	// default consults the store's occupancy hashes.
	hostFree func(ctx context.Context, host string) (bool, error)
	now      func() time.Time
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithCheckInterval overrides the schedule polling period.
func WithCheckInterval(d time.Duration) Option {
	return func(m *Monitor) { m.interval = d }
}

// WithClearBuffers purges the whole keep-alive schedule when the monitor
// starts.
func WithClearBuffers(clear bool) Option {
	return func(m *Monitor) { m.clearBuffers = clear }
}

// WithHostFreeCallback replaces the idle check.
func WithHostFreeCallback(fn func(ctx context.Context, host string) (bool, error)) Option {
	return func(m *Monitor) { m.hostFree = fn }
}

// New creates a Monitor over the shared store and catalog.
func New(st *store.Store, cat *catalog.Catalog, opts ...Option) *Monitor {
	m := &Monitor{
		st:       st,
		cat:      cat,
		client:   &http.Client{Timeout: probeTimeout},
		interval: defaultCheckInterval,
		now:      time.Now,
	}
	m.hostFree = func(ctx context.Context, host string) (bool, error) {
		busy, err := st.HostBusy(ctx, host)
		return !busy, err
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
			logging.Logger.Error("keep-alive monitor stopped", "err", err)
		}
	}()
}

// Run executes the monitor loop until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	if m.clearBuffers {
		if err := m.st.PurgeKeepAlive(ctx); err != nil {
			return fmt.Errorf("clear keep-alive buffers: %w", err)
		}
		logging.Logger.Info("keep-alive buffers cleared")
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := m.RunOnce(ctx); err != nil {
				logging.Logger.Warn("keep-alive pass failed", "err", err)
			}
		}
	}
}

// RunOnce processes every provider due at the current time.
func (m *Monitor) RunOnce(ctx context.Context) error {
	now := m.now()
	due, err := m.st.DueProviders(ctx, now)
	if err != nil {
		return err
	}
	for _, member := range due {
		if err := m.wake(ctx, member, now); err != nil {
			logging.Logger.Warn("keep-alive wake failed",
				"model", member.Model, "host", member.Host, "err", err)
		}
	}
	return nil
}

func (m *Monitor) wake(ctx context.Context, member store.Member, now time.Time) error {
	interval, ok, err := m.st.KeepAliveInterval(ctx, member.Model, member.Host)
	if err != nil {
		return err
	}
	// Schedule entry without a registration hash: dangling, reconcile by
	// dropping it.
	if !ok {
		return m.st.DropKeepAlive(ctx, member)
	}

	provider, ok := m.cat.ProviderByHost(member.Model, member.Host)
	if !ok {
		logging.Logger.Info("keep-alive target left the catalog",
			"model", member.Model, "host", member.Host)
		return m.st.DropKeepAlive(ctx, member)
	}

	free, err := m.hostFree(ctx, member.Host)
	if err != nil {
		return err
	}
	if !free {
		return m.st.Reschedule(ctx, member, now.Add(interval))
	}

	if err := m.ping(ctx, member.Model, provider); err != nil {
		metrics.KeepAlivePings.WithLabelValues(member.Model, member.Host, "error").Inc()
		logging.Logger.Warn("keep-alive ping failed",
			"model", member.Model, "host", member.Host, "err", err)
		backoff := interval
		if backoff < probeTimeout {
			backoff = probeTimeout
		}
		return m.st.Reschedule(ctx, member, now.Add(backoff))
	}

	metrics.KeepAlivePings.WithLabelValues(member.Model, member.Host, "ok").Inc()
	return m.st.Reschedule(ctx, member, now.Add(interval))
}

func (m *Monitor) ping(ctx context.Context, model string, p catalog.ProviderSpec) error {
	spec, err := apitypes.Resolve(p.APIType)
	if err != nil {
		return err
	}

	upstreamModel := p.ModelPath
	if upstreamModel == "" {
		upstreamModel = model
	}
	payload := map[string]any{
		"stream":      false,
		"model":       upstreamModel,
		"messages":    []map[string]any{{"role": "user", "content": probePrompt}},
		"max_tokens":  probeMaxTokens,
		"temperature": 0.0,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	url := strings.TrimSuffix(p.APIHost, "/") + spec.ChatPath
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, spec.ChatMethod, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+p.APIToken)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("keep-alive probe: HTTP %d", resp.StatusCode)
	}
	return nil
}
