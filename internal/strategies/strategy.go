// Package strategies implements the provider selection strategies.
//
// Available strategies:
//   - balanced:              round-robin by least usage.
//   - weighted:              smooth weighted round-robin.
//   - dynamic_weighted:      weighted with latency and failure penalties.
//   - first_available:       first provider whose lock can be taken.
//   - first_available_optim: first_available with host affinity.
//
// The last two coordinate across workers through the shared store; the
// others keep per-process counters behind a mutex.
package strategies

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/radlab/llm-router/catalog"
	"github.com/radlab/llm-router/internal/store"
)

// Chooser picks one provider from a model's primary list.
type Chooser interface {
	Name() string
	// Choose returns one of providers or an error from the apierror
	// taxonomy. Safe for concurrent use.
	Choose(ctx context.Context, model string, providers []catalog.ProviderSpec) (catalog.ProviderSpec, error)
	// Release returns a provider acquired by Choose. A no-op for
	// non-locking strategies.
	Release(ctx context.Context, model string, p catalog.ProviderSpec) error
	// Feedback reports the outcome of an upstream call. Only
	// dynamic_weighted acts on it.
	Feedback(model, providerID string, latency time.Duration, failed bool)
}

// Strategy names accepted by New.
const (
	NameBalanced            = "balanced"
	NameWeighted            = "weighted"
	NameDynamicWeighted     = "dynamic_weighted"
	NameFirstAvailable      = "first_available"
	NameFirstAvailableOptim = "first_available_optim"
)

// New builds the named chooser. st may be nil for the in-memory strategies;
// the first_available family requires it. lockTTL is the TTL applied to
// provider locks (request timeout plus grace).
func New(name string, st *store.Store, lockTTL time.Duration) (Chooser, error) {
	switch name {
	case NameBalanced:
		return NewBalanced(st), nil
	case NameWeighted:
		return NewWeighted(st), nil
	case NameDynamicWeighted:
		return NewDynamicWeighted(st), nil
	case NameFirstAvailable:
		if st == nil {
			return nil, fmt.Errorf("strategy %s requires the coordination store", name)
		}
		return NewFirstAvailable(st, lockTTL), nil
	case NameFirstAvailableOptim:
		if st == nil {
			return nil, fmt.Errorf("strategy %s requires the coordination store", name)
		}
		return NewFirstAvailableOptim(st, lockTTL), nil
	default:
		return nil, fmt.Errorf("unknown strategy %q (valid: %s, %s, %s, %s, %s)",
			name, NameBalanced, NameWeighted, NameDynamicWeighted,
			NameFirstAvailable, NameFirstAvailableOptim)
	}
}

// RequiresStore reports whether the named strategy needs the coordination
// store to function.
func RequiresStore(name string) bool {
	return name == NameFirstAvailable || name == NameFirstAvailableOptim
}

// usageRecorder registers chosen providers with the keep-alive schedule.
// Recording is best effort for the in-memory strategies: a store outage
// must not fail their selections.
type usageRecorder struct {
	st *store.Store
}

func (u usageRecorder) record(ctx context.Context, model string, p catalog.ProviderSpec) {
	if u.st == nil || p.KeepAlive == "" {
		return
	}
	d, err := catalog.ParseKeepAlive(p.KeepAlive)
	if err != nil {
		slog.Warn("invalid keep_alive on chosen provider", "model", model, "provider", p.ID, "err", err)
		return
	}
	if err := u.st.RecordUsage(ctx, model, p.Host(), d); err != nil {
		slog.Warn("keep-alive registration failed", "model", model, "host", p.Host(), "err", err)
	}
}
