package strategies

import (
	"context"
	"time"

	"github.com/radlab/llm-router/apierror"
	"github.com/radlab/llm-router/catalog"
	"github.com/radlab/llm-router/internal/metrics"
	"github.com/radlab/llm-router/internal/store"
)

// FirstAvailable takes the first provider in list order whose
// (model, provider-id) lock can be acquired in the shared store. One full
// pass without a successful acquisition means every provider is busy.
type FirstAvailable struct {
	st      *store.Store
	lockTTL time.Duration
	usage   usageRecorder
}

// NewFirstAvailable creates the first_available chooser.
func NewFirstAvailable(st *store.Store, lockTTL time.Duration) *FirstAvailable {
	return &FirstAvailable{
		st:      st,
		lockTTL: lockTTL,
		usage:   usageRecorder{st: st},
	}
}

func (f *FirstAvailable) Name() string { return NameFirstAvailable }

func (f *FirstAvailable) Choose(ctx context.Context, model string, providers []catalog.ProviderSpec) (catalog.ProviderSpec, error) {
	if len(providers) == 0 {
		return catalog.ProviderSpec{}, apierror.NoProviderAvailable(model)
	}
	for _, p := range providers {
		ok, err := f.st.AcquireLock(ctx, model, p.ID, f.lockTTL)
		if err != nil {
			metrics.LockAcquisitions.WithLabelValues(model, "store_error").Inc()
			return catalog.ProviderSpec{}, apierror.StoreUnavailable(err)
		}
		if !ok {
			metrics.LockAcquisitions.WithLabelValues(model, "busy").Inc()
			continue
		}
		metrics.LockAcquisitions.WithLabelValues(model, "acquired").Inc()
		f.usage.record(ctx, model, p)
		return p, nil
	}
	return catalog.ProviderSpec{}, apierror.NoProviderAvailable(model)
}

// Refresh extends the lock TTL for a held provider, keeping it reserved
// across the sub-requests of a fan-out endpoint.
func (f *FirstAvailable) Refresh(ctx context.Context, model string, p catalog.ProviderSpec) error {
	if err := f.st.RefreshLock(ctx, model, p.ID, f.lockTTL); err != nil {
		return apierror.StoreUnavailable(err)
	}
	return nil
}

func (f *FirstAvailable) Release(ctx context.Context, model string, p catalog.ProviderSpec) error {
	if err := f.st.ReleaseLock(ctx, model, p.ID); err != nil {
		return apierror.StoreUnavailable(err)
	}
	return nil
}

func (f *FirstAvailable) Feedback(_, _ string, _ time.Duration, _ bool) {}
