package strategies

import (
	"context"
	"time"

	"github.com/radlab/llm-router/apierror"
	"github.com/radlab/llm-router/catalog"
	"github.com/radlab/llm-router/internal/metrics"
	"github.com/radlab/llm-router/internal/store"
)

// FirstAvailableOptim is first_available with host affinity. Acquisition
// attempts are ordered: the model's last host, then hosts already serving
// the model, then idle unused hosts, then anything left. Every successful
// attempt is witnessed by the atomic acquire script, so affinity hints can
// be stale without ever double-booking a provider.
type FirstAvailableOptim struct {
	st      *store.Store
	lockTTL time.Duration
	usage   usageRecorder
}

// NewFirstAvailableOptim creates the first_available_optim chooser.
func NewFirstAvailableOptim(st *store.Store, lockTTL time.Duration) *FirstAvailableOptim {
	return &FirstAvailableOptim{
		st:      st,
		lockTTL: lockTTL,
		usage:   usageRecorder{st: st},
	}
}

func (f *FirstAvailableOptim) Name() string { return NameFirstAvailableOptim }

func (f *FirstAvailableOptim) Choose(ctx context.Context, model string, providers []catalog.ProviderSpec) (catalog.ProviderSpec, error) {
	if len(providers) == 0 {
		return catalog.ProviderSpec{}, apierror.NoProviderAvailable(model)
	}

	tried := make(map[string]bool, len(providers))

	// Step 1: re-use the model's last host.
	lastHost, err := f.st.LastHost(ctx, model)
	if err != nil {
		return catalog.ProviderSpec{}, apierror.StoreUnavailable(err)
	}
	if lastHost != "" {
		known := false
		for _, p := range providers {
			if p.Host() != lastHost {
				continue
			}
			known = true
			chosen, ok, err := f.try(ctx, model, p, tried)
			if err != nil {
				return catalog.ProviderSpec{}, err
			}
			if ok {
				return chosen, nil
			}
		}
		// The pointer refers to a host the catalog no longer lists:
		// stale cache entry, drop it.
		if !known {
			if err := f.st.DropLastHost(ctx, model); err != nil {
				return catalog.ProviderSpec{}, apierror.StoreUnavailable(err)
			}
		}
	}

	// Step 2: re-use any host already serving the model.
	knownHosts, err := f.st.KnownHosts(ctx, model)
	if err != nil {
		return catalog.ProviderSpec{}, apierror.StoreUnavailable(err)
	}
	knownSet := make(map[string]bool, len(knownHosts))
	for _, h := range knownHosts {
		knownSet[h] = true
	}
	for _, p := range providers {
		if !knownSet[p.Host()] || tried[p.ID] {
			continue
		}
		chosen, ok, err := f.try(ctx, model, p, tried)
		if err != nil {
			return catalog.ProviderSpec{}, err
		}
		if ok {
			return chosen, nil
		}
	}

	// Step 3: spread to a host nothing occupies yet.
	for _, p := range providers {
		if knownSet[p.Host()] || tried[p.ID] {
			continue
		}
		busy, err := f.st.HostBusy(ctx, p.Host())
		if err != nil {
			return catalog.ProviderSpec{}, apierror.StoreUnavailable(err)
		}
		if busy {
			continue
		}
		chosen, ok, err := f.try(ctx, model, p, tried)
		if err != nil {
			return catalog.ProviderSpec{}, err
		}
		if ok {
			return chosen, nil
		}
	}

	// Step 4: plain first-available pass over whatever remains.
	for _, p := range providers {
		if tried[p.ID] {
			continue
		}
		chosen, ok, err := f.try(ctx, model, p, tried)
		if err != nil {
			return catalog.ProviderSpec{}, err
		}
		if ok {
			return chosen, nil
		}
	}

	return catalog.ProviderSpec{}, apierror.NoProviderAvailable(model)
}

func (f *FirstAvailableOptim) try(ctx context.Context, model string, p catalog.ProviderSpec, tried map[string]bool) (catalog.ProviderSpec, bool, error) {
	tried[p.ID] = true
	ok, err := f.st.AcquireProvider(ctx, model, p.ID, p.Host(), f.lockTTL)
	if err != nil {
		metrics.LockAcquisitions.WithLabelValues(model, "store_error").Inc()
		return catalog.ProviderSpec{}, false, apierror.StoreUnavailable(err)
	}
	if !ok {
		metrics.LockAcquisitions.WithLabelValues(model, "busy").Inc()
		return catalog.ProviderSpec{}, false, nil
	}
	metrics.LockAcquisitions.WithLabelValues(model, "acquired").Inc()
	f.usage.record(ctx, model, p)
	return p, true, nil
}

// Refresh extends the lock TTL for a held provider.
func (f *FirstAvailableOptim) Refresh(ctx context.Context, model string, p catalog.ProviderSpec) error {
	if err := f.st.RefreshLock(ctx, model, p.ID, f.lockTTL); err != nil {
		return apierror.StoreUnavailable(err)
	}
	return nil
}

func (f *FirstAvailableOptim) Release(ctx context.Context, model string, p catalog.ProviderSpec) error {
	if err := f.st.ReleaseProvider(ctx, model, p.ID, p.Host()); err != nil {
		return apierror.StoreUnavailable(err)
	}
	return nil
}

func (f *FirstAvailableOptim) Feedback(_, _ string, _ time.Duration, _ bool) {}
