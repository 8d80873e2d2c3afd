package strategies

import (
	"context"
	"sync"
	"time"

	"github.com/radlab/llm-router/apierror"
	"github.com/radlab/llm-router/catalog"
	"github.com/radlab/llm-router/internal/store"
)

// Weighted implements smooth weighted round-robin. Each call adds
// weight_i/Σweight to every provider's debt, picks the largest debt (ties
// broken by list order) and subtracts one from it. Long-run pick frequency
// matches the weight ratios.
type Weighted struct {
	mu    sync.Mutex
	debts map[string]map[string]float64
	usage usageRecorder

	// weightFor lets dynamic_weighted plug in penalty-adjusted weights.
	weightFor func(model string, p catalog.ProviderSpec) float64
}

// NewWeighted creates the weighted chooser. st may be nil; it is only used
// for keep-alive registration.
func NewWeighted(st *store.Store) *Weighted {
	w := &Weighted{
		debts: make(map[string]map[string]float64),
		usage: usageRecorder{st: st},
	}
	w.weightFor = func(_ string, p catalog.ProviderSpec) float64 {
		return p.EffectiveWeight()
	}
	return w
}

func (w *Weighted) Name() string { return NameWeighted }

func (w *Weighted) Choose(ctx context.Context, model string, providers []catalog.ProviderSpec) (catalog.ProviderSpec, error) {
	if len(providers) == 0 {
		return catalog.ProviderSpec{}, apierror.NoProviderAvailable(model)
	}

	w.mu.Lock()
	debts := w.debts[model]
	if debts == nil {
		debts = make(map[string]float64)
		w.debts[model] = debts
	}

	weights := make([]float64, len(providers))
	total := 0.0
	for i, p := range providers {
		weights[i] = w.weightFor(model, p)
		total += weights[i]
	}

	best := 0
	for i, p := range providers {
		debts[p.ID] += weights[i] / total
		if debts[p.ID] > debts[providers[best].ID] {
			best = i
		}
	}
	chosen := providers[best]
	debts[chosen.ID] -= 1
	w.mu.Unlock()

	w.usage.record(ctx, model, chosen)
	return chosen, nil
}

func (w *Weighted) Release(_ context.Context, _ string, _ catalog.ProviderSpec) error {
	return nil
}

func (w *Weighted) Feedback(_, _ string, _ time.Duration, _ bool) {}
