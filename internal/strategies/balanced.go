package strategies

import (
	"context"
	"sync"
	"time"

	"github.com/radlab/llm-router/apierror"
	"github.com/radlab/llm-router/catalog"
	"github.com/radlab/llm-router/internal/store"
)

// Counters are renormalized once the smallest reaches this bound, so
// long-lived processes never overflow.
const renormalizeAt = 1 << 30

// Balanced picks the provider with the fewest selections so far, ties
// broken by list order.
type Balanced struct {
	mu       sync.Mutex
	counters map[string]map[string]int
	usage    usageRecorder
}

// NewBalanced creates the balanced chooser. st may be nil; it is only used
// for keep-alive registration.
func NewBalanced(st *store.Store) *Balanced {
	return &Balanced{
		counters: make(map[string]map[string]int),
		usage:    usageRecorder{st: st},
	}
}

func (b *Balanced) Name() string { return NameBalanced }

func (b *Balanced) Choose(ctx context.Context, model string, providers []catalog.ProviderSpec) (catalog.ProviderSpec, error) {
	if len(providers) == 0 {
		return catalog.ProviderSpec{}, apierror.NoProviderAvailable(model)
	}

	b.mu.Lock()
	counts := b.counters[model]
	if counts == nil {
		counts = make(map[string]int)
		b.counters[model] = counts
	}

	best := 0
	for i := 1; i < len(providers); i++ {
		if counts[providers[i].ID] < counts[providers[best].ID] {
			best = i
		}
	}
	chosen := providers[best]
	counts[chosen.ID]++

	if counts[chosen.ID] >= renormalizeAt {
		min := counts[chosen.ID]
		for _, c := range counts {
			if c < min {
				min = c
			}
		}
		for id := range counts {
			counts[id] -= min
		}
	}
	b.mu.Unlock()

	b.usage.record(ctx, model, chosen)
	return chosen, nil
}

func (b *Balanced) Release(_ context.Context, _ string, _ catalog.ProviderSpec) error {
	return nil
}

func (b *Balanced) Feedback(_, _ string, _ time.Duration, _ bool) {}
