package strategies

import (
	"sync"
	"time"

	"github.com/radlab/llm-router/catalog"
	"github.com/radlab/llm-router/internal/store"
)

const (
	emaAlpha       = 0.2
	penaltyFloor   = 0.1
	penaltyCeiling = 10.0
	failStreak     = 3
	failPenalty    = 0.1
	failPenaltyTTL = 60 * time.Second
)

// DynamicWeighted is the weighted chooser with weights scaled by observed
// latency and failure streaks. Still beta: the penalty bounds are fixed.
type DynamicWeighted struct {
	*Weighted

	mu     sync.Mutex
	health map[string]*providerHealth // keyed by model + "\x00" + provider id
	now    func() time.Time
}

type providerHealth struct {
	emaLatency     float64 // seconds, 0 until the first sample
	consecFailures int
	penalizedUntil time.Time
}

// NewDynamicWeighted creates the dynamic_weighted chooser.
func NewDynamicWeighted(st *store.Store) *DynamicWeighted {
	d := &DynamicWeighted{
		Weighted: NewWeighted(st),
		health:   make(map[string]*providerHealth),
		now:      time.Now,
	}
	d.Weighted.weightFor = d.effectiveWeight
	return d
}

func (d *DynamicWeighted) Name() string { return NameDynamicWeighted }

func (d *DynamicWeighted) effectiveWeight(model string, p catalog.ProviderSpec) float64 {
	w := p.EffectiveWeight()

	d.mu.Lock()
	h := d.health[healthKey(model, p.ID)]
	if h != nil {
		if h.emaLatency > 0 {
			penalty := 1 / h.emaLatency
			if penalty < penaltyFloor {
				penalty = penaltyFloor
			}
			if penalty > penaltyCeiling {
				penalty = penaltyCeiling
			}
			w *= penalty
		}
		if d.now().Before(h.penalizedUntil) {
			w *= failPenalty
		}
	}
	d.mu.Unlock()
	return w
}

// Feedback records the outcome of an upstream call against the provider.
func (d *DynamicWeighted) Feedback(model, providerID string, latency time.Duration, failed bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := healthKey(model, providerID)
	h := d.health[key]
	if h == nil {
		h = &providerHealth{}
		d.health[key] = h
	}

	if failed {
		h.consecFailures++
		if h.consecFailures >= failStreak {
			h.penalizedUntil = d.now().Add(failPenaltyTTL)
		}
		return
	}

	h.consecFailures = 0
	sample := latency.Seconds()
	if h.emaLatency == 0 {
		h.emaLatency = sample
	} else {
		h.emaLatency = emaAlpha*sample + (1-emaAlpha)*h.emaLatency
	}
}

func healthKey(model, providerID string) string {
	return model + "\x00" + providerID
}
