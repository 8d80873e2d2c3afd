package hook

import "sort"

// MaskerFactory creates a new masker instance.
type MaskerFactory func() Masker

// GuardrailFactory creates a new guardrail instance.
type GuardrailFactory func() Guardrail

var (
	maskerRegistry    = map[string]MaskerFactory{}
	guardrailRegistry = map[string]GuardrailFactory{}
)

// RegisterMaskerFactory registers a masker factory by name.
func RegisterMaskerFactory(name string, factory MaskerFactory) {
	maskerRegistry[name] = factory
}

// GetMaskerFactory returns a masker factory by name.
func GetMaskerFactory(name string) (MaskerFactory, bool) {
	f, ok := maskerRegistry[name]
	return f, ok
}

// RegisteredMaskers returns the sorted names of all masker factories.
func RegisteredMaskers() []string {
	names := make([]string, 0, len(maskerRegistry))
	for name := range maskerRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegisterGuardrailFactory registers a guardrail factory by name.
func RegisterGuardrailFactory(name string, factory GuardrailFactory) {
	guardrailRegistry[name] = factory
}

// GetGuardrailFactory returns a guardrail factory by name.
func GetGuardrailFactory(name string) (GuardrailFactory, bool) {
	f, ok := guardrailRegistry[name]
	return f, ok
}

// RegisteredGuardrails returns the sorted names of all guardrail factories.
func RegisteredGuardrails() []string {
	names := make([]string, 0, len(guardrailRegistry))
	for name := range guardrailRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
