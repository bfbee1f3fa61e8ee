package strategy

import (
	"github.com/danielpatrickdp/latent-twin/go-twin/internal/service"
)

// #region default-mapping

// defaultMapping maps (Density, Volatility) to the default estimation
// method. Sparse regimes lean on learned priors, dense volatile regimes
// justify the ensemble's cost, everything else takes the plain filter.
var defaultMapping = map[Density]map[Volatility]service.Method{
	DensitySparse: {
		VolatilityLow:      service.MethodBayesian,
		VolatilityModerate: service.MethodBayesian,
		VolatilityHigh:     service.MethodBayesian,
	},
	DensityModerate: {
		VolatilityLow:      service.MethodKalman,
		VolatilityModerate: service.MethodKalman,
		VolatilityHigh:     service.MethodEnsemble,
	},
	DensityDense: {
		VolatilityLow:      service.MethodKalman,
		VolatilityModerate: service.MethodEnsemble,
		VolatilityHigh:     service.MethodEnsemble,
	},
}

// #endregion

// #region fallback

// fallbackChain orders the methods to try when one fails, most robust
// last.
var fallbackChain = []service.Method{
	service.MethodEnsemble,
	service.MethodBayesian,
	service.MethodKalman,
}

// #endregion

// #region selector

// Selector picks estimation methods based on the data regime, learned
// outcomes, and prior failures.
type Selector struct {
	memory *Memory // nil = no learning
}

// NewSelector creates a selector with optional memory backing.
func NewSelector(memory *Memory) *Selector {
	return &Selector{memory: memory}
}

// SelectMethod picks the method for a regime: learned best first, then the
// static mapping.
func (s *Selector) SelectMethod(class DataClass) service.Method {
	if s.memory != nil {
		learned, _, err := s.memory.BestMethod(class)
		if err == nil && learned != "" {
			if m, perr := service.ParseMethod(learned); perr == nil {
				return m
			}
		}
	}

	if volMap, ok := defaultMapping[class.Density]; ok {
		if m, ok := volMap[class.Volatility]; ok {
			return m
		}
	}
	return service.MethodKalman
}

// RecordOutcome forwards an estimation outcome to the memory backing. A
// selector without memory drops it.
func (s *Selector) RecordOutcome(rec OutcomeRecord) error {
	if s.memory == nil {
		return nil
	}
	return s.memory.RecordOutcome(rec)
}

// SelectFallback picks the next method after a failure, skipping any
// already tried. Returns false when everything has been exhausted.
func (s *Selector) SelectFallback(tried []service.Method) (service.Method, bool) {
	triedSet := make(map[service.Method]bool, len(tried))
	for _, m := range tried {
		triedSet[m] = true
	}
	for _, m := range fallbackChain {
		if !triedSet[m] {
			return m, true
		}
	}
	return 0, false
}

// #endregion
