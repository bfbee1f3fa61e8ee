package eval

import (
	"fmt"
	"math"
	"sort"

	"github.com/danielpatrickdp/latent-twin/go-twin/internal/twin"
)

// #region eval-harness
// Harness runs lightweight post-cycle validation on twin state.
type Harness struct {
	config EvalConfig
}

// NewHarness creates an eval harness with the given configuration.
func NewHarness(config EvalConfig) *Harness {
	return &Harness{config: config}
}

// Run validates a freshly committed twin: every estimate finite and inside
// the working range, variances bounded, confidences in range, regime
// belief a proper distribution. Returns pass/fail with metrics.
func (h *Harness) Run(t *twin.TwinState) EvalResult {
	var metrics []EvalMetric
	passed := true
	var failReasons []string

	check := func(name string, value float64, pass bool, reason string) {
		metrics = append(metrics, EvalMetric{Name: name, Value: value, Pass: pass})
		if !pass {
			passed = false
			failReasons = append(failReasons, reason)
		}
	}

	// 1. Per-variable bounds. Iterate in canonical order for stable output.
	ids := make([]string, 0, len(t.Variables))
	for id := range t.Variables {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		v := t.Variables[id]

		finite := !math.IsNaN(v.Value) && !math.IsInf(v.Value, 0)
		inRange := finite && v.Value >= -h.config.ValueSlack && v.Value <= 1+h.config.ValueSlack
		check("value_"+id, v.Value, inRange,
			fmt.Sprintf("%s value %.4f outside working range", id, v.Value))

		varOK := !math.IsNaN(v.Variance) && v.Variance >= h.config.MinVariance && v.Variance <= h.config.MaxVariance
		check("variance_"+id, v.Variance, varOK,
			fmt.Sprintf("%s variance %.6f outside [%g, %g]", id, v.Variance, h.config.MinVariance, h.config.MaxVariance))

		confOK := v.Confidence >= 0 && v.Confidence <= 1
		check("confidence_"+id, v.Confidence, confOK,
			fmt.Sprintf("%s confidence %.4f outside [0,1]", id, v.Confidence))
	}

	// 2. Regime belief must be a distribution.
	var beliefSum float64
	beliefOK := true
	for _, r := range twin.Regimes {
		p := t.RegimeBelief[r]
		if math.IsNaN(p) || p < 0 || p > 1 {
			beliefOK = false
		}
		beliefSum += p
	}
	if math.Abs(beliefSum-1) > h.config.BeliefTolerance {
		beliefOK = false
	}
	check("regime_belief_sum", beliefSum, beliefOK,
		fmt.Sprintf("regime belief sums to %.6f", beliefSum))

	// 3. Composites finite.
	wellOK := !math.IsNaN(t.Composites.OverallWellbeing) &&
		t.Composites.OverallWellbeing >= -h.config.ValueSlack &&
		t.Composites.OverallWellbeing <= 1+h.config.ValueSlack
	check("wellbeing", t.Composites.OverallWellbeing, wellOK,
		fmt.Sprintf("wellbeing %.4f outside working range", t.Composites.OverallWellbeing))

	// 4. Entropy check: informational, never blocking.
	metrics = append(metrics, EvalMetric{
		Name:  "regime_entropy",
		Value: t.RegimeEntropy,
		Pass:  t.RegimeEntropy <= h.config.MaxEntropy,
	})

	reason := "all checks passed"
	if !passed {
		reason = fmt.Sprintf("eval failed: %s", failReasons[0])
		if len(failReasons) > 1 {
			reason = fmt.Sprintf("eval failed: %d checks: %s", len(failReasons), failReasons[0])
		}
	}

	return EvalResult{
		Passed:  passed,
		Metrics: metrics,
		Reason:  reason,
		Quality: quality(metrics),
	}
}

// #endregion eval-harness

// #region helpers
// quality is the fraction of passing checks.
func quality(metrics []EvalMetric) float64 {
	if len(metrics) == 0 {
		return 0
	}
	passCount := 0
	for _, m := range metrics {
		if m.Pass {
			passCount++
		}
	}
	return float64(passCount) / float64(len(metrics))
}

// #endregion helpers
