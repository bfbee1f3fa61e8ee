package twin

import (
	"math"
	"time"
)

// #region thresholds
// Stability classification thresholds on mean variable variance.
const (
	stabilityStableMax   = 0.02
	stabilityModerateMax = 0.08
)

// dataQualityHalfLifeDays controls how fast a variable's contribution to the
// data-quality composite decays without fresh observations.
const dataQualityHalfLifeDays = 3.0

// regime anchors on the wellbeing axis. Calibration pending.
var regimeAnchors = map[Regime]float64{
	RegimeHealthy:  0.75,
	RegimeStressed: 0.45,
	RegimeCrisis:   0.20,
}

const regimeAnchorSpread = 0.03 // variance of the anchor kernels

// #endregion thresholds

// #region recompute
// RecomputeComposites refreshes every derived metric on the twin. history
// may be nil; the dynamics summaries then stay at their zero values.
func RecomputeComposites(t *TwinState, history []*TwinState) {
	t.Composites.OverallWellbeing = wellbeing(t)
	t.Composites.Stability = stability(t)
	t.Composites.Resilience = resilience(t)
	t.Composites.DataQuality = dataQuality(t, t.UpdatedAt)

	auto, ratio := dynamicsSummary(history)
	t.Composites.MeanAutocorrelation = auto
	t.Composites.MeanVarianceRatio = ratio
	t.Composites.ChaosIndicator = clamp01(0.5*math.Max(0, ratio-1) + 0.5*math.Max(0, auto))

	regimeBelief(t)
}

// #endregion recompute

// #region wellbeing
// wellbeing is the weighted positive-minus-negative aggregate, centered so a
// twin at baseline defaults sits at 0.5.
func wellbeing(t *TwinState) float64 {
	score := 0.5
	for _, spec := range DefaultVariables {
		if spec.WellbeingWeight == 0 {
			continue
		}
		v, ok := t.Variables[spec.ID]
		if !ok {
			continue
		}
		score += spec.WellbeingWeight * (v.Value - 0.5)
	}
	return clamp01(score)
}

func stability(t *TwinState) StabilityClass {
	if len(t.Variables) == 0 {
		return StabilityModerate
	}
	var sum float64
	for _, v := range t.Variables {
		sum += v.Variance
	}
	mean := sum / float64(len(t.Variables))
	switch {
	case mean < stabilityStableMax:
		return StabilityStable
	case mean < stabilityModerateMax:
		return StabilityModerate
	default:
		return StabilityUnstable
	}
}

// resilience averages the protective variables.
func resilience(t *TwinState) float64 {
	var sum float64
	var n int
	for _, spec := range DefaultVariables {
		if !spec.Protective {
			continue
		}
		if v, ok := t.Variables[spec.ID]; ok {
			sum += v.Value
			n++
		}
	}
	if n == 0 {
		return 0.5
	}
	return sum / float64(n)
}

// dataQuality decays each variable's contribution by time since its last
// observation; never-observed variables contribute zero.
func dataQuality(t *TwinState, now time.Time) float64 {
	if len(t.Variables) == 0 {
		return 0
	}
	var sum float64
	for _, v := range t.Variables {
		if v.LastObserved.IsZero() {
			continue
		}
		days := now.Sub(v.LastObserved).Hours() / 24
		if days < 0 {
			days = 0
		}
		sum += math.Exp(-days * math.Ln2 / dataQualityHalfLifeDays)
	}
	return sum / float64(len(t.Variables))
}

// #endregion wellbeing

// #region dynamics
// dynamicsSummary computes lag-1 autocorrelation and a second-half/first-half
// variance ratio over the historical wellbeing series.
func dynamicsSummary(history []*TwinState) (autocorr, varianceRatio float64) {
	if len(history) < 4 {
		return 0, 0
	}
	series := make([]float64, len(history))
	for i, h := range history {
		series[i] = h.Composites.OverallWellbeing
	}
	return Lag1Autocorrelation(series), VarianceRatio(series)
}

// Lag1Autocorrelation returns the lag-1 autocorrelation of the series
// (0 for degenerate input).
func Lag1Autocorrelation(series []float64) float64 {
	n := len(series)
	if n < 3 {
		return 0
	}
	mean := meanOf(series)
	var num, den float64
	for i := 0; i < n; i++ {
		d := series[i] - mean
		den += d * d
		if i < n-1 {
			num += d * (series[i+1] - mean)
		}
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// VarianceRatio returns var(second half)/var(first half), 0 when the first
// half is flat.
func VarianceRatio(series []float64) float64 {
	n := len(series)
	if n < 4 {
		return 0
	}
	first := varianceOf(series[:n/2])
	second := varianceOf(series[n/2:])
	if first == 0 {
		return 0
	}
	return second / first
}

func meanOf(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func varianceOf(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	mean := meanOf(xs)
	var sum float64
	for _, x := range xs {
		d := x - mean
		sum += d * d
	}
	return sum / float64(len(xs)-1)
}

// #endregion dynamics

// #region regime-belief
// regimeBelief scores the wellbeing composite against the regime anchors
// with Gaussian kernels, normalizes to a distribution, and records its
// Shannon entropy and argmax.
func regimeBelief(t *TwinState) {
	w := t.Composites.OverallWellbeing
	belief := make(map[Regime]float64, len(Regimes))
	var total float64
	for _, r := range Regimes {
		d := w - regimeAnchors[r]
		score := math.Exp(-d * d / (2 * regimeAnchorSpread))
		belief[r] = score
		total += score
	}

	var entropy float64
	best := Regimes[0]
	for _, r := range Regimes {
		belief[r] /= total
		if belief[r] > belief[best] {
			best = r
		}
		if belief[r] > 0 {
			entropy -= belief[r] * math.Log(belief[r])
		}
	}
	t.RegimeBelief = belief
	t.RegimeEntropy = entropy
	t.Composites.DominantAttractor = best
}

// #endregion regime-belief
