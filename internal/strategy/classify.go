package strategy

import (
	"math"

	"github.com/danielpatrickdp/latent-twin/go-twin/internal/twin"
)

// #region thresholds

// Bucket boundaries. Heuristic, calibration pending.
const (
	sparsePerDay = 0.5
	densePerDay  = 2.0

	lowVolatility  = 0.02
	highVolatility = 0.06

	irregularGapCV = 1.0
)

// #endregion thresholds

// #region classify

// Classify buckets a subject's snapshot history into a data regime. Too
// little history lands in the sparse/low/regular corner, which routes to
// the prior-driven method.
func Classify(history []*twin.TwinState) DataClass {
	class := DataClass{
		Density:    DensitySparse,
		Volatility: VolatilityLow,
		Regularity: RegularityRegular,
	}
	if len(history) < 2 {
		return class
	}

	spanDays := history[len(history)-1].UpdatedAt.Sub(history[0].UpdatedAt).Hours() / 24
	if spanDays < 1 {
		spanDays = 1
	}
	perDay := float64(len(history)) / spanDays
	switch {
	case perDay >= densePerDay:
		class.Density = DensityDense
	case perDay >= sparsePerDay:
		class.Density = DensityModerate
	}

	class.Volatility = volatilityOf(history)
	class.Regularity = regularityOf(history)
	return class
}

// volatilityOf is the std of first differences of the wellbeing series.
func volatilityOf(history []*twin.TwinState) Volatility {
	diffs := make([]float64, 0, len(history)-1)
	for i := 1; i < len(history); i++ {
		diffs = append(diffs, history[i].Composites.OverallWellbeing-history[i-1].Composites.OverallWellbeing)
	}
	sd := stddev(diffs)
	switch {
	case sd >= highVolatility:
		return VolatilityHigh
	case sd >= lowVolatility:
		return VolatilityModerate
	default:
		return VolatilityLow
	}
}

// regularityOf checks the coefficient of variation of inter-snapshot gaps.
func regularityOf(history []*twin.TwinState) Regularity {
	gaps := make([]float64, 0, len(history)-1)
	for i := 1; i < len(history); i++ {
		gaps = append(gaps, history[i].UpdatedAt.Sub(history[i-1].UpdatedAt).Hours())
	}
	m := meanOf(gaps)
	if m <= 0 {
		return RegularityIrregular
	}
	if stddev(gaps)/m >= irregularGapCV {
		return RegularityIrregular
	}
	return RegularityRegular
}

// #endregion classify

// #region stats

func meanOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var s float64
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

func stddev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := meanOf(xs)
	var s float64
	for _, x := range xs {
		d := x - m
		s += d * d
	}
	return math.Sqrt(s / float64(len(xs)-1))
}

// #endregion stats
