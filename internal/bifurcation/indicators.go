package bifurcation

import (
	"math"

	"github.com/danielpatrickdp/latent-twin/go-twin/internal/twin"
)

// #region panel

// computeIndicators builds the full early-warning panel for one variable
// series. wellbeing is the matching composite series for cross-correlation;
// it may be shorter or empty.
func computeIndicators(series, wellbeing []float64, cfg Config) Indicators {
	half := len(series) / 2
	first, second := series[:half], series[half:]

	ind := Indicators{
		Lag1Autocorr:  twin.Lag1Autocorrelation(series),
		VarianceRatio: twin.VarianceRatio(series),
		CrossCorr:     correlation(series, wellbeing),
		RecoveryRate:  recoveryRate(series, cfg.DeviationBand),
		DFAExponent:   dfaExponent(series),
		Skewness:      skewness(series),
		Flickering:    flickering(series),
		Periodicity:   periodicity(series),
	}
	if half >= 3 {
		ind.AutocorrTrend = twin.Lag1Autocorrelation(second) - twin.Lag1Autocorrelation(first)
		ind.SkewnessChange = skewness(second) - skewness(first)
	}
	return ind
}

// #endregion panel

// #region moments

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var s float64
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

func variance(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var s float64
	for _, x := range xs {
		d := x - m
		s += d * d
	}
	return s / float64(len(xs)-1)
}

// skewness is the standardized third moment; zero for degenerate series.
func skewness(xs []float64) float64 {
	if len(xs) < 3 {
		return 0
	}
	m := mean(xs)
	var m2, m3 float64
	for _, x := range xs {
		d := x - m
		m2 += d * d
		m3 += d * d * d
	}
	n := float64(len(xs))
	m2 /= n
	m3 /= n
	if m2 < 1e-12 {
		return 0
	}
	return m3 / math.Pow(m2, 1.5)
}

// correlation is the Pearson coefficient over the common suffix of the two
// series.
func correlation(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n < 3 {
		return 0
	}
	a, b = a[len(a)-n:], b[len(b)-n:]
	ma, mb := mean(a), mean(b)
	var num, da, db float64
	for i := 0; i < n; i++ {
		x, y := a[i]-ma, b[i]-mb
		num += x * y
		da += x * x
		db += y * y
	}
	if da < 1e-12 || db < 1e-12 {
		return 0
	}
	return num / math.Sqrt(da*db)
}

// #endregion moments

// #region recovery

// recoveryRate measures how fast the series pulls back after excursions
// beyond band from its mean: the mean fractional reduction of the
// deviation on the following step. Near zero means critical slowing down.
func recoveryRate(series []float64, band float64) float64 {
	if len(series) < 3 {
		return 1
	}
	m := mean(series)
	var total float64
	var count int
	for i := 0; i < len(series)-1; i++ {
		d0 := math.Abs(series[i] - m)
		if d0 <= band {
			continue
		}
		d1 := math.Abs(series[i+1] - m)
		total += (d0 - d1) / d0
		count++
	}
	if count == 0 {
		// No excursions: nothing to recover from, treat as healthy.
		return 1
	}
	r := total / float64(count)
	if r < 0 {
		return 0
	}
	if r > 1 {
		return 1
	}
	return r
}

// #endregion recovery

// #region dfa

// dfaWindows are the box sizes used for the detrended fluctuation fit.
var dfaWindows = []int{4, 8, 16}

// dfaExponent estimates the detrended fluctuation analysis scaling
// exponent. Exponents drifting above 1 indicate growing long-range memory,
// a known precursor of regime shifts. Short series fall back to 0.5
// (uncorrelated noise).
func dfaExponent(series []float64) float64 {
	if len(series) < dfaWindows[0]*2 {
		return 0.5
	}
	// Integrated profile of mean-removed series.
	m := mean(series)
	profile := make([]float64, len(series))
	var cum float64
	for i, x := range series {
		cum += x - m
		profile[i] = cum
	}

	var logN, logF []float64
	for _, w := range dfaWindows {
		if w*2 > len(profile) {
			break
		}
		f := dfaFluctuation(profile, w)
		if f <= 0 {
			continue
		}
		logN = append(logN, math.Log(float64(w)))
		logF = append(logF, math.Log(f))
	}
	if len(logN) < 2 {
		return 0.5
	}
	slope := fitSlope(logN, logF)
	if math.IsNaN(slope) {
		return 0.5
	}
	return slope
}

// dfaFluctuation is the RMS residual of per-box linear detrending at one
// box size.
func dfaFluctuation(profile []float64, w int) float64 {
	boxes := len(profile) / w
	if boxes == 0 {
		return 0
	}
	var sum float64
	var n int
	for b := 0; b < boxes; b++ {
		seg := profile[b*w : (b+1)*w]
		xs := make([]float64, w)
		for i := range xs {
			xs[i] = float64(i)
		}
		slope := fitSlope(xs, seg)
		intercept := mean(seg) - slope*mean(xs)
		for i, y := range seg {
			r := y - (intercept + slope*float64(i))
			sum += r * r
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(n))
}

// fitSlope is the least-squares slope of y on x.
func fitSlope(x, y []float64) float64 {
	mx, my := mean(x), mean(y)
	var num, den float64
	for i := range x {
		dx := x[i] - mx
		num += dx * (y[i] - my)
		den += dx * dx
	}
	if den < 1e-12 {
		return math.NaN()
	}
	return num / den
}

// #endregion dfa

// #region flickering

// flickering scores rapid switching between alternative states: a bimodal
// value histogram combined with frequent mean crossings, gated on the
// swing being large enough to matter in the [0,1] variable scale. Either
// factor alone is ordinary noise.
func flickering(series []float64) float64 {
	if len(series) < 6 {
		return 0
	}
	sd := math.Sqrt(variance(series))
	amplitude := clamp01((sd - 0.05) / 0.15)
	if amplitude == 0 {
		return 0
	}
	if !bimodalHistogram(series) {
		return 0
	}

	m := mean(series)
	crossRate := float64(meanCrossings(series, m)) / float64(len(series)-1)
	return amplitude * clamp01(crossRate*2)
}

// histogramBins is the bin count used for bimodality detection.
const histogramBins = 8

// bimodalHistogram bins the series over its own range and reports whether
// the histogram shows two separated peaks with a strictly lower trough
// between them.
func bimodalHistogram(series []float64) bool {
	lo, hi := series[0], series[0]
	for _, x := range series {
		if x < lo {
			lo = x
		}
		if x > hi {
			hi = x
		}
	}
	if hi-lo < 1e-9 {
		return false
	}
	counts := make([]int, histogramBins)
	for _, x := range series {
		b := int((x - lo) / (hi - lo) * histogramBins)
		if b == histogramBins {
			b = histogramBins - 1
		}
		counts[b]++
	}

	var peaks []int
	for i, c := range counts {
		if c == 0 {
			continue
		}
		left := i == 0 || c > counts[i-1]
		right := i == histogramBins-1 || c > counts[i+1]
		if left && right {
			peaks = append(peaks, i)
		}
	}
	if len(peaks) < 2 {
		return false
	}
	// The trough between the outermost peaks must dip below both.
	first, last := peaks[0], peaks[len(peaks)-1]
	trough := counts[first]
	for i := first + 1; i < last; i++ {
		if counts[i] < trough {
			trough = counts[i]
		}
	}
	return trough < counts[first] && trough < counts[last]
}

// meanCrossings counts sign changes of the series around level m.
func meanCrossings(series []float64, m float64) int {
	crossings := 0
	for i := 1; i < len(series); i++ {
		if (series[i-1] < m) != (series[i] < m) {
			crossings++
		}
	}
	return crossings
}

// periodicity scores how rhythmic the series' mean crossings are: a clean
// oscillation crosses its mean at evenly spaced intervals, noise does not.
// Fewer than four crossings cannot establish a rhythm.
func periodicity(series []float64) float64 {
	n := len(series)
	if n < 8 {
		return 0
	}
	m := mean(series)
	var cross []int
	for i := 1; i < n; i++ {
		if (series[i-1] < m) != (series[i] < m) {
			cross = append(cross, i)
		}
	}
	if len(cross) < 4 {
		return 0
	}
	intervals := make([]float64, len(cross)-1)
	for i := 1; i < len(cross); i++ {
		intervals[i-1] = float64(cross[i] - cross[i-1])
	}
	mi := mean(intervals)
	if mi < 1e-9 {
		return 0
	}
	return clamp01(1 - math.Sqrt(variance(intervals))/mi)
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// #endregion flickering
