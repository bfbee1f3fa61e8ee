package bifurcation

import (
	"math"
	"sort"
	"time"

	"github.com/danielpatrickdp/latent-twin/go-twin/internal/twin"
)

// #region detector

// Detector scans snapshot history for variables approaching a critical
// transition. Detection is pure: no persistence, no clock besides the
// caller's.
type Detector struct {
	cfg Config
}

func NewDetector(cfg Config) *Detector {
	return &Detector{cfg: cfg}
}

// Detect returns every watched variable currently judged to be approaching
// its tipping threshold, soonest first. History shorter than the minimum
// yields an empty result.
func (d *Detector) Detect(history []*twin.TwinState, now time.Time) []TippingPoint {
	if len(history) < d.cfg.MinHistory {
		return nil
	}

	wellbeing := make([]float64, len(history))
	days := make([]float64, len(history))
	t0 := history[0].UpdatedAt
	for i, snap := range history {
		wellbeing[i] = snap.Composites.OverallWellbeing
		days[i] = snap.UpdatedAt.Sub(t0).Hours() / 24
	}

	var points []TippingPoint
	for _, cv := range criticalVariables {
		series := variableSeries(history, cv.id)
		if len(series) < d.cfg.MinHistory {
			continue
		}
		if p, ok := d.assess(cv, series, wellbeing, days, now); ok {
			points = append(points, p)
		}
	}

	sort.Slice(points, func(i, j int) bool {
		return points[i].EstimatedDays < points[j].EstimatedDays
	})
	return points
}

// variableSeries extracts one variable's value trace, oldest first.
func variableSeries(history []*twin.TwinState, id string) []float64 {
	out := make([]float64, 0, len(history))
	for _, snap := range history {
		if v, ok := snap.Variables[id]; ok {
			out = append(out, v.Value)
		}
	}
	return out
}

// #endregion detector

// #region assess

// assess scores one watched variable and builds its tipping point if the
// approach test passes. The variable's clinical weight scales the raw
// indicator score.
func (d *Detector) assess(cv criticalVar, series, wellbeing, days []float64, now time.Time) (TippingPoint, bool) {
	ind := computeIndicators(series, wellbeing, d.cfg)
	score := clamp01(cv.weight * compositeScore(ind))
	current := series[len(series)-1]
	dist := thresholdDistance(cv, current)
	toward := trendingToward(cv, series)

	elevated := score >= d.cfg.WarningScore || ind.Lag1Autocorr >= d.cfg.WarningAutocorr
	near := dist < d.cfg.NearDistance
	flicking := ind.Flickering >= d.cfg.FlickerThreshold
	if !elevated || !(near || toward || flicking) {
		return TippingPoint{}, false
	}

	estDays, earliest, latest := d.estimateTiming(cv, series, days, dist, ind)
	irrev := clamp01(0.5*score + 0.3*(1-ind.RecoveryRate) + 0.2*ind.Flickering)

	p := TippingPoint{
		VariableID:      cv.id,
		Attractor:       cv.attractor,
		Score:           score,
		Criticality:     d.criticality(score),
		Indicators:      ind,
		Distance:        dist,
		RecoveryLevel:   cv.recovery,
		Approaching:     true,
		Urgency:         d.urgency(score, dist),
		Type:            classifyType(ind, score, d.cfg),
		EstimatedDays:   estDays,
		EarliestDays:    earliest,
		LatestDays:      latest,
		Irreversibility: irrev,
		Preventability:  clamp01(0.6*(1-irrev) + 0.4*(1-bandPosition(cv, current))),
		DetectedAt:      now,
	}
	p.Recommendations = recommendations(cv, p.Urgency)
	return p, true
}

// compositeScore folds the indicator panel into a single [0,1] risk score.
// Weights sum to one; each term is the classic early-warning signal for
// the indicator, clamped to its useful range.
func compositeScore(ind Indicators) float64 {
	s := 0.25*clamp01(ind.Lag1Autocorr) +
		0.15*clamp01(ind.AutocorrTrend*5) +
		0.20*clamp01((ind.VarianceRatio-1)/2) +
		0.15*(1-ind.RecoveryRate) +
		0.10*ind.Flickering +
		0.05*clamp01(math.Abs(ind.SkewnessChange)) +
		0.10*clamp01((ind.DFAExponent-0.5)*2)
	return clamp01(s)
}

// thresholdDistance is how far the variable sits from its critical level,
// in its own units, floored at zero once crossed.
func thresholdDistance(cv criticalVar, current float64) float64 {
	var d float64
	if cv.rising {
		d = cv.threshold - current
	} else {
		d = current - cv.threshold
	}
	if d < 0 {
		return 0
	}
	return d
}

// bandPosition locates the current value inside the unstable band between
// the recovery level and the critical threshold: 0 at or beyond the
// recovery level on the safe side, 1 at the threshold.
func bandPosition(cv criticalVar, current float64) float64 {
	span := cv.threshold - cv.recovery
	into := current - cv.recovery
	if !cv.rising {
		span = cv.recovery - cv.threshold
		into = cv.recovery - current
	}
	if span <= 0 {
		return 1
	}
	return clamp01(into / span)
}

// trendingToward reports whether the recent slope points at the threshold.
func trendingToward(cv criticalVar, series []float64) bool {
	half := series[len(series)/2:]
	xs := make([]float64, len(half))
	for i := range xs {
		xs[i] = float64(i)
	}
	slope := fitSlope(xs, half)
	if math.IsNaN(slope) {
		return false
	}
	if cv.rising {
		return slope > 0
	}
	return slope < 0
}

func (d *Detector) criticality(score float64) Criticality {
	switch {
	case score >= d.cfg.CriticalScore:
		return CriticalityCritical
	case score >= d.cfg.WarningScore:
		return CriticalityWarning
	default:
		return CriticalityLow
	}
}

func (d *Detector) urgency(score, dist float64) Urgency {
	switch {
	case dist < 0.1 && score > 0.7:
		return UrgencyCritical
	case dist < 0.2 && score > 0.5:
		return UrgencyHigh
	default:
		return UrgencyMedium
	}
}

// #endregion assess

// #region classify

// classifyType maps the indicator fingerprint onto a bifurcation class.
// The branches are ordered from the most distinctive signatures down to
// the generic critical-slowing default.
func classifyType(ind Indicators, score float64, cfg Config) BifurcationType {
	switch {
	case ind.Periodicity >= 0.5 && ind.VarianceRatio > 1.5:
		return TypePeriodDoubling
	case ind.Periodicity >= 0.5:
		return TypeHopf
	case ind.Flickering >= cfg.FlickerThreshold:
		return TypeFold
	case ind.RecoveryRate < 0.05 && score >= cfg.CriticalScore:
		return TypeBlueSky
	case ind.SkewnessChange > 0.5 && ind.Lag1Autocorr > 0.6:
		return TypeSaddleNode
	case math.Abs(ind.Skewness) < 0.2 && ind.VarianceRatio > 1.5:
		return TypePitchfork
	case ind.AutocorrTrend > 0.1 && ind.VarianceRatio < 1:
		return TypeTranscritical
	case ind.Lag1Autocorr > 0.6 && ind.VarianceRatio > 1:
		return TypeSaddleNode
	default:
		return TypeUnknown
	}
}

// #endregion classify

// #region timing

// estimateTiming fits an exponential approach of the threshold distance
// and extrapolates to near-contact (distance 0.01). A flat or receding
// trend falls back to the fixed defaults; the confidence band widens with
// the variance ratio.
func (d *Detector) estimateTiming(cv criticalVar, series, days []float64, dist float64, ind Indicators) (est, earliest, latest float64) {
	rate := approachRate(cv, series, days)
	switch {
	case rate > 1e-6 && dist > 0.01:
		est = math.Log(dist/0.01) / rate
	case dist < d.cfg.NearDistance:
		est = d.cfg.DefaultSoonDays
	default:
		est = d.cfg.DefaultFarDays
	}
	est = clampRange(est, d.cfg.MinTimingDays, d.cfg.MaxTimingDays)

	ci := 0.25 * math.Sqrt(math.Max(ind.VarianceRatio, 0)) * est
	earliest = clampRange(est-ci, d.cfg.MinTimingDays, d.cfg.MaxTimingDays)
	latest = clampRange(est+ci, d.cfg.MinTimingDays, d.cfg.MaxTimingDays)
	return est, earliest, latest
}

// approachRate is the per-day exponential shrink rate of the threshold
// distance: the negated least-squares slope of log distance against time,
// fitted over the points still meaningfully away from the threshold.
// Non-positive when the distance is not shrinking.
func approachRate(cv criticalVar, series, days []float64) float64 {
	var xs, ys []float64
	for i, x := range series {
		d := thresholdDistance(cv, x)
		if d <= 0.01 {
			continue
		}
		xs = append(xs, days[i])
		ys = append(ys, math.Log(d))
	}
	if len(xs) < 3 {
		return 0
	}
	slope := fitSlope(xs, ys)
	if math.IsNaN(slope) {
		return 0
	}
	return -slope
}

func clampRange(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// #endregion timing

// #region recommendations

// variableRecommendations are the per-variable interventions surfaced with
// a detection. Wording is intentionally operational, not diagnostic.
var variableRecommendations = map[string]string{
	"emotion_anxiety": "introduce grounding or relaxation protocol before the anxiety threshold is reached",
	"stress_level":    "reduce acute stressors and add recovery blocks to the daily schedule",
	"rumination":      "schedule structured worry time and attention-redirection exercises",
	"emotion_valence": "increase behavioral-activation activities with known positive valence",
	"sleep_quality":   "tighten sleep hygiene and stabilize the sleep window",
	"energy_level":    "review workload and add restorative low-effort activities",
	"coping_ability":  "rehearse the existing coping plan and simplify it if adherence is failing",
}

func recommendations(cv criticalVar, u Urgency) []string {
	var recs []string
	switch u {
	case UrgencyCritical:
		recs = append(recs, "escalate to the care team within 24 hours")
	case UrgencyHigh:
		recs = append(recs, "schedule a clinical check-in this week")
	default:
		recs = append(recs, "increase observation frequency for this variable")
	}
	if r, ok := variableRecommendations[cv.id]; ok {
		recs = append(recs, r)
	}
	return recs
}

// #endregion recommendations
