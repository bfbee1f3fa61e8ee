package belief

import (
	"math"
	"sort"
	"time"
)

// #region engine

// Engine applies conjugate normal-normal updates to belief states. All
// methods mutate the passed state; callers own any locking.
type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) *Engine {
	if cfg.Likelihood == nil {
		cfg.Likelihood = reliabilityLikelihood{}
	}
	return &Engine{cfg: cfg}
}

// NewState returns an uninformed belief state over all dimensions.
func (e *Engine) NewState(subjectID string, now time.Time) *BeliefState {
	b := &BeliefState{
		SubjectID:  subjectID,
		Dimensions: make(map[Dimension]*DimensionBelief, len(Dimensions)),
		UpdatedAt:  now,
	}
	for _, d := range Dimensions {
		b.Dimensions[d] = e.newDimension(now)
	}
	return b
}

// newDimension returns an uninformed dimension belief.
func (e *Engine) newDimension(now time.Time) *DimensionBelief {
	db := &DimensionBelief{
		Mean:          e.cfg.PriorMean,
		Variance:      e.cfg.PriorVariance,
		PriorMean:     e.cfg.PriorMean,
		PriorVariance: e.cfg.PriorVariance,
		UpdatedAt:     now,
	}
	db.CILow, db.CIHigh = ci95(db.Mean, db.Variance)
	return db
}

// dimension returns the belief for d, materializing an uninformed one for
// dimensions the state has never seen.
func (e *Engine) dimension(b *BeliefState, d Dimension, now time.Time) *DimensionBelief {
	if db, ok := b.Dimensions[d]; ok {
		return db
	}
	db := e.newDimension(now)
	b.Dimensions[d] = db
	return db
}

// ci95 is the central 95% credible interval of a Gaussian belief.
func ci95(mean, variance float64) (lo, hi float64) {
	half := 1.96 * math.Sqrt(variance)
	return mean - half, mean + half
}

// #endregion engine

// #region update

// Update folds one piece of evidence into the belief state. Evidence about
// the same dimension commutes: precisions add, so the posterior does not
// depend on arrival order.
func (e *Engine) Update(b *BeliefState, ev Evidence, now time.Time) UpdateResult {
	e.Decay(b, now)
	db := e.dimension(b, ev.Dimension, now)

	obsVar := e.cfg.Likelihood.NoiseVariance(ev)
	weight := typeWeight(ev.Type)
	priorMean, priorVar := db.Mean, db.Variance

	priorPrec := 1 / priorVar
	// Precision scales with how trustworthy the source type is overall.
	obsPrec := weight / obsVar
	postPrec := priorPrec + obsPrec

	db.Mean = (priorMean*priorPrec + ev.Value*obsPrec) / postPrec
	db.Variance = 1 / postPrec
	db.Observations++
	db.PriorMean = priorMean
	db.PriorVariance = priorVar
	db.LastShift = math.Abs(db.Mean - priorMean)
	db.CILow, db.CIHigh = ci95(db.Mean, db.Variance)
	db.UpdatedAt = now
	b.UpdatedAt = now

	gain := 0.5 * math.Log(priorVar/db.Variance)
	db.InfoGain += gain
	b.TotalInfoGain += gain

	// Surprise is the negative log-likelihood of the evidence under the
	// prior predictive distribution.
	predVar := priorVar + obsVar/weight
	z2 := (ev.Value - priorMean) * (ev.Value - priorMean) / predVar

	return UpdateResult{
		Dimension:             ev.Dimension,
		PriorMean:             priorMean,
		PriorVariance:         priorVar,
		PosteriorMean:         db.Mean,
		PosteriorVariance:     db.Variance,
		InfoGain:              gain,
		Surprise:              0.5 * (z2 + math.Log(2*math.Pi*predVar)),
		Significant:           db.LastShift >= e.cfg.SignificantShift,
		ClinicallySignificant: db.LastShift >= e.cfg.ClinicalShift && db.Variance <= e.cfg.ClinicalMaxVariance,
	}
}

// UpdateBatch applies evidence items in order and returns the per-item
// results plus the summed information gain.
func (e *Engine) UpdateBatch(b *BeliefState, evidence []Evidence, now time.Time) ([]UpdateResult, float64) {
	results := make([]UpdateResult, 0, len(evidence))
	var total float64
	for _, ev := range evidence {
		r := e.Update(b, ev, now)
		results = append(results, r)
		total += r.InfoGain
	}
	return results, total
}

// #endregion update

// #region decay

// Decay widens each dimension's variance for the time elapsed since its
// last touch, capped at the uninformed prior variance. Zero or negative
// elapsed time is a no-op. The mean is left alone; stale belief becomes
// vague, not recentered.
func (e *Engine) Decay(b *BeliefState, now time.Time) {
	for _, db := range b.Dimensions {
		hours := now.Sub(db.UpdatedAt).Hours()
		if hours <= 0 {
			continue
		}
		db.Variance *= math.Pow(1+e.cfg.DecayRate, hours)
		if db.Variance > e.cfg.PriorVariance {
			db.Variance = e.cfg.PriorVariance
		}
		db.CILow, db.CIHigh = ci95(db.Mean, db.Variance)
		db.UpdatedAt = now
	}
}

// #endregion decay

// #region consistency

// CheckConsistency returns human-readable flags for belief combinations
// that are jointly implausible and usually indicate an upstream data
// problem.
func (e *Engine) CheckConsistency(b *BeliefState) []string {
	var flags []string
	get := func(d Dimension) (float64, bool) {
		db, ok := b.Dimensions[d]
		if !ok {
			return 0, false
		}
		return db.Mean, true
	}

	if risk, ok1 := get(DimRisk); ok1 {
		if res, ok2 := get(DimResources); ok2 && risk > 0.7 && res > 0.7 {
			flags = append(flags, "high risk alongside high resources")
		}
		if val, ok2 := get(DimValence); ok2 && risk > 0.7 && val > 0.7 {
			flags = append(flags, "high risk alongside high valence")
		}
	}
	if val, ok1 := get(DimValence); ok1 {
		if dom, ok2 := get(DimDominance); ok2 && val < 0.2 && dom > 0.8 {
			flags = append(flags, "very low valence with very high perceived control")
		}
	}
	for d, db := range b.Dimensions {
		if db.Mean < 0 || db.Mean > 1 {
			flags = append(flags, "belief mean out of range for "+string(d))
		}
	}
	sort.Strings(flags)
	return flags
}

// #endregion consistency

// #region active-selection

// typeDimensions maps observation source types to the dimensions they can
// inform. SuggestObservation ranks types by the information an observation
// of each type is expected to yield over them.
var typeDimensions = map[string][]Dimension{
	"ema_survey":      {DimValence, DimArousal},
	"wearable_hrv":    {DimArousal},
	"journal_text":    {DimValence, DimResources},
	"therapy_checkin": {DimRisk, DimDominance, DimResources},
	"chat_sentiment":  {DimValence},
	"activity_log":    {DimResources, DimDominance},
}

// SuggestObservation picks the observation type with the highest expected
// information gain: for each type, the variance reduction a typical
// observation of that type would produce, summed in nats over the
// dimensions it covers. The returned dimension is the vaguest one the
// chosen type informs.
func (e *Engine) SuggestObservation(b *BeliefState) (string, Dimension) {
	variance := func(d Dimension) float64 {
		if db, ok := b.Dimensions[d]; ok {
			return db.Variance
		}
		return e.cfg.PriorVariance
	}

	// Deterministic iteration over the table.
	types := make([]string, 0, len(typeDimensions))
	for t := range typeDimensions {
		types = append(types, t)
	}
	sort.Strings(types)

	bestType := ""
	bestGain := 0.0
	for _, t := range types {
		obsPrec := e.expectedPrecision(t)
		var gain float64
		for _, d := range typeDimensions[t] {
			v := variance(d)
			post := 1 / (1/v + obsPrec)
			gain += 0.5 * math.Log(v/post)
		}
		if gain > bestGain {
			bestGain = gain
			bestType = t
		}
	}
	if bestType == "" {
		return "", ""
	}

	target := typeDimensions[bestType][0]
	for _, d := range typeDimensions[bestType] {
		if variance(d) > variance(target) {
			target = d
		}
	}
	return bestType, target
}

// expectedPrecision is the precision a typical observation of type t would
// carry, with the type's reliability standing in for the per-observation
// one.
func (e *Engine) expectedPrecision(t string) float64 {
	w := typeWeight(t)
	return w / e.cfg.Likelihood.NoiseVariance(Evidence{Type: t, Reliability: w})
}

// #endregion active-selection
