package belief

import "time"

// #region dimensions

// Dimension is one axis of the subject-level belief state, coarser than
// the twin's state variables.
type Dimension string

const (
	DimValence   Dimension = "valence"
	DimArousal   Dimension = "arousal"
	DimDominance Dimension = "dominance" // perceived control
	DimRisk      Dimension = "risk"
	DimResources Dimension = "resources"
)

// Dimensions lists the axes in canonical order.
var Dimensions = []Dimension{DimValence, DimArousal, DimDominance, DimRisk, DimResources}

// #endregion dimensions

// #region state

// DimensionBelief is a Gaussian belief over one dimension. The prior
// fields hold the belief as it stood before the most recent update, so
// both sides of the last shift stay readable.
type DimensionBelief struct {
	Mean          float64   `json:"mean"`
	Variance      float64   `json:"variance"`
	Observations  int       `json:"observations"`
	CILow         float64   `json:"ci_low"` // 95% credible interval
	CIHigh        float64   `json:"ci_high"`
	PriorMean     float64   `json:"prior_mean"`
	PriorVariance float64   `json:"prior_variance"`
	LastShift     float64   `json:"last_shift"` // |posterior mean - prior mean|
	InfoGain      float64   `json:"info_gain"`  // cumulative, nats
	UpdatedAt     time.Time `json:"updated_at"`
}

// BeliefState is the full posterior over all dimensions for one subject.
type BeliefState struct {
	SubjectID     string                         `json:"subject_id"`
	Dimensions    map[Dimension]*DimensionBelief `json:"dimensions"`
	UpdatedAt     time.Time                      `json:"updated_at"`
	TotalInfoGain float64                        `json:"total_info_gain"`
}

// Clone returns a deep copy of the state.
func (b *BeliefState) Clone() *BeliefState {
	out := *b
	out.Dimensions = make(map[Dimension]*DimensionBelief, len(b.Dimensions))
	for d, db := range b.Dimensions {
		c := *db
		out.Dimensions[d] = &c
	}
	return &out
}

// Evidence is one observation about one dimension, already normalized to
// [0,1].
type Evidence struct {
	Dimension   Dimension `json:"dimension"`
	Value       float64   `json:"value"`
	Reliability float64   `json:"reliability"`
	Type        string    `json:"type"` // observation source type
	Timestamp   time.Time `json:"timestamp"`
}

// UpdateResult reports one conjugate update.
type UpdateResult struct {
	Dimension             Dimension `json:"dimension"`
	PriorMean             float64   `json:"prior_mean"`
	PriorVariance         float64   `json:"prior_variance"`
	PosteriorMean         float64   `json:"posterior_mean"`
	PosteriorVariance     float64   `json:"posterior_variance"`
	InfoGain              float64   `json:"info_gain"`
	Surprise              float64   `json:"surprise"` // predictive negative log-likelihood, nats
	Significant           bool      `json:"significant"`
	ClinicallySignificant bool      `json:"clinically_significant"`
}

// #endregion state

// #region likelihood

// LikelihoodModel maps evidence to observation-noise variance. Pluggable
// so callers can substitute calibrated per-source models.
type LikelihoodModel interface {
	NoiseVariance(e Evidence) float64
}

// reliabilityLikelihood is the default model: noise is the complement of
// reliability, clamped so no observation is treated as exact or as pure
// noise.
type reliabilityLikelihood struct{}

func (reliabilityLikelihood) NoiseVariance(e Evidence) float64 {
	v := 1 - e.Reliability
	if v < 0.01 {
		return 0.01
	}
	if v > 0.99 {
		return 0.99
	}
	return v
}

// typeReliability weights observation precision per source type, on top
// of the per-observation reliability. Types not listed count as fully
// weighted; twin_estimate evidence already carries its own confidence.
var typeReliability = map[string]float64{
	"ema_survey":      0.9,
	"wearable_hrv":    0.8,
	"journal_text":    0.6,
	"therapy_checkin": 0.95,
	"chat_sentiment":  0.5,
	"activity_log":    0.7,
}

// typeWeight returns the precision weight for an observation type.
func typeWeight(t string) float64 {
	if w, ok := typeReliability[t]; ok {
		return w
	}
	return 1
}

// #endregion likelihood

// #region config

// Config holds the engine's tunables.
type Config struct {
	PriorMean           float64         // uninformed dimension mean
	PriorVariance       float64         // uninformed dimension variance, also the decay ceiling
	DecayRate           float64         // per-hour multiplicative variance growth
	SignificantShift    float64         // posterior-mean move counting as significant
	ClinicalShift       float64         // move counting as clinically significant
	ClinicalMaxVariance float64         // required posterior confidence for clinical significance
	Likelihood          LikelihoodModel
}

// DefaultConfig returns the engine configuration in use. Shift thresholds
// are heuristic, calibration pending.
func DefaultConfig() Config {
	return Config{
		PriorMean:           0.5,
		PriorVariance:       0.2,
		DecayRate:           0.005,
		SignificantShift:    0.10,
		ClinicalShift:       0.25,
		ClinicalMaxVariance: 0.05,
		Likelihood:          reliabilityLikelihood{},
	}
}

// #endregion config
