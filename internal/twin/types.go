package twin

import "time"

// #region kalman-sub
// KalmanSub is the embedded single-dimension Kalman sub-state carried by
// every filtered variable.
type KalmanSub struct {
	Estimate         float64   `json:"estimate"`
	ErrCovariance    float64   `json:"err_covariance"`
	ProcessNoise     float64   `json:"process_noise"`
	MeasurementNoise float64   `json:"measurement_noise"`
	LastGain         float64   `json:"last_gain"`
	Innovations      []float64 `json:"innovations,omitempty"`  // recent pre-update residuals, oldest first
	InnovationS      []float64 `json:"innovation_s,omitempty"` // matching theoretical innovation variances
}

// #endregion kalman-sub

// #region state-variable
// StateVariable is one latent variable of a subject's twin. Values live in
// [0,1] by convention but the estimator does not hard-enforce the range;
// variance is floored above zero so the filter can never lock in.
type StateVariable struct {
	ID             string     `json:"id"`
	Value          float64    `json:"value"`
	Variance       float64    `json:"variance"`
	Velocity       float64    `json:"velocity"`     // per day
	Acceleration   float64    `json:"acceleration"` // per day²
	Baseline       float64    `json:"baseline"`
	HistoricalMean float64    `json:"historical_mean"`
	HistoricalStd  float64    `json:"historical_std"`
	Kalman         *KalmanSub `json:"kalman,omitempty"`
	LastObserved   time.Time  `json:"last_observed"`
	LastUpdated    time.Time  `json:"last_updated"`
	Observations   int        `json:"observations"`
	Sources        []string   `json:"sources,omitempty"`
	Confidence     float64    `json:"confidence"`
	WasOutlier     bool       `json:"was_outlier"` // last measurement failed the NIS test
}

// Clone returns a deep copy of the variable.
func (v *StateVariable) Clone() *StateVariable {
	out := *v
	if v.Kalman != nil {
		k := *v.Kalman
		k.Innovations = append([]float64(nil), v.Kalman.Innovations...)
		k.InnovationS = append([]float64(nil), v.Kalman.InnovationS...)
		out.Kalman = &k
	}
	out.Sources = append([]string(nil), v.Sources...)
	return &out
}

// #endregion state-variable

// #region regimes
// Regime is a qualitative dynamical regime of the subject.
type Regime string

const (
	RegimeHealthy  Regime = "healthy"
	RegimeStressed Regime = "stressed"
	RegimeCrisis   Regime = "crisis"
)

// Regimes lists all regimes in canonical order.
var Regimes = []Regime{RegimeHealthy, RegimeStressed, RegimeCrisis}

// StabilityClass is a coarse classification of estimate uncertainty.
type StabilityClass string

const (
	StabilityStable   StabilityClass = "stable"
	StabilityModerate StabilityClass = "moderate"
	StabilityUnstable StabilityClass = "unstable"
)

// #endregion regimes

// #region composites
// Composites are the derived metrics recomputed after every write cycle.
type Composites struct {
	OverallWellbeing    float64        `json:"overall_wellbeing"`
	Stability           StabilityClass `json:"stability"`
	DominantAttractor   Regime         `json:"dominant_attractor"`
	Resilience          float64        `json:"resilience"`
	ChaosIndicator      float64        `json:"chaos_indicator"`
	MeanAutocorrelation float64        `json:"mean_autocorrelation"`
	MeanVarianceRatio   float64        `json:"mean_variance_ratio"`
	DataQuality         float64        `json:"data_quality"`
}

// #endregion composites

// #region twin-state
// TwinState is the canonical per-subject snapshot. It is mutated in place by
// the service under a per-subject lock; every mutation increments Version
// and appends a deep copy to the bounded history.
type TwinState struct {
	SubjectID string                    `json:"subject_id"`
	Version   int64                     `json:"version"`
	VersionID string                    `json:"version_id"`
	Variables map[string]*StateVariable `json:"variables"`

	Composites    Composites         `json:"composites"`
	RegimeBelief  map[Regime]float64 `json:"regime_belief"`
	RegimeEntropy float64            `json:"regime_entropy"`

	LastSync       time.Time `json:"last_sync"`
	PendingUpdates int       `json:"pending_updates"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Clone returns a deep copy suitable for history entries and reads.
func (t *TwinState) Clone() *TwinState {
	out := *t
	out.Variables = make(map[string]*StateVariable, len(t.Variables))
	for id, v := range t.Variables {
		out.Variables[id] = v.Clone()
	}
	out.RegimeBelief = make(map[Regime]float64, len(t.RegimeBelief))
	for r, p := range t.RegimeBelief {
		out.RegimeBelief[r] = p
	}
	return &out
}

// #endregion twin-state

// #region observation
// Observation is a single noisy reading from a data source. Read-only once
// created; the service never mutates an ingested observation.
type Observation struct {
	ID        string             `json:"id"`
	Source    string             `json:"source"`
	Timestamp time.Time          `json:"timestamp"`
	Value     float64            `json:"value"`
	Features  map[string]float64 `json:"features,omitempty"`
	Quality   float64            `json:"quality"` // 0..1; 0 means unusable
	Missing   []string           `json:"missing,omitempty"`
}

// Measurement is one normalized per-variable reading extracted from an
// observation.
type Measurement struct {
	VariableID  string
	Value       float64
	Reliability float64 // 0..1 weight applied to measurement noise
}

// #endregion observation
