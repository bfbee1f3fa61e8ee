package bifurcation

import "time"

// #region enums

// Criticality buckets the composite early-warning score.
type Criticality string

const (
	CriticalityLow      Criticality = "low"
	CriticalityWarning  Criticality = "warning"
	CriticalityCritical Criticality = "critical"
)

// Urgency ranks how soon a transition demands attention.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// BifurcationType is the qualitative class of the suspected transition,
// inferred from the indicator fingerprint. The classes follow standard
// dynamical-systems nomenclature; "unknown" is the honest answer when the
// fingerprint is ambiguous.
type BifurcationType string

const (
	TypeSaddleNode     BifurcationType = "saddle_node"
	TypeTranscritical  BifurcationType = "transcritical"
	TypePitchfork      BifurcationType = "pitchfork"
	TypeHopf           BifurcationType = "hopf"
	TypeFold           BifurcationType = "fold"
	TypePeriodDoubling BifurcationType = "period_doubling"
	TypeBlueSky        BifurcationType = "blue_sky"
	TypeUnknown        BifurcationType = "unknown"
)

// #endregion enums

// #region indicators

// Indicators is the per-variable early-warning panel computed from the
// snapshot series.
type Indicators struct {
	Lag1Autocorr   float64 `json:"lag1_autocorr"`
	AutocorrTrend  float64 `json:"autocorr_trend"` // second-half minus first-half autocorr
	VarianceRatio  float64 `json:"variance_ratio"` // recent variance over baseline
	CrossCorr      float64 `json:"cross_corr"`     // correlation with overall wellbeing
	RecoveryRate   float64 `json:"recovery_rate"`  // mean per-step pullback after deviations
	DFAExponent    float64 `json:"dfa_exponent"`
	Skewness       float64 `json:"skewness"`
	SkewnessChange float64 `json:"skewness_change"`
	Flickering     float64 `json:"flickering"` // 0..1, bimodality with frequent crossings
	Periodicity    float64 `json:"periodicity"`
}

// #endregion indicators

// #region tipping-point

// TippingPoint is one detected approach toward a critical transition in a
// single state variable.
type TippingPoint struct {
	VariableID      string          `json:"variable_id"`
	Attractor       string          `json:"attractor"` // regime the system is sliding toward
	Score           float64         `json:"score"`
	Criticality     Criticality     `json:"criticality"`
	Indicators      Indicators      `json:"indicators"`
	Distance        float64         `json:"distance"` // to the variable's critical threshold
	RecoveryLevel   float64         `json:"recovery_level"`
	Approaching     bool            `json:"approaching"`
	Urgency         Urgency         `json:"urgency"`
	Type            BifurcationType `json:"type"`
	EstimatedDays   float64         `json:"estimated_days"`
	EarliestDays    float64         `json:"earliest_days"`
	LatestDays      float64         `json:"latest_days"`
	Irreversibility float64         `json:"irreversibility"`
	Preventability  float64         `json:"preventability"`
	Recommendations []string        `json:"recommendations"`
	DetectedAt      time.Time       `json:"detected_at"`
}

// #endregion tipping-point

// #region config

// Config holds the detector's tunables.
type Config struct {
	MinHistory       int     // snapshots required before any detection
	WarningScore     float64 // composite score above which criticality is at least warning
	CriticalScore    float64
	WarningAutocorr  float64 // lag-1 autocorr alone that flags an approach
	NearDistance     float64 // threshold distance counting as "near"
	DeviationBand    float64 // |x - mean| beyond which recovery is tracked
	MinTimingDays    float64
	MaxTimingDays    float64
	DefaultSoonDays  float64 // fallback estimate when near but not trending
	DefaultFarDays   float64 // fallback estimate when trend is flat
	FlickerThreshold float64
}

// DefaultConfig returns the detector configuration in use clinically.
// Score and distance cutoffs are heuristic, calibration pending.
func DefaultConfig() Config {
	return Config{
		MinHistory:       7,
		WarningScore:     0.4,
		CriticalScore:    0.65,
		WarningAutocorr:  0.7,
		NearDistance:     0.3,
		DeviationBand:    0.1,
		MinTimingDays:    1,
		MaxTimingDays:    365,
		DefaultSoonDays:  14,
		DefaultFarDays:   30,
		FlickerThreshold: 0.5,
	}
}

// #endregion config

// #region critical-variables

// criticalVar describes a variable whose crossing of a threshold marks a
// regime transition.
type criticalVar struct {
	id        string
	rising    bool    // tipping direction: true means trouble when it climbs
	threshold float64 // critical level in normalized units
	recovery  float64 // level at which the regime counts as re-stabilized
	weight    float64 // clinical importance, scales the composite score
	attractor string  // regime on the far side
}

// criticalVariables is the watch list. Levels are in the shared [0,1]
// scale of the state variables; the recovery level sits on the safe side
// of the threshold and bounds the unstable band.
var criticalVariables = []criticalVar{
	{id: "emotion_anxiety", rising: true, threshold: 0.75, recovery: 0.55, weight: 1.0, attractor: "crisis"},
	{id: "stress_level", rising: true, threshold: 0.75, recovery: 0.55, weight: 0.9, attractor: "crisis"},
	{id: "rumination", rising: true, threshold: 0.70, recovery: 0.50, weight: 0.7, attractor: "stressed"},
	{id: "emotion_valence", rising: false, threshold: 0.25, recovery: 0.45, weight: 0.9, attractor: "crisis"},
	{id: "sleep_quality", rising: false, threshold: 0.30, recovery: 0.45, weight: 0.8, attractor: "stressed"},
	{id: "energy_level", rising: false, threshold: 0.25, recovery: 0.40, weight: 0.7, attractor: "stressed"},
	{id: "coping_ability", rising: false, threshold: 0.30, recovery: 0.45, weight: 0.9, attractor: "crisis"},
}

// #endregion critical-variables
