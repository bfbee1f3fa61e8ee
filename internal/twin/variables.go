package twin

import "time"

// #region variable-spec
// VariableSpec declares one latent variable: its defaults and its role in
// the composite metrics.
type VariableSpec struct {
	ID               string
	Baseline         float64
	ProcessNoise     float64
	MeasurementNoise float64
	WellbeingWeight  float64 // >0 contributes positively, <0 negatively
	Protective       bool    // participates in the resilience average
}

// DefaultVariables is the static latent-variable table. Every twin is
// created with exactly these variables at their baselines.
var DefaultVariables = []VariableSpec{
	{ID: "emotion_valence", Baseline: 0.5, ProcessNoise: 0.005, MeasurementNoise: 0.04, WellbeingWeight: 0.20},
	{ID: "emotion_arousal", Baseline: 0.5, ProcessNoise: 0.008, MeasurementNoise: 0.05},
	{ID: "emotion_joy", Baseline: 0.5, ProcessNoise: 0.006, MeasurementNoise: 0.04, WellbeingWeight: 0.15},
	{ID: "emotion_anxiety", Baseline: 0.3, ProcessNoise: 0.008, MeasurementNoise: 0.05, WellbeingWeight: -0.20},
	{ID: "emotion_sadness", Baseline: 0.3, ProcessNoise: 0.006, MeasurementNoise: 0.05, WellbeingWeight: -0.15},
	{ID: "stress_level", Baseline: 0.4, ProcessNoise: 0.010, MeasurementNoise: 0.06, WellbeingWeight: -0.15},
	{ID: "rumination", Baseline: 0.3, ProcessNoise: 0.006, MeasurementNoise: 0.06, WellbeingWeight: -0.10},
	{ID: "energy_level", Baseline: 0.5, ProcessNoise: 0.008, MeasurementNoise: 0.05, WellbeingWeight: 0.10},
	{ID: "sleep_quality", Baseline: 0.5, ProcessNoise: 0.010, MeasurementNoise: 0.05, WellbeingWeight: 0.10, Protective: true},
	{ID: "social_connection", Baseline: 0.5, ProcessNoise: 0.004, MeasurementNoise: 0.05, WellbeingWeight: 0.10, Protective: true},
	{ID: "self_efficacy", Baseline: 0.5, ProcessNoise: 0.004, MeasurementNoise: 0.05, WellbeingWeight: 0.10, Protective: true},
	{ID: "coping_ability", Baseline: 0.5, ProcessNoise: 0.004, MeasurementNoise: 0.05, WellbeingWeight: 0.10, Protective: true},
}

// VariableIDs returns the ids of the static table in declaration order.
func VariableIDs() []string {
	ids := make([]string, len(DefaultVariables))
	for i, s := range DefaultVariables {
		ids[i] = s.ID
	}
	return ids
}

// specByID indexes DefaultVariables.
var specByID = func() map[string]VariableSpec {
	m := make(map[string]VariableSpec, len(DefaultVariables))
	for _, s := range DefaultVariables {
		m[s.ID] = s
	}
	return m
}()

// Spec returns the declaration for a variable id.
func Spec(id string) (VariableSpec, bool) {
	s, ok := specByID[id]
	return s, ok
}

// #endregion variable-spec

// #region defaults
// DefaultVarianceFloor keeps every variance strictly positive so a filter
// can never lock in on a zero-uncertainty estimate.
const DefaultVarianceFloor = 1e-4

// initialVariance is the uncertainty assigned to a freshly created variable.
const initialVariance = 0.05

// NewTwinState creates a twin for a subject with every variable at its
// baseline and an even regime belief.
func NewTwinState(subjectID string, now time.Time) *TwinState {
	vars := make(map[string]*StateVariable, len(DefaultVariables))
	for _, spec := range DefaultVariables {
		vars[spec.ID] = &StateVariable{
			ID:             spec.ID,
			Value:          spec.Baseline,
			Variance:       initialVariance,
			Baseline:       spec.Baseline,
			HistoricalMean: spec.Baseline,
			Kalman: &KalmanSub{
				Estimate:         spec.Baseline,
				ErrCovariance:    initialVariance,
				ProcessNoise:     spec.ProcessNoise,
				MeasurementNoise: spec.MeasurementNoise,
			},
			LastUpdated: now,
		}
	}

	belief := make(map[Regime]float64, len(Regimes))
	for _, r := range Regimes {
		belief[r] = 1.0 / float64(len(Regimes))
	}

	t := &TwinState{
		SubjectID:    subjectID,
		Version:      1,
		Variables:    vars,
		RegimeBelief: belief,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	RecomputeComposites(t, nil)
	return t
}

// #endregion defaults
