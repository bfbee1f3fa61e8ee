package kalman

import "github.com/danielpatrickdp/latent-twin/go-twin/internal/linalg"

// #region config
// Config holds the model matrices and robustness parameters for one filter.
// All matrices are copied by reference; callers must not mutate them after
// handing them to the filter.
type Config struct {
	Transition       linalg.Matrix // A: state transition
	Observation      linalg.Matrix // H: state → measurement
	ProcessNoise     linalg.Matrix // Q
	MeasurementNoise linalg.Matrix // R

	// MaxGain clips each Kalman gain entry to [-MaxGain, MaxGain].
	// Zero disables clipping.
	MaxGain float64

	// OutlierThreshold is the normalized-innovation-squared bound above
	// which a measurement is treated as an outlier. Zero disables the test.
	OutlierThreshold float64

	// OutlierAttenuation scales the innovation applied for an outlier
	// measurement instead of discarding it.
	OutlierAttenuation float64
}

// DefaultConfig returns an identity-dynamics configuration for the given
// state and measurement dimensions: random-walk transition, direct
// observation of the leading state components.
func DefaultConfig(stateDim, obsDim int) Config {
	h := linalg.NewMatrix(obsDim, stateDim)
	for i := 0; i < obsDim && i < stateDim; i++ {
		h[i][i] = 1
	}
	return Config{
		Transition:         linalg.Identity(stateDim),
		Observation:        h,
		ProcessNoise:       linalg.Identity(stateDim).Scale(0.01),
		MeasurementNoise:   linalg.Identity(obsDim).Scale(0.1),
		MaxGain:            0,
		OutlierThreshold:   9.0, // ~3 sigma per dimension
		OutlierAttenuation: 0.1,
	}
}

// #endregion config

// #region state
// State is one filter's estimate plus the bookkeeping the smoother and the
// outlier logic need from the most recent cycle.
type State struct {
	X []float64     // posterior mean
	P linalg.Matrix // posterior covariance

	// Predicted quantities from the most recent Predict call, kept for the
	// RTS smoother and for the update step.
	PredX []float64
	PredP linalg.Matrix

	Gain       linalg.Matrix // last Kalman gain
	Innovation []float64     // last raw innovation
	NIS        float64       // last normalized innovation squared
	IsOutlier  bool          // last measurement failed the NIS test
}

// Initialize builds a State with the given prior mean and covariance.
func Initialize(x0 []float64, p0 linalg.Matrix) State {
	x := make([]float64, len(x0))
	copy(x, x0)
	return State{
		X: x,
		P: p0.Clone(),
	}
}

// Clone returns a deep copy of the state.
func (s State) Clone() State {
	out := s
	out.X = append([]float64(nil), s.X...)
	out.P = s.P.Clone()
	if s.PredX != nil {
		out.PredX = append([]float64(nil), s.PredX...)
	}
	if s.PredP != nil {
		out.PredP = s.PredP.Clone()
	}
	if s.Gain != nil {
		out.Gain = s.Gain.Clone()
	}
	if s.Innovation != nil {
		out.Innovation = append([]float64(nil), s.Innovation...)
	}
	return out
}

// #endregion state
