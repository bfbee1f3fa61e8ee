package kalman

import (
	"github.com/danielpatrickdp/latent-twin/go-twin/internal/linalg"
)

// #region predict
// Predict propagates the state one step through the transition model:
// x⁻ = A·x, P⁻ = A·P·Aᵀ + Q. The predicted quantities are retained on the
// returned state for the update step and the smoother.
func Predict(s State, cfg Config) State {
	a := cfg.Transition
	predX := a.MulVec(s.X)
	predP := a.Mul(s.P).Mul(a.Transpose()).Add(cfg.ProcessNoise).Symmetrize()

	out := s.Clone()
	out.X = predX
	out.P = predP
	out.PredX = append([]float64(nil), predX...)
	out.PredP = predP.Clone()
	return out
}

// #endregion predict

// #region update
// Update folds a measurement into a predicted state. An outlier (by the
// normalized-innovation-squared test) is attenuated, never discarded: the
// filter stays robust to spikes without going blind to level shifts.
func Update(s State, z []float64, cfg Config) State {
	h := cfg.Observation
	ht := h.Transpose()

	// Innovation and its covariance.
	y := linalg.SubVec(z, h.MulVec(s.X))
	innovCov := h.Mul(s.P).Mul(ht).Add(cfg.MeasurementNoise)
	sInv := innovCov.Inverse()

	// Gain, optionally clipped.
	k := s.P.Mul(ht).Mul(sInv)
	if cfg.MaxGain > 0 {
		for i := range k {
			for j := range k[i] {
				if k[i][j] > cfg.MaxGain {
					k[i][j] = cfg.MaxGain
				} else if k[i][j] < -cfg.MaxGain {
					k[i][j] = -cfg.MaxGain
				}
			}
		}
	}

	// Outlier test on the raw innovation.
	nis := linalg.Dot(y, sInv.MulVec(y))
	applied := y
	outlier := false
	if cfg.OutlierThreshold > 0 && nis > cfg.OutlierThreshold {
		outlier = true
		att := cfg.OutlierAttenuation
		if att <= 0 {
			att = 0.1
		}
		applied = linalg.ScaleVec(y, att)
	}

	// Posterior mean and covariance.
	x := linalg.AddVec(s.X, k.MulVec(applied))
	n := len(s.X)
	p := linalg.Identity(n).Sub(k.Mul(h)).Mul(s.P).Symmetrize()

	out := s.Clone()
	out.X = x
	out.P = p
	out.Gain = k
	out.Innovation = y
	out.NIS = nis
	out.IsOutlier = outlier
	return out
}

// #endregion update

// #region filter
// Filter runs one predict+update cycle.
func Filter(s State, z []float64, cfg Config) State {
	return Update(Predict(s, cfg), z, cfg)
}

// #endregion filter

// #region smooth
// Smooth runs a backward Rauch-Tung-Striebel pass over a forward-filtered
// sequence. Each element must carry the predicted mean/covariance recorded
// by Predict; elements without them (e.g. the initial state) pass through
// unchanged.
func Smooth(states []State, cfg Config) []State {
	if len(states) == 0 {
		return nil
	}
	out := make([]State, len(states))
	for i, s := range states {
		out[i] = s.Clone()
	}

	a := cfg.Transition
	at := a.Transpose()

	for k := len(out) - 2; k >= 0; k-- {
		next := out[k+1]
		if next.PredP == nil || next.PredX == nil {
			continue
		}
		// Smoother gain C = P_k·Aᵀ·(P⁻_{k+1})⁻¹.
		c := out[k].P.Mul(at).Mul(next.PredP.Inverse())

		dx := linalg.SubVec(next.X, next.PredX)
		out[k].X = linalg.AddVec(out[k].X, c.MulVec(dx))

		dp := next.P.Sub(next.PredP)
		out[k].P = out[k].P.Add(c.Mul(dp).Mul(c.Transpose())).Symmetrize()
	}
	return out
}

// #endregion smooth
