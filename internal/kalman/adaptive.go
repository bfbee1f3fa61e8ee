package kalman

import (
	"github.com/danielpatrickdp/latent-twin/go-twin/internal/linalg"
)

// minAdaptSamples is the number of buffered innovations required before
// either noise covariance is allowed to move off its configured value.
const minAdaptSamples = 10

// #region adapter
// NoiseAdapter buffers recent innovations and their theoretical covariance
// traces so the process and measurement noise can track reality instead of
// the configured guesses. Below minAdaptSamples it is inert.
type NoiseAdapter struct {
	window            int
	innovations       [][]float64
	theoreticalTraces []float64
}

// NewNoiseAdapter creates an adapter holding at most window innovations.
func NewNoiseAdapter(window int) *NoiseAdapter {
	if window < minAdaptSamples {
		window = minAdaptSamples
	}
	return &NoiseAdapter{window: window}
}

// RebuildNoiseAdapter reconstructs an adapter from persisted scalar
// innovation samples, oldest first. Samples beyond the window are evicted
// as they are replayed.
func RebuildNoiseAdapter(window int, innovations, traces []float64) *NoiseAdapter {
	a := NewNoiseAdapter(window)
	n := len(innovations)
	if len(traces) < n {
		n = len(traces)
	}
	for i := 0; i < n; i++ {
		a.Record([]float64{innovations[i]}, linalg.Matrix{{traces[i]}})
	}
	return a
}

// Record buffers one cycle's innovation and the trace of its theoretical
// covariance S = H·P⁻·Hᵀ + R. Oldest entries are evicted past the window.
func (a *NoiseAdapter) Record(innovation []float64, theoreticalS linalg.Matrix) {
	y := append([]float64(nil), innovation...)
	a.innovations = append(a.innovations, y)
	a.theoreticalTraces = append(a.theoreticalTraces, theoreticalS.Trace())
	if len(a.innovations) > a.window {
		a.innovations = a.innovations[1:]
		a.theoreticalTraces = a.theoreticalTraces[1:]
	}
}

// Samples returns the number of buffered innovations.
func (a *NoiseAdapter) Samples() int { return len(a.innovations) }

// sampleCovariance is the mean outer product of the buffered innovations.
func (a *NoiseAdapter) sampleCovariance() linalg.Matrix {
	dim := len(a.innovations[0])
	sum := linalg.NewMatrix(dim, dim)
	for _, y := range a.innovations {
		sum = sum.Add(linalg.Outer(y, y))
	}
	return sum.Scale(1.0 / float64(len(a.innovations)))
}

// #endregion adapter

// #region adapt-process
// AdaptProcessNoise rescales Q by the ratio of the sampled innovation
// covariance trace to the mean theoretical trace, blended with a forgetting
// factor (1.0 = never move, 0.0 = jump straight to the sample ratio).
// Returns q unchanged until minAdaptSamples innovations are buffered.
func (a *NoiseAdapter) AdaptProcessNoise(q linalg.Matrix, forgetting float64) linalg.Matrix {
	if len(a.innovations) < minAdaptSamples {
		return q
	}
	var meanTheoretical float64
	for _, t := range a.theoreticalTraces {
		meanTheoretical += t
	}
	meanTheoretical /= float64(len(a.theoreticalTraces))
	if meanTheoretical <= 0 {
		return q
	}

	ratio := a.sampleCovariance().Trace() / meanTheoretical
	scale := forgetting + (1-forgetting)*ratio
	if scale <= 0 {
		return q
	}
	return q.Scale(scale)
}

// #endregion adapt-process

// #region adapt-measurement
// AdaptMeasurementNoise moves R toward the sampled innovation covariance via
// an exponential moving average with blend weight alpha. Returns r unchanged
// until minAdaptSamples innovations are buffered.
func (a *NoiseAdapter) AdaptMeasurementNoise(r linalg.Matrix, alpha float64) linalg.Matrix {
	if len(a.innovations) < minAdaptSamples {
		return r
	}
	if alpha < 0 {
		alpha = 0
	}
	if alpha > 1 {
		alpha = 1
	}
	return r.Scale(1 - alpha).Add(a.sampleCovariance().Scale(alpha))
}

// #endregion adapt-measurement
