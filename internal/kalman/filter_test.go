package kalman

import (
	"math"
	"testing"

	"github.com/danielpatrickdp/latent-twin/go-twin/internal/linalg"
)

func scalarConfig(q, r float64) Config {
	cfg := DefaultConfig(1, 1)
	cfg.ProcessNoise = linalg.Matrix{{q}}
	cfg.MeasurementNoise = linalg.Matrix{{r}}
	return cfg
}

func TestPredictThenConfirmingUpdate(t *testing.T) {
	// A measurement equal to the predicted value must leave the estimate
	// unchanged and still shrink covariance.
	cfg := scalarConfig(0.01, 0.1)
	s := Initialize([]float64{0.4}, linalg.Matrix{{1.0}})

	pred := Predict(s, cfg)
	predVar := pred.P[0][0]
	upd := Update(pred, []float64{pred.X[0]}, cfg)

	if math.Abs(upd.X[0]-pred.X[0]) > 1e-12 {
		t.Fatalf("confirming measurement moved estimate: %f -> %f", pred.X[0], upd.X[0])
	}
	if upd.P[0][0] >= predVar {
		t.Fatalf("covariance did not shrink: %f >= %f", upd.P[0][0], predVar)
	}
}

func TestConvergenceToConstantTruth(t *testing.T) {
	cfg := scalarConfig(0.0001, 0.05)
	s := Initialize([]float64{0.0}, linalg.Matrix{{1.0}})

	const truth = 0.7
	prevVar := s.P[0][0]
	for i := 0; i < 50; i++ {
		s = Filter(s, []float64{truth}, cfg)
		if s.P[0][0] > prevVar+cfg.ProcessNoise[0][0]+1e-12 {
			t.Fatalf("variance rose beyond process noise at step %d", i)
		}
		prevVar = s.P[0][0]
	}
	if math.Abs(s.X[0]-truth) > 0.01 {
		t.Fatalf("estimate did not converge: %f", s.X[0])
	}
	// Posterior variance approaches the noise floor, never below zero.
	if s.P[0][0] <= 0 || s.P[0][0] > cfg.MeasurementNoise[0][0] {
		t.Fatalf("terminal variance out of range: %f", s.P[0][0])
	}
}

func TestOutlierAttenuated(t *testing.T) {
	cfg := scalarConfig(0.001, 0.01)
	cfg.OutlierThreshold = 4.0
	s := Initialize([]float64{0.5}, linalg.Matrix{{0.01}})
	for i := 0; i < 5; i++ {
		s = Filter(s, []float64{0.5}, cfg)
	}

	spike := Filter(s, []float64{5.0}, cfg)
	if !spike.IsOutlier {
		t.Fatal("spike not flagged as outlier")
	}
	// Attenuated, not discarded: the estimate moves, but only a fraction of
	// the way a trusting update would take it.
	trusting := cfg
	trusting.OutlierThreshold = 0
	full := Filter(s, []float64{5.0}, trusting)
	if spike.X[0] <= s.X[0] {
		t.Fatalf("outlier had no effect: %f", spike.X[0])
	}
	if spike.X[0] >= full.X[0] {
		t.Fatalf("outlier not attenuated: %f >= %f", spike.X[0], full.X[0])
	}
}

func TestGainClip(t *testing.T) {
	cfg := scalarConfig(0.001, 0.0001)
	cfg.MaxGain = 0.2
	s := Initialize([]float64{0}, linalg.Matrix{{10}})
	s = Filter(s, []float64{1}, cfg)
	if math.Abs(s.Gain[0][0]) > 0.2+1e-12 {
		t.Fatalf("gain not clipped: %f", s.Gain[0][0])
	}
}

func TestSmoothReducesLag(t *testing.T) {
	// Track a ramp with a sluggish filter; the RTS pass should pull the
	// mid-sequence estimates closer to the truth than the forward pass.
	cfg := scalarConfig(0.0005, 0.05)
	s := Initialize([]float64{0}, linalg.Matrix{{1}})

	var states []State
	var truth []float64
	for i := 0; i < 20; i++ {
		v := float64(i) * 0.05
		truth = append(truth, v)
		s = Filter(s, []float64{v}, cfg)
		states = append(states, s)
	}

	smoothed := Smooth(states, cfg)
	if len(smoothed) != len(states) {
		t.Fatalf("smoothed length %d", len(smoothed))
	}
	var fwdErr, smErr float64
	for i := 5; i < 15; i++ {
		fwdErr += math.Abs(states[i].X[0] - truth[i])
		smErr += math.Abs(smoothed[i].X[0] - truth[i])
	}
	if smErr >= fwdErr {
		t.Fatalf("smoother did not improve mid-sequence error: %f >= %f", smErr, fwdErr)
	}
}

func TestAdaptiveNoiseRequiresTenSamples(t *testing.T) {
	ad := NewNoiseAdapter(50)
	q := linalg.Matrix{{0.01}}
	r := linalg.Matrix{{0.1}}
	theo := linalg.Matrix{{0.2}}

	for i := 0; i < minAdaptSamples-1; i++ {
		ad.Record([]float64{1.0}, theo)
	}
	if got := ad.AdaptProcessNoise(q, 0.9); got[0][0] != q[0][0] {
		t.Fatalf("Q adapted below sample floor: %f", got[0][0])
	}
	if got := ad.AdaptMeasurementNoise(r, 0.1); got[0][0] != r[0][0] {
		t.Fatalf("R adapted below sample floor: %f", got[0][0])
	}

	ad.Record([]float64{1.0}, theo)
	// Sample innovation variance (1.0) far exceeds theoretical (0.2):
	// Q must scale up, R must move toward the sample.
	if got := ad.AdaptProcessNoise(q, 0.9); got[0][0] <= q[0][0] {
		t.Fatalf("Q did not inflate: %f", got[0][0])
	}
	got := ad.AdaptMeasurementNoise(r, 0.1)
	if got[0][0] <= r[0][0] {
		t.Fatalf("R did not move toward sample covariance: %f", got[0][0])
	}
}

func TestSingularCovarianceDoesNotHalt(t *testing.T) {
	cfg := DefaultConfig(2, 2)
	cfg.ProcessNoise = linalg.NewMatrix(2, 2)     // zero Q
	cfg.MeasurementNoise = linalg.NewMatrix(2, 2) // zero R
	// Zero prior covariance: S = H·P⁻·Hᵀ + R is exactly singular.
	s := Initialize([]float64{0, 0}, linalg.NewMatrix(2, 2))

	out := Filter(s, []float64{0.1, 0.2}, cfg)
	for _, v := range out.X {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("estimate not finite: %v", out.X)
		}
	}
}
