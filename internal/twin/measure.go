package twin

import (
	"math"
	"time"

	"github.com/danielpatrickdp/latent-twin/go-twin/internal/kalman"
	"github.com/danielpatrickdp/latent-twin/go-twin/internal/linalg"
)

// #region measure-config
// MeasureConfig holds the parameters of one per-variable update cycle.
type MeasureConfig struct {
	VarianceFloor      float64 // minimum posterior variance (default DefaultVarianceFloor)
	SmoothingAlpha     float64 // exponential-smoothing weight when no Kalman sub-state exists
	OutlierThreshold   float64 // NIS threshold forwarded to the filter
	OutlierAttenuation float64
	MaxGain            float64
}

// DefaultMeasureConfig returns the standard cycle parameters.
func DefaultMeasureConfig() MeasureConfig {
	return MeasureConfig{
		VarianceFloor:      DefaultVarianceFloor,
		SmoothingAlpha:     0.3,
		OutlierThreshold:   9.0,
		OutlierAttenuation: 0.1,
		MaxGain:            1.0,
	}
}

// Innovation-based noise adaptation parameters. Each cycle the recent
// residual stream rescales the effective noise covariances; the buffers
// live on the variable's Kalman sub-state so the adaptation survives
// persistence.
const (
	innovationWindow  = 20
	measurementAlpha  = 0.3
	processForgetting = 0.9
)

// #endregion measure-config

// #region apply-measurement
// ApplyMeasurement is the pure per-variable update: one Kalman
// predict+update cycle (or exponential smoothing when the variable carries
// no Kalman sub-state), then derivatives, counters and confidence. The input
// variable is not mutated.
func ApplyMeasurement(v *StateVariable, m Measurement, source string, obsTime, now time.Time, cfg MeasureConfig) *StateVariable {
	out := v.Clone()

	prevValue := out.Value
	prevVelocity := out.Velocity

	if out.Kalman != nil {
		reliability := m.Reliability
		if reliability <= 0 {
			reliability = defaultSourceReliability
		}
		// Less reliable measurements carry more noise.
		r := out.Kalman.MeasurementNoise / reliability
		q := out.Kalman.ProcessNoise

		// Buffer this cycle's pre-update innovation against the
		// one-step predicted variance, then let the residual record
		// rescale both noises.
		innovation := m.Value - out.Kalman.Estimate
		theoreticalS := out.Kalman.ErrCovariance + q + r
		out.Kalman.Innovations = append(out.Kalman.Innovations, innovation)
		out.Kalman.InnovationS = append(out.Kalman.InnovationS, theoreticalS)
		if n := len(out.Kalman.Innovations); n > innovationWindow {
			out.Kalman.Innovations = out.Kalman.Innovations[n-innovationWindow:]
			out.Kalman.InnovationS = out.Kalman.InnovationS[n-innovationWindow:]
		}
		adapter := kalman.RebuildNoiseAdapter(innovationWindow, out.Kalman.Innovations, out.Kalman.InnovationS)
		r = adapter.AdaptMeasurementNoise(linalg.Matrix{{r}}, measurementAlpha)[0][0]
		q = adapter.AdaptProcessNoise(linalg.Matrix{{q}}, processForgetting)[0][0]

		kcfg := kalman.Config{
			Transition:         linalg.Identity(1),
			Observation:        linalg.Identity(1),
			ProcessNoise:       linalg.Matrix{{q}},
			MeasurementNoise:   linalg.Matrix{{r}},
			MaxGain:            cfg.MaxGain,
			OutlierThreshold:   cfg.OutlierThreshold,
			OutlierAttenuation: cfg.OutlierAttenuation,
		}
		st := kalman.Initialize([]float64{out.Kalman.Estimate}, linalg.Matrix{{out.Kalman.ErrCovariance}})
		st = kalman.Filter(st, []float64{m.Value}, kcfg)

		out.Value = st.X[0]
		out.Variance = st.P[0][0]
		out.Kalman.Estimate = st.X[0]
		out.Kalman.ErrCovariance = st.P[0][0]
		out.Kalman.LastGain = st.Gain[0][0]
		out.WasOutlier = st.IsOutlier
	} else {
		alpha := cfg.SmoothingAlpha
		if alpha <= 0 || alpha > 1 {
			alpha = 0.3
		}
		out.Value = alpha*m.Value + (1-alpha)*out.Value
		// Smoothing has no covariance to propagate; decay uncertainty toward
		// the floor as evidence accumulates.
		out.Variance = (1-alpha)*out.Variance + alpha*cfg.VarianceFloor
		out.WasOutlier = false
	}

	floor := cfg.VarianceFloor
	if floor <= 0 {
		floor = DefaultVarianceFloor
	}
	if out.Variance < floor {
		out.Variance = floor
	}

	// Derivatives in per-day units over the inter-update interval.
	dtDays := now.Sub(out.LastUpdated).Hours() / 24
	if dtDays <= 0 {
		dtDays = 1
	}
	out.Velocity = (out.Value - prevValue) / dtDays
	out.Acceleration = (out.Velocity - prevVelocity) / dtDays

	// Running historical moments (Welford-style incremental mean/variance).
	out.Observations++
	n := float64(out.Observations)
	deltaMean := out.Value - out.HistoricalMean
	out.HistoricalMean += deltaMean / n
	if out.Observations > 1 {
		prevVar := out.HistoricalStd * out.HistoricalStd
		newVar := ((n-1)*prevVar + deltaMean*(out.Value-out.HistoricalMean)) / n
		out.HistoricalStd = math.Sqrt(math.Max(newVar, 0))
	}

	if !containsSource(out.Sources, source) {
		out.Sources = append(out.Sources, source)
	}
	out.LastObserved = obsTime
	out.LastUpdated = now
	out.Confidence = confidence(out, now)
	return out
}

func containsSource(sources []string, s string) bool {
	for _, x := range sources {
		if x == s {
			return true
		}
	}
	return false
}

// #endregion apply-measurement

// #region confidence
// Confidence blend weights. Calibration pending: chosen to make confidence
// respond to staleness first, then evidence volume, then precision.
const (
	confRecencyWeight  = 0.4
	confCountWeight    = 0.25
	confVarianceWeight = 0.35
	confRecencyHal     = 3.0 // days to half-weight recency
)

// confidence blends recency, observation count and inverse variance into a
// single 0..1 trust score for the variable's current estimate.
func confidence(v *StateVariable, now time.Time) float64 {
	days := now.Sub(v.LastObserved).Hours() / 24
	if days < 0 {
		days = 0
	}
	recency := math.Exp(-days / confRecencyHal)
	count := 1 - 1/(1+float64(v.Observations))
	precision := 1 / (1 + v.Variance/DefaultVarianceFloor/100)
	c := confRecencyWeight*recency + confCountWeight*count + confVarianceWeight*precision
	return clamp01(c)
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// #endregion confidence
