package features

import (
	"github.com/danielpatrickdp/latent-twin/go-twin/internal/twin"
)

// #region extractor

// Extractor turns raw observations into normalized per-variable
// measurements, applying the static source→variables dispatch table and the
// per-source reliability weights.
type Extractor struct {
	config ExtractorConfig
}

// NewExtractor creates an Extractor.
func NewExtractor(config ExtractorConfig) *Extractor {
	return &Extractor{config: config}
}

// #endregion extractor

// #region extract

// Extract maps an observation to the measurements it produces. An unmapped
// source yields no measurements, not an error. When the observation carries
// named features, only mapped variables that appear among the features are
// measured (at their feature values); otherwise every mapped variable
// receives the raw value.
func (e *Extractor) Extract(obs twin.Observation, attenuation float64) []twin.Measurement {
	targets := twin.TargetsFor(obs.Source)
	if len(targets) == 0 {
		return nil
	}

	reliability := twin.ReliabilityFor(obs.Source)
	if obs.Quality > 0 {
		reliability *= obs.Quality
	}
	if attenuation > 0 && attenuation < 1 {
		reliability *= attenuation
	}
	if reliability < e.config.MinReliability {
		reliability = e.config.MinReliability
	}

	out := make([]twin.Measurement, 0, len(targets))
	for _, id := range targets {
		value := obs.Value
		if len(obs.Features) > 0 {
			fv, ok := obs.Features[id]
			if !ok {
				continue
			}
			value = fv
		}
		out = append(out, twin.Measurement{
			VariableID:  id,
			Value:       e.normalize(value),
			Reliability: reliability,
		})
	}
	return out
}

func (e *Extractor) normalize(v float64) float64 {
	if !e.config.ClampValues {
		return v
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// #endregion extract
