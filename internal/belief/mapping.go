package belief

import (
	"time"

	"github.com/danielpatrickdp/latent-twin/go-twin/internal/twin"
)

// #region twin-mapping

// FromTwin derives one piece of evidence per dimension from a twin
// snapshot, so belief states can be refreshed from the estimation pipeline
// without re-consuming raw observations.
//
// The mapping is lossy: valence and arousal read the matching
// variables directly, dominance reads self-efficacy, risk blends the
// crisis regime belief with stress and anxiety, resources reads the
// resilience composite.
func FromTwin(t *twin.TwinState, now time.Time) []Evidence {
	var out []Evidence

	if v, ok := t.Variables["emotion_valence"]; ok {
		out = append(out, Evidence{
			Dimension: DimValence, Value: v.Value, Reliability: v.Confidence,
			Type: "twin_estimate", Timestamp: now,
		})
	}
	if v, ok := t.Variables["emotion_arousal"]; ok {
		out = append(out, Evidence{
			Dimension: DimArousal, Value: v.Value, Reliability: v.Confidence,
			Type: "twin_estimate", Timestamp: now,
		})
	}
	if v, ok := t.Variables["self_efficacy"]; ok {
		out = append(out, Evidence{
			Dimension: DimDominance, Value: v.Value, Reliability: v.Confidence,
			Type: "twin_estimate", Timestamp: now,
		})
	}

	risk := riskFromTwin(t)
	out = append(out, Evidence{
		Dimension: DimRisk, Value: risk, Reliability: t.Composites.DataQuality,
		Type: "twin_estimate", Timestamp: now,
	})
	out = append(out, Evidence{
		Dimension: DimResources, Value: t.Composites.Resilience,
		Reliability: t.Composites.DataQuality,
		Type: "twin_estimate", Timestamp: now,
	})
	return out
}

// riskFromTwin blends the crisis regime probability with the acute
// stress and anxiety estimates.
func riskFromTwin(t *twin.TwinState) float64 {
	risk := 0.5 * t.RegimeBelief[twin.RegimeCrisis]
	if v, ok := t.Variables["stress_level"]; ok {
		risk += 0.3 * v.Value
	}
	if v, ok := t.Variables["emotion_anxiety"]; ok {
		risk += 0.2 * v.Value
	}
	if risk > 1 {
		risk = 1
	}
	if risk < 0 {
		risk = 0
	}
	return risk
}

// #endregion twin-mapping
