package gate

import (
	"fmt"
	"math"
	"time"

	"github.com/danielpatrickdp/latent-twin/go-twin/internal/twin"
)

// #region gate
// Gate evaluates whether an incoming observation should be applied to the
// twin, applied with attenuated trust, or rejected outright.
type Gate struct {
	config GateConfig
}

// NewGate creates a gate with the given configuration.
func NewGate(config GateConfig) *Gate {
	return &Gate{config: config}
}

// Evaluate checks hard vetoes first, then scores soft quality signals.
// now is the service clock at evaluation time.
func (g *Gate) Evaluate(obs twin.Observation, now time.Time) GateDecision {
	var vetoes []VetoSignal

	// --- Hard veto pass ---

	// 1. Non-finite raw value or features
	if math.IsNaN(obs.Value) || math.IsInf(obs.Value, 0) {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoNonFiniteValue,
			Reason: "raw value is not finite",
		})
	}
	for name, v := range obs.Features {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			vetoes = append(vetoes, VetoSignal{
				Type:   VetoNonFiniteValue,
				Reason: fmt.Sprintf("feature %q is not finite", name),
			})
			break
		}
	}

	// 2. Unusable quality
	if obs.Quality < g.config.MinQuality {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoUnusableQuality,
			Reason: fmt.Sprintf("quality %.3f below floor %.3f", obs.Quality, g.config.MinQuality),
		})
	}

	// 3. Timestamp sanity
	if skew := obs.Timestamp.Sub(now).Hours(); skew > g.config.MaxFutureSkew {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoFutureTimestamp,
			Reason: fmt.Sprintf("timestamp leads clock by %.1fh", skew),
		})
	}
	if age := now.Sub(obs.Timestamp).Hours() / 24; age > g.config.MaxAgeDays {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoStale,
			Reason: fmt.Sprintf("observation is %.1f days old", age),
		})
	}

	if len(vetoes) > 0 {
		return GateDecision{
			Action:      ActionReject,
			Reason:      fmt.Sprintf("hard veto: %s", vetoes[0].Reason),
			Vetoed:      true,
			VetoSignals: vetoes,
			Attenuation: 0,
		}
	}

	// --- Soft scoring ---
	softScore := softQuality(obs)

	if obs.Quality < g.config.AttenuateBelowQ || len(obs.Missing) > 0 {
		return GateDecision{
			Action:      ActionAttenuate,
			Reason:      fmt.Sprintf("low-trust admission: soft_score=%.4f", softScore),
			Attenuation: math.Max(softScore, 0.1),
			SoftScore:   softScore,
		}
	}

	return GateDecision{
		Action:      ActionAdmit,
		Reason:      fmt.Sprintf("passed gate: soft_score=%.4f", softScore),
		Attenuation: 1,
		SoftScore:   softScore,
	}
}

// #endregion gate

// #region helpers
// softQuality combines reported quality with a missingness penalty into a
// 0-1 score used as the attenuation factor for low-trust admissions.
func softQuality(obs twin.Observation) float64 {
	score := obs.Quality

	// Each missing field costs a slice of trust, floored so a partially
	// missing observation still carries some weight.
	if n := len(obs.Missing); n > 0 {
		penalty := 1 - 0.15*float64(n)
		if penalty < 0.2 {
			penalty = 0.2
		}
		score *= penalty
	}

	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score
}

// #endregion helpers
