package gate

// #region veto-type
// VetoType enumerates hard veto categories.
type VetoType string

const (
	VetoUnusableQuality VetoType = "unusable_quality"
	VetoFutureTimestamp VetoType = "future_timestamp"
	VetoNonFiniteValue  VetoType = "non_finite_value"
	VetoStale           VetoType = "stale_observation"
)

// #endregion veto-type

// #region veto-signal
// VetoSignal represents a detected hard veto condition.
type VetoSignal struct {
	Type   VetoType
	Reason string
}

// #endregion veto-signal

// #region gate-config
// GateConfig holds thresholds for admission decisions.
type GateConfig struct {
	MinQuality      float64 // below this the observation is unusable
	MaxFutureSkew   float64 // hours an observation may lead the clock
	MaxAgeDays      float64 // observations older than this are stale
	AttenuateBelowQ float64 // soft: admit attenuated below this quality
}

// DefaultGateConfig returns the standard admission thresholds.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		MinQuality:      0.05,
		MaxFutureSkew:   1.0,
		MaxAgeDays:      30,
		AttenuateBelowQ: 0.5,
	}
}

// #endregion gate-config

// #region gate-decision
// Action is what the service should do with an observation.
type Action string

const (
	ActionAdmit     Action = "admit"
	ActionAttenuate Action = "admit_attenuated"
	ActionReject    Action = "reject"
)

// GateDecision is the output of the admission evaluation.
type GateDecision struct {
	Action      Action
	Reason      string
	Vetoed      bool
	VetoSignals []VetoSignal // non-empty if vetoed
	Attenuation float64      // reliability multiplier applied downstream (1 = none)
	SoftScore   float64      // 0-1 composite of soft quality signals (for logging)
}

// #endregion gate-decision
