package logging

import "time"

// #region estimation-entry
// EstimationEntry is a single row in the estimation_log table.
type EstimationEntry struct {
	SubjectID  string
	VersionID  string
	Trigger    string // "observation" | "batch" | "estimate" | "replay"
	Source     string
	Decision   string // "commit" | "reject" | "no_op"
	Reason     string
	DetailJSON string
	CreatedAt  time.Time
}

// #endregion estimation-entry

// #region cycle-record
// CycleRecord captures the complete inputs and outputs of one apply cycle.
// Serialized as JSON into estimation_log.detail_json for deterministic
// replay.
type CycleRecord struct {
	ObservationID string  `json:"observation_id"`
	Source        string  `json:"source"`
	Quality       float64 `json:"quality"`

	// Raw observation as received, so fixtures can be rebuilt from the log.
	ObservationJSON string `json:"observation_json,omitempty"`

	// Gate output exactly as evaluated at runtime
	GateAction  string  `json:"gate_action"`
	GateReason  string  `json:"gate_reason,omitempty"`
	GateVetoed  bool    `json:"gate_vetoed"`
	Attenuation float64 `json:"attenuation"`
	SoftScore   float64 `json:"soft_score"`

	// Cycle effects
	Affected  []string `json:"affected,omitempty"`
	Outliers  []string `json:"outliers,omitempty"`
	Version   int64    `json:"version"`
	Wellbeing float64  `json:"wellbeing"`
}

// #endregion cycle-record
