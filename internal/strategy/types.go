package strategy

import "time"

// #region data-class

// Density buckets how much data a subject produces.
type Density string

const (
	DensitySparse   Density = "sparse"
	DensityModerate Density = "moderate"
	DensityDense    Density = "dense"
)

// Volatility buckets how much the subject's wellbeing moves between
// snapshots.
type Volatility string

const (
	VolatilityLow      Volatility = "low"
	VolatilityModerate Volatility = "moderate"
	VolatilityHigh     Volatility = "high"
)

// Regularity buckets how evenly spaced the snapshots arrive.
type Regularity string

const (
	RegularityRegular   Regularity = "regular"
	RegularityIrregular Regularity = "irregular"
)

// DataClass is the classification of a subject's observation regime. It is
// the lookup key for both the default method mapping and the learned
// outcome memory.
type DataClass struct {
	Density    Density    `json:"density"`
	Volatility Volatility `json:"volatility"`
	Regularity Regularity `json:"regularity"`
}

// #endregion data-class

// #region outcome-record

// OutcomeRecord is one observed estimation outcome for learning which
// method works for which regime. Quality is a [0,1] diagnostic score from
// the evaluation harness.
type OutcomeRecord struct {
	SubjectID string
	Class     DataClass
	Method    string
	Quality   float64
	Accepted  bool
	CreatedAt time.Time
}

// #endregion outcome-record
