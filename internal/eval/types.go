package eval

// #region eval-config
// EvalConfig holds thresholds for post-cycle validation.
type EvalConfig struct {
	ValueSlack      float64 // allowed overshoot beyond the [0,1] convention
	MinVariance     float64 // reject if any variance collapses below this
	MaxVariance     float64 // reject if any variance explodes above this
	BeliefTolerance float64 // allowed deviation of the regime belief sum from 1
	MaxEntropy      float64 // warn if regime entropy exceeds this
}

// DefaultEvalConfig returns sensible defaults.
func DefaultEvalConfig() EvalConfig {
	return EvalConfig{
		ValueSlack:      0.25,
		MinVariance:     1e-6,
		MaxVariance:     1.0,
		BeliefTolerance: 1e-6,
		MaxEntropy:      1.1, // just above ln(3), uniform over three regimes
	}
}

// #endregion eval-config

// #region eval-metric
// EvalMetric captures a single validation check result.
type EvalMetric struct {
	Name  string
	Value float64
	Pass  bool
}

// #endregion eval-metric

// #region eval-result
// EvalResult is the output of post-cycle validation. Quality is the
// fraction of passed checks, fed to the strategy memory.
type EvalResult struct {
	Passed  bool
	Metrics []EvalMetric
	Reason  string
	Quality float64
}

// #endregion eval-result
