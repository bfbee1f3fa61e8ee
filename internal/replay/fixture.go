package replay

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/danielpatrickdp/latent-twin/go-twin/internal/eval"
	"github.com/danielpatrickdp/latent-twin/go-twin/internal/gate"
	"github.com/danielpatrickdp/latent-twin/go-twin/internal/twin"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture: a recorded
// observation stream plus the configs active when it was captured and the
// expected per-observation outcomes.
type Fixture struct {
	Description     string                  `json:"description"`
	SubjectID       string                  `json:"subject_id"`
	Config          FixtureConfig           `json:"config"`
	Observations    []twin.Observation      `json:"observations"`
	ExpectedResults []FixtureExpectedResult `json:"expected_results,omitempty"`
}

// FixtureConfig bundles the pipeline configs for a replay run.
type FixtureConfig struct {
	Measure twin.MeasureConfig `json:"measure_config"`
	Gate    gate.GateConfig    `json:"gate_config"`
	Eval    eval.EvalConfig    `json:"eval_config"`
}

// DefaultFixtureConfig returns the standard pipeline configuration.
func DefaultFixtureConfig() FixtureConfig {
	return FixtureConfig{
		Measure: twin.DefaultMeasureConfig(),
		Gate:    gate.DefaultGateConfig(),
		Eval:    eval.DefaultEvalConfig(),
	}
}

// FixtureExpectedResult captures the expected action per observation.
type FixtureExpectedResult struct {
	ObservationID string `json:"observation_id"`
	Action        string `json:"action"` // "commit" | "reject" | "eval_fail"
}

// #endregion fixture-types

// #region fixture-io

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	if f.SubjectID == "" {
		return nil, fmt.Errorf("fixture %s: subject_id is required", path)
	}
	return &f, nil
}

// SaveFixture writes a fixture as indented JSON.
func SaveFixture(path string, f *Fixture) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fixture: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write fixture %s: %w", path, err)
	}
	return nil
}

// #endregion fixture-io
