package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/danielpatrickdp/latent-twin/go-twin/internal/belief"
	"github.com/danielpatrickdp/latent-twin/go-twin/internal/enkf"
	"github.com/danielpatrickdp/latent-twin/go-twin/internal/gate"
	"github.com/danielpatrickdp/latent-twin/go-twin/internal/twin"
)

// #region errors
var (
	// ErrNotFound is returned when no twin exists for a subject.
	ErrNotFound = errors.New("service: subject not found")

	// ErrEmptyBatch is returned by ApplyBatch for a zero-length input: an
	// aggregate result cannot be constructed without at least one
	// observation.
	ErrEmptyBatch = errors.New("service: batch contains no observations")
)

// #endregion errors

// #region method
// Method is the closed set of estimation strategies.
type Method int

const (
	MethodKalman Method = iota
	MethodEnsemble
	MethodBayesian
)

// String returns the wire name of the method.
func (m Method) String() string {
	switch m {
	case MethodKalman:
		return "kalman_filter"
	case MethodEnsemble:
		return "ensemble_kalman"
	case MethodBayesian:
		return "bayesian_inference"
	default:
		return fmt.Sprintf("method(%d)", int(m))
	}
}

// ParseMethod maps a wire name to a Method; unknown names are an error
// rather than a silent default.
func ParseMethod(s string) (Method, error) {
	switch s {
	case "kalman_filter":
		return MethodKalman, nil
	case "ensemble_kalman":
		return MethodEnsemble, nil
	case "bayesian_inference":
		return MethodBayesian, nil
	default:
		return 0, fmt.Errorf("service: unknown estimation method %q", s)
	}
}

// #endregion method

// #region repository
// Repository is the persistence boundary: the service owns the write
// discipline, the repository owns the bytes. Implementations must be safe
// for concurrent use.
type Repository interface {
	// GetTwin returns a deep copy of the subject's current twin, or
	// ok=false when the subject is unknown.
	GetTwin(subjectID string) (t *twin.TwinState, ok bool, err error)

	// PutTwin stores the twin as the subject's current state.
	PutTwin(t *twin.TwinState) error

	// AppendSnapshot appends a history entry; implementations evict the
	// oldest entries past their cap.
	AppendSnapshot(t *twin.TwinState) error

	// History returns snapshots in ascending timestamp order. A zero
	// window means all retained history.
	History(subjectID string, window time.Duration) ([]*twin.TwinState, error)

	// GetProfile returns the subject's learned personalization profile.
	GetProfile(subjectID string) (p twin.Personalization, ok bool, err error)

	// PutProfile stores a personalization profile.
	PutProfile(p twin.Personalization) error

	// GetBeliefs returns the subject's dimension-level belief state, or
	// ok=false when none has been persisted yet.
	GetBeliefs(subjectID string) (b *belief.BeliefState, ok bool, err error)

	// PutBeliefs stores the belief state.
	PutBeliefs(b *belief.BeliefState) error
}

// #endregion repository

// #region config
// Config holds the service's tunables.
type Config struct {
	HistoryCap int                // bounded history length per subject
	Measure    twin.MeasureConfig // per-variable cycle parameters
	Gate       gate.GateConfig
	Ensemble   enkf.Config // used by MethodEnsemble
}

// DefaultConfig returns the standard service configuration.
func DefaultConfig() Config {
	return Config{
		HistoryCap: 500,
		Measure:    twin.DefaultMeasureConfig(),
		Gate:       gate.DefaultGateConfig(),
		Ensemble:   enkf.DefaultConfig(),
	}
}

// #endregion config

// #region apply-result
// ApplyResult reports one observation-application cycle.
type ApplyResult struct {
	SubjectID string
	Version   int64
	Decision  gate.GateDecision
	Affected  []string // variable ids updated this cycle
	Outliers  []string // affected variables whose measurement failed the NIS test
	Wellbeing float64
}

// BatchResult aggregates an ApplyBatch call.
type BatchResult struct {
	SubjectID string
	Applied   int
	Rejected  int
	Affected  []string // union of updated variable ids
	Final     ApplyResult
}

// #endregion apply-result

// #region belief-report
// BeliefReport bundles a subject's belief state with its consistency
// flags and the observation type expected to teach the most next.
type BeliefReport struct {
	State         *belief.BeliefState `json:"state"`
	Flags         []string            `json:"flags,omitempty"`
	NextType      string              `json:"next_type"`
	NextDimension belief.Dimension    `json:"next_dimension"`
}

// #endregion belief-report
