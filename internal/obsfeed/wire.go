package obsfeed

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"

	"github.com/danielpatrickdp/latent-twin/go-twin/internal/belief"
	"github.com/danielpatrickdp/latent-twin/go-twin/internal/twin"
)

// #region codec

// codecName is the gRPC content subtype both sides of the feed use.
const codecName = "twinjson"

// jsonCodec is a gRPC codec carrying the feed's messages as JSON. The feed
// is an internal sidecar boundary; JSON keeps the wire inspectable and the
// message set free to evolve with the twin types.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// #endregion codec

// #region service-name

const serviceName = "twinfeed.ObservationFeed"

func methodPath(method string) string {
	return fmt.Sprintf("/%s/%s", serviceName, method)
}

// #endregion service-name

// #region messages

// SubmitObservationRequest carries one observation for a subject.
type SubmitObservationRequest struct {
	SubjectID   string           `json:"subject_id"`
	Observation twin.Observation `json:"observation"`
}

// SubmitObservationResponse reports the apply cycle outcome.
type SubmitObservationResponse struct {
	Accepted  bool     `json:"accepted"`
	Reason    string   `json:"reason,omitempty"`
	Version   int64    `json:"version"`
	Affected  []string `json:"affected,omitempty"`
	Wellbeing float64  `json:"wellbeing"`
}

// SubmitBatchRequest carries a batch of observations for a subject.
type SubmitBatchRequest struct {
	SubjectID    string             `json:"subject_id"`
	Observations []twin.Observation `json:"observations"`
}

// SubmitBatchResponse reports the aggregate batch outcome.
type SubmitBatchResponse struct {
	Applied   int      `json:"applied"`
	Rejected  int      `json:"rejected"`
	Version   int64    `json:"version"`
	Affected  []string `json:"affected,omitempty"`
	Wellbeing float64  `json:"wellbeing"`
}

// GetStateRequest asks for a subject's current twin.
type GetStateRequest struct {
	SubjectID string `json:"subject_id"`
}

// GetStateResponse carries the twin snapshot.
type GetStateResponse struct {
	State *twin.TwinState `json:"state"`
}

// EstimateRequest triggers an estimation cycle.
type EstimateRequest struct {
	SubjectID string `json:"subject_id"`
	Method    string `json:"method"` // wire name, empty selects automatically
}

// EstimateResponse carries the refreshed twin.
type EstimateResponse struct {
	Method string          `json:"method"`
	State  *twin.TwinState `json:"state"`
}

// GetBeliefsRequest asks for a subject's dimension-level belief state.
type GetBeliefsRequest struct {
	SubjectID string `json:"subject_id"`
}

// GetBeliefsResponse carries the belief state with its consistency flags
// and the suggested next observation.
type GetBeliefsResponse struct {
	State         *belief.BeliefState `json:"state"`
	Flags         []string            `json:"flags,omitempty"`
	NextType      string              `json:"next_type"`
	NextDimension string              `json:"next_dimension"`
}

// #endregion messages
