package obsfeed

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/danielpatrickdp/latent-twin/go-twin/internal/twin"
)

// #region client-struct

// invoker is the subset of grpc.ClientConn the client needs. Tests inject a
// fake.
type invoker interface {
	Invoke(ctx context.Context, method string, args, reply interface{}, opts ...grpc.CallOption) error
}

// Client wraps the gRPC connection to a twin feed server.
type Client struct {
	conn *grpc.ClientConn
	inv  invoker
}

// #endregion client-struct

// #region constructor

// NewClient connects to the feed server.
func NewClient(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn, inv: conn}, nil
}

// NewClientWithInvoker creates a Client with an injected transport.
// Used for testing without a real gRPC connection.
func NewClientWithInvoker(inv invoker) *Client {
	return &Client{inv: inv}
}

// #endregion constructor

// #region close

// Close shuts down the gRPC connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// #endregion close

// #region rpcs

// SubmitObservation sends one observation for a subject.
func (c *Client) SubmitObservation(ctx context.Context, subjectID string, obs twin.Observation) (SubmitObservationResponse, error) {
	var resp SubmitObservationResponse
	err := c.inv.Invoke(ctx, methodPath("SubmitObservation"),
		&SubmitObservationRequest{SubjectID: subjectID, Observation: obs}, &resp)
	if err != nil {
		return SubmitObservationResponse{}, fmt.Errorf("submit observation rpc: %w", err)
	}
	return resp, nil
}

// SubmitBatch sends a batch of observations for a subject.
func (c *Client) SubmitBatch(ctx context.Context, subjectID string, observations []twin.Observation) (SubmitBatchResponse, error) {
	var resp SubmitBatchResponse
	err := c.inv.Invoke(ctx, methodPath("SubmitBatch"),
		&SubmitBatchRequest{SubjectID: subjectID, Observations: observations}, &resp)
	if err != nil {
		return SubmitBatchResponse{}, fmt.Errorf("submit batch rpc: %w", err)
	}
	return resp, nil
}

// GetState fetches a subject's current twin.
func (c *Client) GetState(ctx context.Context, subjectID string) (*twin.TwinState, error) {
	var resp GetStateResponse
	err := c.inv.Invoke(ctx, methodPath("GetState"),
		&GetStateRequest{SubjectID: subjectID}, &resp)
	if err != nil {
		return nil, fmt.Errorf("get state rpc: %w", err)
	}
	return resp.State, nil
}

// Estimate triggers an estimation cycle. An empty method lets the server
// choose.
func (c *Client) Estimate(ctx context.Context, subjectID, method string) (*twin.TwinState, string, error) {
	var resp EstimateResponse
	err := c.inv.Invoke(ctx, methodPath("Estimate"),
		&EstimateRequest{SubjectID: subjectID, Method: method}, &resp)
	if err != nil {
		return nil, "", fmt.Errorf("estimate rpc: %w", err)
	}
	return resp.State, resp.Method, nil
}

// GetBeliefs fetches a subject's dimension-level belief state.
func (c *Client) GetBeliefs(ctx context.Context, subjectID string) (GetBeliefsResponse, error) {
	var resp GetBeliefsResponse
	err := c.inv.Invoke(ctx, methodPath("GetBeliefs"),
		&GetBeliefsRequest{SubjectID: subjectID}, &resp)
	if err != nil {
		return GetBeliefsResponse{}, fmt.Errorf("get beliefs rpc: %w", err)
	}
	return resp, nil
}

// #endregion rpcs
