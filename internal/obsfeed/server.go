package obsfeed

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/danielpatrickdp/latent-twin/go-twin/internal/eval"
	"github.com/danielpatrickdp/latent-twin/go-twin/internal/logger"
	"github.com/danielpatrickdp/latent-twin/go-twin/internal/service"
	"github.com/danielpatrickdp/latent-twin/go-twin/internal/strategy"
)

// #region server-struct

// FeedServer is the handler interface registered with gRPC.
type FeedServer interface {
	SubmitObservation(ctx context.Context, req *SubmitObservationRequest) (*SubmitObservationResponse, error)
	SubmitBatch(ctx context.Context, req *SubmitBatchRequest) (*SubmitBatchResponse, error)
	GetState(ctx context.Context, req *GetStateRequest) (*GetStateResponse, error)
	Estimate(ctx context.Context, req *EstimateRequest) (*EstimateResponse, error)
	GetBeliefs(ctx context.Context, req *GetBeliefsRequest) (*GetBeliefsResponse, error)
}

// Server exposes the twin service over gRPC.
type Server struct {
	svc      *service.Service
	selector *strategy.Selector
	check    *eval.Harness
	log      *logger.Logger
}

// NewServer wires the feed around a service. selector may be nil, in which
// case automatic method selection falls back to the Kalman filter and no
// outcomes are learned.
func NewServer(svc *service.Service, selector *strategy.Selector, log *logger.Logger) *Server {
	if log == nil {
		log = logger.NewNop()
	}
	if selector == nil {
		selector = strategy.NewSelector(nil)
	}
	return &Server{
		svc:      svc,
		selector: selector,
		check:    eval.NewHarness(eval.DefaultEvalConfig()),
		log:      log,
	}
}

// Register attaches the feed service to a gRPC server.
func Register(g *grpc.Server, s *Server) {
	g.RegisterService(&serviceDesc, s)
}

// #endregion server-struct

// #region handlers

// SubmitObservation applies one observation.
func (s *Server) SubmitObservation(ctx context.Context, req *SubmitObservationRequest) (*SubmitObservationResponse, error) {
	if req.SubjectID == "" {
		return nil, status.Error(codes.InvalidArgument, "subject_id is required")
	}
	res, err := s.svc.ApplyObservation(req.SubjectID, req.Observation)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "apply observation: %v", err)
	}
	return &SubmitObservationResponse{
		Accepted:  !res.Decision.Vetoed,
		Reason:    res.Decision.Reason,
		Version:   res.Version,
		Affected:  res.Affected,
		Wellbeing: res.Wellbeing,
	}, nil
}

// SubmitBatch applies a batch of observations.
func (s *Server) SubmitBatch(ctx context.Context, req *SubmitBatchRequest) (*SubmitBatchResponse, error) {
	if req.SubjectID == "" {
		return nil, status.Error(codes.InvalidArgument, "subject_id is required")
	}
	res, err := s.svc.ApplyBatch(req.SubjectID, req.Observations)
	if err != nil {
		if errors.Is(err, service.ErrEmptyBatch) {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		return nil, status.Errorf(codes.Internal, "apply batch: %v", err)
	}
	return &SubmitBatchResponse{
		Applied:   res.Applied,
		Rejected:  res.Rejected,
		Version:   res.Final.Version,
		Affected:  res.Affected,
		Wellbeing: res.Final.Wellbeing,
	}, nil
}

// GetState returns a subject's current twin.
func (s *Server) GetState(ctx context.Context, req *GetStateRequest) (*GetStateResponse, error) {
	st, err := s.svc.GetState(req.SubjectID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return nil, status.Error(codes.NotFound, err.Error())
		}
		return nil, status.Errorf(codes.Internal, "get state: %v", err)
	}
	return &GetStateResponse{State: st}, nil
}

// Estimate refreshes a subject's estimates. An empty method is resolved
// from the subject's data regime. Each cycle's diagnostic quality is fed
// back to the selector so future regime lookups can prefer the method
// that has actually worked.
func (s *Server) Estimate(ctx context.Context, req *EstimateRequest) (*EstimateResponse, error) {
	history, err := s.svc.GetHistory(req.SubjectID, 0)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "load history: %v", err)
	}
	class := strategy.Classify(history)

	var method service.Method
	if req.Method == "" {
		method = s.selector.SelectMethod(class)
		s.log.Debug("method selected", "subject_id", req.SubjectID, "method", method.String())
	} else {
		var perr error
		method, perr = service.ParseMethod(req.Method)
		if perr != nil {
			return nil, status.Error(codes.InvalidArgument, perr.Error())
		}
	}

	st, err := s.svc.EstimateState(req.SubjectID, method)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return nil, status.Error(codes.NotFound, err.Error())
		}
		return nil, status.Errorf(codes.Internal, "estimate: %v", err)
	}

	check := s.check.Run(st)
	if rerr := s.selector.RecordOutcome(strategy.OutcomeRecord{
		SubjectID: req.SubjectID,
		Class:     class,
		Method:    method.String(),
		Quality:   check.Quality,
		Accepted:  check.Passed,
	}); rerr != nil {
		s.log.Warn("record method outcome", "subject_id", req.SubjectID, "error", rerr)
	}
	return &EstimateResponse{Method: method.String(), State: st}, nil
}

// GetBeliefs returns a subject's dimension-level beliefs.
func (s *Server) GetBeliefs(ctx context.Context, req *GetBeliefsRequest) (*GetBeliefsResponse, error) {
	rep, err := s.svc.GetBeliefReport(req.SubjectID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return nil, status.Error(codes.NotFound, err.Error())
		}
		return nil, status.Errorf(codes.Internal, "get beliefs: %v", err)
	}
	return &GetBeliefsResponse{
		State:         rep.State,
		Flags:         rep.Flags,
		NextType:      rep.NextType,
		NextDimension: string(rep.NextDimension),
	}, nil
}

// #endregion handlers

// #region service-desc

func _Feed_SubmitObservation_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(SubmitObservationRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FeedServer).SubmitObservation(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodPath("SubmitObservation")}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(FeedServer).SubmitObservation(ctx, req.(*SubmitObservationRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Feed_SubmitBatch_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(SubmitBatchRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FeedServer).SubmitBatch(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodPath("SubmitBatch")}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(FeedServer).SubmitBatch(ctx, req.(*SubmitBatchRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Feed_GetState_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(GetStateRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FeedServer).GetState(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodPath("GetState")}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(FeedServer).GetState(ctx, req.(*GetStateRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Feed_Estimate_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(EstimateRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FeedServer).Estimate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodPath("Estimate")}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(FeedServer).Estimate(ctx, req.(*EstimateRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Feed_GetBeliefs_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(GetBeliefsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FeedServer).GetBeliefs(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodPath("GetBeliefs")}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(FeedServer).GetBeliefs(ctx, req.(*GetBeliefsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*FeedServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SubmitObservation", Handler: _Feed_SubmitObservation_Handler},
		{MethodName: "SubmitBatch", Handler: _Feed_SubmitBatch_Handler},
		{MethodName: "GetState", Handler: _Feed_GetState_Handler},
		{MethodName: "Estimate", Handler: _Feed_Estimate_Handler},
		{MethodName: "GetBeliefs", Handler: _Feed_GetBeliefs_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "twinfeed",
}

// #endregion service-desc
