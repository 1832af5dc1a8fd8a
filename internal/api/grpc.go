package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"strategylab/internal/store"
)

const backtestServiceName = "strategylab.v1.BacktestService"

// backtestServer is the method set served under backtestServiceName.
// Results travel as google.protobuf.Struct so no generated code is needed.
type backtestServer interface {
	GetResult(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	ListResults(context.Context, *structpb.Struct) (*structpb.ListValue, error)
	DeleteResult(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
}

var backtestServiceDesc = grpc.ServiceDesc{
	ServiceName: backtestServiceName,
	HandlerType: (*backtestServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetResult",
			Handler: unary("GetResult", func() *wrapperspb.StringValue { return new(wrapperspb.StringValue) },
				func(s backtestServer, ctx context.Context, in *wrapperspb.StringValue) (proto.Message, error) {
					return s.GetResult(ctx, in)
				}),
		},
		{
			MethodName: "ListResults",
			Handler: unary("ListResults", func() *structpb.Struct { return new(structpb.Struct) },
				func(s backtestServer, ctx context.Context, in *structpb.Struct) (proto.Message, error) {
					return s.ListResults(ctx, in)
				}),
		},
		{
			MethodName: "DeleteResult",
			Handler: unary("DeleteResult", func() *wrapperspb.StringValue { return new(wrapperspb.StringValue) },
				func(s backtestServer, ctx context.Context, in *wrapperspb.StringValue) (proto.Message, error) {
					return s.DeleteResult(ctx, in)
				}),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "strategylab/v1/backtest.proto",
}

func unary[R proto.Message](method string, newReq func() R, call func(backtestServer, context.Context, R) (proto.Message, error)) grpc.MethodHandler {
	fullMethod := "/" + backtestServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := newReq()
		if err := dec(in); err != nil {
			return nil, err
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(backtestServer), ctx, req.(R))
		}
		if interceptor == nil {
			return handler(ctx, in)
		}
		return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}, handler)
	}
}

// RegisterBacktestService registers svc on gs.
func RegisterBacktestService(gs *grpc.Server, svc *BacktestService) {
	gs.RegisterService(&backtestServiceDesc, svc)
}

// BacktestService serves stored results over gRPC.
type BacktestService struct {
	results store.ResultStore
	log     *slog.Logger
}

// NewBacktestService creates a BacktestService backed by results.
func NewBacktestService(results store.ResultStore, logger *slog.Logger) *BacktestService {
	if logger == nil {
		logger = slog.Default()
	}
	return &BacktestService{results: results, log: logger}
}

// GetResult returns the full stored result as a Struct.
func (s *BacktestService) GetResult(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	rec, err := s.results.GetResult(ctx, in.GetValue())
	if err != nil {
		return nil, s.toStatus(err, "GetResult")
	}
	var m map[string]any
	if err := json.Unmarshal(rec.Payload, &m); err != nil {
		return nil, status.Errorf(codes.DataLoss, "decoding result %s: %v", rec.ID, err)
	}
	m["id"] = rec.ID
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "converting result: %v", err)
	}
	return out, nil
}

// ListResults returns result summaries. The request may carry "name" and
// "limit" fields.
func (s *BacktestService) ListResults(ctx context.Context, in *structpb.Struct) (*structpb.ListValue, error) {
	var filter store.ListFilter
	if v, ok := in.GetFields()["name"]; ok {
		filter.Name = v.GetStringValue()
	}
	if v, ok := in.GetFields()["limit"]; ok {
		filter.Limit = int(v.GetNumberValue())
	}

	recs, err := s.results.ListResults(ctx, filter)
	if err != nil {
		return nil, s.toStatus(err, "ListResults")
	}
	items := make([]any, 0, len(recs))
	for i := range recs {
		m, err := toMap(&recs[i])
		if err != nil {
			return nil, status.Errorf(codes.Internal, "converting summary: %v", err)
		}
		items = append(items, m)
	}
	out, err := structpb.NewList(items)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "converting summaries: %v", err)
	}
	return out, nil
}

// DeleteResult removes a stored result.
func (s *BacktestService) DeleteResult(ctx context.Context, in *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if err := s.results.DeleteResult(ctx, in.GetValue()); err != nil {
		return nil, s.toStatus(err, "DeleteResult")
	}
	return &emptypb.Empty{}, nil
}

func (s *BacktestService) toStatus(err error, method string) error {
	if errors.Is(err, store.ErrNotFound) {
		return status.Error(codes.NotFound, "result not found")
	}
	s.log.Error("grpc call failed", "method", method, "error", err)
	return status.Error(codes.Internal, err.Error())
}

// toMap round-trips v through JSON so structpb accepts it.
func toMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// BacktestClient calls a remote BacktestService.
type BacktestClient struct {
	cc grpc.ClientConnInterface
}

// NewBacktestClient wraps an established connection.
func NewBacktestClient(cc grpc.ClientConnInterface) *BacktestClient {
	return &BacktestClient{cc: cc}
}

// GetResult fetches one result by ID.
func (c *BacktestClient) GetResult(ctx context.Context, id string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+backtestServiceName+"/GetResult", wrapperspb.String(id), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// ListResults fetches summaries, optionally filtered by name.
func (c *BacktestClient) ListResults(ctx context.Context, name string, limit int, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	in, err := structpb.NewStruct(map[string]any{"name": name, "limit": limit})
	if err != nil {
		return nil, err
	}
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, "/"+backtestServiceName+"/ListResults", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteResult removes one result by ID.
func (c *BacktestClient) DeleteResult(ctx context.Context, id string, opts ...grpc.CallOption) error {
	return c.cc.Invoke(ctx, "/"+backtestServiceName+"/DeleteResult", wrapperspb.String(id), new(emptypb.Empty), opts...)
}
