package grpcstore

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/consign/consignment"
	"xdao.co/consign/storage"
)

// RequestIDHeader carries the per-call request id. Clients set it; the
// server generates one when it is missing and echoes it in the response
// header.
const RequestIDHeader = "x-request-id"

func newRequestID() string { return "req_" + uuid.NewString() }

// Server exposes a storage.Store over the ConsignmentStore service.
type Server struct {
	UnimplementedStoreServer
	Store storage.Store
}

// NewServer returns a gRPC server with tracing and request ids wired, and the
// ConsignmentStore service registered on it.
func NewServer(store storage.Store, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(requestIDInterceptor),
	}, opts...)
	srv := grpc.NewServer(opts...)
	RegisterStoreServer(srv, &Server{Store: store})
	return srv
}

func requestIDInterceptor(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	id := ""
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(RequestIDHeader); len(v) > 0 {
			id = v[0]
		}
	}
	if id == "" {
		id = newRequestID()
	}
	_ = grpc.SetHeader(ctx, metadata.Pairs(RequestIDHeader, id))
	return handler(ctx, req)
}

func (s *Server) Put(_ context.Context, in *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	if s == nil || s.Store == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing store")
	}
	want, _, err := storage.Canonical(in.GetValue())
	if err != nil {
		return nil, mapErr(err)
	}
	id, err := s.Store.Put(in.GetValue())
	if err != nil {
		return nil, mapErr(err)
	}
	if id != want {
		return nil, mapErr(storage.ErrIDMismatch)
	}
	return wrapperspb.String(id.String()), nil
}

func (s *Server) Get(_ context.Context, in *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	if s == nil || s.Store == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing store")
	}
	id, err := consignment.ParseID(in.GetValue())
	if err != nil || !storage.Defined(id) {
		return nil, mapErr(storage.ErrInvalidID)
	}
	b, err := s.Store.Get(id)
	if err != nil {
		return nil, mapErr(err)
	}
	if err := storage.Verify(id, b); err != nil {
		return nil, mapErr(storage.ErrIDMismatch)
	}
	return wrapperspb.Bytes(b), nil
}

func (s *Server) Has(_ context.Context, in *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	if s == nil || s.Store == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing store")
	}
	id, err := consignment.ParseID(in.GetValue())
	if err != nil || !storage.Defined(id) {
		return nil, mapErr(storage.ErrInvalidID)
	}
	return wrapperspb.Bool(s.Store.Has(id)), nil
}
