package server

import (
	"context"
	"encoding/json"

	"github.com/alfredjeanlab/nari/internal/model"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	// CommandServiceName is the fully qualified gRPC service name.
	CommandServiceName = "nari.v1.CommandService"
	// DispatchMethod is the full method name of CommandService.Dispatch.
	DispatchMethod = "/" + CommandServiceName + "/Dispatch"
)

// CommandServiceServer is the server API for nari.v1.CommandService. The
// request and reply are google.protobuf.Struct values holding the JSON form
// of model.Invocation and model.Response.
type CommandServiceServer interface {
	Dispatch(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

func dispatchHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CommandServiceServer).Dispatch(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: DispatchMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CommandServiceServer).Dispatch(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// CommandServiceDesc describes nari.v1.CommandService for grpc.Server.
var CommandServiceDesc = grpc.ServiceDesc{
	ServiceName: CommandServiceName,
	HandlerType: (*CommandServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Dispatch", Handler: dispatchHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "nari/v1/command.proto",
}

// Dispatch implements CommandServiceServer. Domain outcomes travel in the
// reply's kind field; only malformed requests and encoding failures become
// gRPC status errors.
func (s *NariServer) Dispatch(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	raw, err := protojson.Marshal(in)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid invocation: %v", err)
	}
	var inv model.Invocation
	if err := json.Unmarshal(raw, &inv); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid invocation: %v", err)
	}
	if inv.Command == "" {
		return nil, status.Error(codes.InvalidArgument, "command is required")
	}
	if inv.Principal.ID == "" {
		return nil, status.Error(codes.InvalidArgument, "principal.id is required")
	}

	resp := s.disp.Dispatch(ctx, &inv)
	return responseToStruct(resp)
}

func responseToStruct(resp *model.Response) (*structpb.Struct, error) {
	raw, err := json.Marshal(resp)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

// NewGRPCServer creates a gRPC server with standard interceptors, registers
// the CommandService, the health service and reflection, and returns the
// server ready to serve.
func NewGRPCServer(nariServer *NariServer, authToken string) *grpc.Server {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			RecoveryInterceptor(nariServer.logger),
			LoggingInterceptor(nariServer.logger),
			AuthInterceptor(authToken),
		),
	)

	srv.RegisterService(&CommandServiceDesc, nariServer)

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(CommandServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)

	reflection.Register(srv)

	return srv
}
