package client

import (
	"context"
	"net"
	"testing"

	"github.com/alfredjeanlab/nari/internal/model"
	"github.com/alfredjeanlab/nari/internal/server"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

// echoService answers every Dispatch with a success naming the command and
// records the authorization metadata it saw.
type echoService struct {
	auth string
}

func (e *echoService) Dispatch(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get("authorization"); len(v) > 0 {
			e.auth = v[0]
		}
	}
	cmd := in.GetFields()["command"].GetStringValue()
	if cmd == "" {
		return nil, status.Error(codes.InvalidArgument, "command is required")
	}
	return structpb.NewStruct(map[string]any{
		"command": cmd,
		"kind":    "success",
		"text":    "ran " + cmd,
		"data":    map[string]any{"args": in.GetFields()["args"].AsInterface()},
	})
}

func startEcho(t *testing.T, token string) (*GRPCClient, *echoService) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer()
	svc := &echoService{}
	gs.RegisterService(&server.CommandServiceDesc, svc)
	hs := health.NewServer()
	hs.SetServingStatus("nari.v1.CommandService", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(gs, hs)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	c, err := NewGRPCClient("passthrough:///bufnet", token,
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c, svc
}

func TestGRPCClient_Dispatch(t *testing.T) {
	c, svc := startEcho(t, "secret")

	resp, err := c.Dispatch(context.Background(), &model.Invocation{
		Principal: model.Principal{ID: "100"},
		Command:   "badge",
		Args:      []string{"<@42>"},
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if resp.Kind != model.KindSuccess || resp.Text != "ran badge" {
		t.Errorf("resp = %+v", resp)
	}
	args, _ := resp.Data["args"].([]any)
	if len(args) != 1 || args[0] != "<@42>" {
		t.Errorf("echoed args = %v", resp.Data["args"])
	}
	if svc.auth != "Bearer secret" {
		t.Errorf("authorization = %q", svc.auth)
	}
}

func TestGRPCClient_DispatchError(t *testing.T) {
	c, _ := startEcho(t, "")
	_, err := c.Dispatch(context.Background(), &model.Invocation{})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestGRPCClient_Health(t *testing.T) {
	c, _ := startEcho(t, "")
	s, err := c.Health(context.Background())
	if err != nil || s != "ok" {
		t.Fatalf("Health = %q, %v", s, err)
	}
}

func TestInvocationRoundTrip(t *testing.T) {
	inv := &model.Invocation{
		ID:        "inv-abc",
		Principal: model.Principal{ID: "1", Roles: []string{"Admin"}, Permissions: []model.Permission{model.PermKickMembers}},
		Command:   "kick",
		Args:      []string{"<@2>", "spam"},
		Members:   map[string]string{"2": "bob"},
	}
	s, err := invocationToStruct(inv)
	if err != nil {
		t.Fatal(err)
	}
	f := s.GetFields()
	if f["command"].GetStringValue() != "kick" {
		t.Errorf("command = %v", f["command"])
	}
	perms := f["principal"].GetStructValue().GetFields()["permissions"].GetListValue().GetValues()
	if len(perms) != 1 || perms[0].GetStringValue() != "kick_members" {
		t.Errorf("permissions = %v", perms)
	}
}
