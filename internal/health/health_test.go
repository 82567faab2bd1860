package health

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"offline_gateway/internal/gateway"
)

func startBufconn(t *testing.T) (*Server, grpc_health_v1.HealthClient) {
	t.Helper()
	listener := bufconn.Listen(1 << 20)
	server := NewServer(nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- server.Serve(ctx, listener)
	}()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Errorf("health server did not stop")
		}
	})
	return server, grpc_health_v1.NewHealthClient(conn)
}

func check(t *testing.T, client grpc_health_v1.HealthClient, service string) grpc_health_v1.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	resp, err := client.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatalf("check %q: %v", service, err)
	}
	return resp.GetStatus()
}

func TestHealthFollowsGatewayState(t *testing.T) {
	server, client := startBufconn(t)

	if status := check(t, client, ""); status != grpc_health_v1.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING before install, got %s", status)
	}

	server.SetState(gateway.StateInstalling)
	if status := check(t, client, ServiceName); status != grpc_health_v1.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING while installing, got %s", status)
	}

	server.SetState(gateway.StateActive)
	if status := check(t, client, ""); status != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING once active, got %s", status)
	}
	if status := check(t, client, ServiceName); status != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Fatalf("expected named service SERVING, got %s", status)
	}

	server.SetState(gateway.StateStopped)
	if status := check(t, client, ""); status != grpc_health_v1.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING after stop, got %s", status)
	}
}

func TestStatusFor(t *testing.T) {
	cases := map[gateway.State]grpc_health_v1.HealthCheckResponse_ServingStatus{
		gateway.StateUninstalled: grpc_health_v1.HealthCheckResponse_NOT_SERVING,
		gateway.StateInstalling:  grpc_health_v1.HealthCheckResponse_NOT_SERVING,
		gateway.StateActive:      grpc_health_v1.HealthCheckResponse_SERVING,
		gateway.StateStopped:     grpc_health_v1.HealthCheckResponse_NOT_SERVING,
	}
	for state, want := range cases {
		if got := StatusFor(state); got != want {
			t.Fatalf("state %s: expected %s, got %s", state, want, got)
		}
	}
}

func TestStopIsBounded(t *testing.T) {
	server := NewServer(nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}
