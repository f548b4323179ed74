package operator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/aodv2/aodv2/internal/observability"
)

func TestServerServesHealthCheckOverUnixSocket(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "operator.sock")
	s := New(socketPath, observability.NewMetrics(), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	var conn *grpc.ClientConn
	var err error
	for i := 0; i < 50; i++ {
		conn, err = grpc.Dial("unix://"+socketPath, grpc.WithInsecure(), grpc.WithBlock(), grpc.WithTimeout(100*time.Millisecond))
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("dial operator socket: %v", err)
	}
	defer conn.Close()

	client := healthpb.NewHealthClient(conn)
	resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if resp.Status != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("health status = %v, want SERVING", resp.Status)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error on shutdown: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for Run to return on shutdown")
	}

	if _, statErr := os.Stat(socketPath); !os.IsNotExist(statErr) {
		t.Fatal("expected socket file to be removed after shutdown")
	}
}
