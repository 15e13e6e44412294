package grpchealth_test

import (
	"context"
	"net"
	"testing"

	"github.com/jmerrifield20/vitalsguard/internal/grpchealth"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
)

func TestSetLockdown(t *testing.T) {
	r := grpchealth.New(zap.NewNop())
	ctx := context.Background()

	st, err := r.Check(ctx, grpchealth.IngestService)
	if err != nil || st != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Fatalf("initial status: %v %v", st, err)
	}

	r.SetLockdown(true, "drill")
	if st, _ := r.Check(ctx, grpchealth.IngestService); st != grpc_health_v1.HealthCheckResponse_NOT_SERVING {
		t.Errorf("during lockdown: got %v", st)
	}
	// The process itself stays up.
	if st, _ := r.Check(ctx, ""); st != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Errorf("overall status: got %v", st)
	}

	r.SetLockdown(false, "")
	if st, _ := r.Check(ctx, grpchealth.IngestService); st != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Errorf("after unlock: got %v", st)
	}
}

func TestServer_overTheWire(t *testing.T) {
	r := grpchealth.New(zap.NewNop())
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go r.Server().Serve(lis) //nolint:errcheck
	defer r.Shutdown()

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	r.SetLockdown(true, "intrusion")
	resp, err := grpc_health_v1.NewHealthClient(conn).Check(context.Background(),
		&grpc_health_v1.HealthCheckRequest{Service: grpchealth.IngestService})
	if err != nil {
		t.Fatal(err)
	}
	if resp.GetStatus() != grpc_health_v1.HealthCheckResponse_NOT_SERVING {
		t.Errorf("got %v", resp.GetStatus())
	}
}
