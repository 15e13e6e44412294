// Package grpchealth exposes the standard gRPC health service. The ingest
// service reports NOT_SERVING while the system is locked down so load
// balancers drain sensor traffic.
package grpchealth

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

// IngestService is the health service name for sensor ingestion.
const IngestService = "vitals.Ingest"

// Reporter owns the gRPC server and its health status table.
type Reporter struct {
	server *grpc.Server
	health *health.Server
	logger *zap.Logger
}

// New creates a Reporter with the overall and ingest services SERVING.
func New(logger *zap.Logger) *Reporter {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(loggingInterceptor(logger)))
	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	hs.SetServingStatus(IngestService, grpc_health_v1.HealthCheckResponse_SERVING)
	return &Reporter{server: srv, health: hs, logger: logger}
}

// Server returns the underlying gRPC server.
func (r *Reporter) Server() *grpc.Server {
	return r.server
}

// SetLockdown flips the ingest service status. It matches
// lockdown.TransitionFunc and is safe to call under the controller lock.
func (r *Reporter) SetLockdown(active bool, reason string) {
	st := grpc_health_v1.HealthCheckResponse_SERVING
	if active {
		st = grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	r.health.SetServingStatus(IngestService, st)
	r.logger.Info("grpc health updated",
		zap.String("service", IngestService),
		zap.String("status", st.String()),
		zap.String("reason", reason),
	)
}

// Check returns the current status of service.
func (r *Reporter) Check(ctx context.Context, service string) (grpc_health_v1.HealthCheckResponse_ServingStatus, error) {
	resp, err := r.health.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: service})
	if err != nil {
		return grpc_health_v1.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}

// Shutdown marks every service NOT_SERVING and stops the server gracefully.
func (r *Reporter) Shutdown() {
	r.health.Shutdown()
	r.server.GracefulStop()
}

// loggingInterceptor logs each unary call.
func loggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Debug("grpc",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("latency", time.Since(start)),
		)
		return resp, err
	}
}
