package transportgrpc

import (
	"errors"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	grpcinterceptors "github.com/tolibear/evolving-site-sub001/internal/transport/grpc/interceptors"
)

// ServerDependencies encapsulates what the gRPC server layer needs.
type ServerDependencies struct {
	Health  *HealthReporter
	Metrics *grpcinterceptors.GRPCMetrics
	Logger  *zap.Logger
}

// NewServer builds the gRPC server exposing health and reflection.
func NewServer(deps ServerDependencies) (*grpc.Server, error) {
	if deps.Health == nil {
		return nil, errors.New("health reporter is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	server := grpc.NewServer(
		grpcinterceptors.TracingServerOption(grpcinterceptors.TracingOptions{}),
		grpc.ChainUnaryInterceptor(deps.Metrics.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(deps.Metrics.StreamServerInterceptor()),
	)

	healthpb.RegisterHealthServer(server, deps.Health.Server())

	// Reflection for grpcurl and similar tooling.
	reflection.Register(server)

	logger.Debug("grpc services registered", zap.Int("services", len(server.GetServiceInfo())))
	return server, nil
}
