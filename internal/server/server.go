// Package server exposes the engine, ledger and catalog over gRPC. Messages are plain Go
// structs carried by the JSON codec; service descriptors are declared by hand.
package server

import (
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type Services struct {
	Jobs    JobsService
	Orders  OrdersService
	Catalog CatalogService
}

// NewGRPCServer registers every service plus the standard health service, which starts out
// SERVING.
func NewGRPCServer(svcs Services, logger *slog.Logger, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	opts = append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(UnaryInterceptor(logger))}, opts...)
	s := grpc.NewServer(opts...)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)

	if svcs.Jobs != nil {
		RegisterJobsService(s, svcs.Jobs)
		hs.SetServingStatus(JobsServiceName, healthpb.HealthCheckResponse_SERVING)
	}
	if svcs.Orders != nil {
		RegisterOrdersService(s, svcs.Orders)
		hs.SetServingStatus(OrdersServiceName, healthpb.HealthCheckResponse_SERVING)
	}
	if svcs.Catalog != nil {
		RegisterCatalogService(s, svcs.Catalog)
		hs.SetServingStatus(CatalogServiceName, healthpb.HealthCheckResponse_SERVING)
	}
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	return s, hs
}
