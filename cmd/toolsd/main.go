package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/joseph-ayodele/tools-tracker/internal/app"
	"github.com/joseph-ayodele/tools-tracker/internal/common"
	"github.com/joseph-ayodele/tools-tracker/internal/ingest"
	"github.com/joseph-ayodele/tools-tracker/internal/pipeline"
	"github.com/joseph-ayodele/tools-tracker/internal/server"
)

func main() {
	cfg := common.LoadConfig()
	logger, closeLog := common.SetupLogger(cfg.Log.Level, cfg.Log.File)
	defer func() { _ = closeLog() }()
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("toolsd exited", "error", err)
		_ = closeLog()
		os.Exit(1)
	}
}

func run(cfg *common.Config, logger *slog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	addr := cfg.Server.GRPCAddr
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Ping(ctx); err != nil {
		return err
	}
	if err := a.Migrate(ctx); err != nil {
		return err
	}

	queue := pipeline.NewQueue(a.Processor, logger,
		pipeline.WithWorkers(cfg.Pipeline.Workers),
		pipeline.WithQueueSize(cfg.Pipeline.QueueSize),
		pipeline.WithProcessTimeout(cfg.Pipeline.ProcessTimeout),
	)

	if dir := cfg.Ingest.WatchDir; dir != "" {
		events, _, err := ingest.Watch(ctx, ingest.WatchConfig{
			Root:        dir,
			InitialScan: cfg.Ingest.InitialScan,
			Debounce:    cfg.Ingest.Debounce,
		}, logger)
		if err != nil {
			queue.Shutdown(context.Background())
			return err
		}
		logger.Info("watching drop directory", "dir", dir)
		go ingest.NewDropDir(dir, queue, logger).Run(ctx, events)
	}

	grpcServer, healthServer := server.NewGRPCServer(server.Services{
		Jobs:    server.NewJobsServer(a.Engine, a.Processor, queue, a.Exporter, logger),
		Orders:  server.NewOrdersServer(a.Ledger, logger),
		Catalog: server.NewCatalogServer(a.Catalog, logger),
	}, logger)

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Error("failed to listen on address", "addr", addr, "error", err)
		queue.Shutdown(context.Background())
		return err
	}

	metricsServer := newMetricsServer(cfg.Server.MetricsAddr, a)
	if metricsServer != nil {
		go func() {
			logger.Info("metrics listening", "addr", cfg.Server.MetricsAddr)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server error", "error", err)
			}
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("toolsd listening", "addr", addr)
		serveErr <- grpcServer.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err = <-serveErr:
		logger.Error("gRPC serve error", "error", err)
	}

	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	grpcServer.GracefulStop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Pipeline.ProcessTimeout)
	defer cancel()
	queue.Shutdown(shutdownCtx)
	if metricsServer != nil {
		_ = metricsServer.Shutdown(shutdownCtx)
	}
	return err
}

// newMetricsServer exposes the app registry together with the Go runtime collectors. An empty
// address disables it.
func newMetricsServer(addr string, a *app.App) *http.Server {
	if addr == "" {
		return nil
	}
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{Registry: a.Registry}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := a.Ping(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}
