package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/ismaiel54/trade-target-engine/internal/api"
	"github.com/ismaiel54/trade-target-engine/internal/config"
	"github.com/ismaiel54/trade-target-engine/internal/logging"
	"github.com/ismaiel54/trade-target-engine/internal/msg"
	"github.com/ismaiel54/trade-target-engine/internal/observability"
	"github.com/ismaiel54/trade-target-engine/internal/targetstore"
)

func main() {
	cfg, err := config.LoadConfig("target-server")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(cfg.ServiceName, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("target-server failed", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("target-server service stopped")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	logger.Info("starting target-server service",
		zap.Int("grpc_port", cfg.GRPCPort),
		zap.Int("http_port", cfg.HTTPPort),
		zap.Int("api_port", cfg.APIPort),
		zap.String("kafka_brokers", cfg.KafkaBrokers),
		zap.String("data_dir", cfg.DataDir),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPath := filepath.Join(cfg.DataDir, "targets.db")
	store, err := targetstore.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open target store: %w", err)
	}
	defer store.Close()
	logger.Info("target store opened", zap.String("path", dbPath))

	producer, err := msg.NewProducer(cfg.Kafka(), logger)
	if err != nil {
		return fmt.Errorf("failed to create kafka producer: %w", err)
	}
	defer producer.Close()

	healthChecker := observability.NewHealthChecker(nil, logger)
	healthChecker.AddCheck("store", store.Ping)
	healthChecker.AddCheck("kafka", producer.Ping)

	g, gctx := errgroup.WithContext(ctx)

	publisher := targetstore.NewPublisher(store, producer, logger)
	g.Go(func() error { return publisher.Run(gctx) })

	apiServer := &http.Server{
		Addr:              cfg.APIAddr(),
		Handler:           api.NewBackendServer(store, cfg.BackendToken, logger).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	g.Go(func() error {
		logger.Info("backend API listening", zap.String("addr", cfg.APIAddr()))
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("backend API: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := healthChecker.StartHTTPServer(cfg.HTTPAddr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})

	grpcServer := grpc.NewServer()
	healthChecker.RegisterGRPC(grpcServer)
	grpcListener, err := net.Listen("tcp", cfg.GRPCAddr())
	if err != nil {
		return fmt.Errorf("failed to listen on gRPC port: %w", err)
	}
	g.Go(func() error {
		logger.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr()))
		return grpcServer.Serve(grpcListener)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("error shutting down backend API", zap.Error(err))
		}
		if err := healthChecker.Shutdown(shutdownCtx); err != nil {
			logger.Error("error shutting down health checker", zap.Error(err))
		}
		grpcServer.GracefulStop()
		return nil
	})

	return g.Wait()
}
