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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/ismaiel54/trade-target-engine/internal/api"
	"github.com/ismaiel54/trade-target-engine/internal/chaos"
	"github.com/ismaiel54/trade-target-engine/internal/config"
	"github.com/ismaiel54/trade-target-engine/internal/engine"
	"github.com/ismaiel54/trade-target-engine/internal/hubfeed"
	"github.com/ismaiel54/trade-target-engine/internal/logging"
	"github.com/ismaiel54/trade-target-engine/internal/msg"
	"github.com/ismaiel54/trade-target-engine/internal/observability"
	"github.com/ismaiel54/trade-target-engine/internal/restclient"
	"github.com/ismaiel54/trade-target-engine/internal/targetstore"
)

func main() {
	cfg, err := config.LoadConfig("target-engine")
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
		logger.Error("target-engine failed", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("target-engine service stopped")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	logger.Info("starting target-engine service",
		zap.Int("grpc_port", cfg.GRPCPort),
		zap.Int("http_port", cfg.HTTPPort),
		zap.Int("api_port", cfg.APIPort),
		zap.String("kafka_brokers", cfg.KafkaBrokers),
		zap.String("persist_mode", cfg.PersistMode),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)
	healthChecker := observability.NewHealthChecker(registry, logger)

	g, gctx := errgroup.WithContext(ctx)

	// Persistence layer
	var persister engine.Persister
	switch cfg.PersistMode {
	case config.PersistSQLite:
		dbPath := filepath.Join(cfg.DataDir, "targets.db")
		store, err := targetstore.Open(dbPath)
		if err != nil {
			return fmt.Errorf("failed to open target store: %w", err)
		}
		defer store.Close()
		logger.Info("target store opened", zap.String("path", dbPath))
		healthChecker.AddCheck("store", store.Ping)
		persister = store

		producer, err := msg.NewProducer(cfg.Kafka(), logger)
		if err != nil {
			return fmt.Errorf("failed to create kafka producer: %w", err)
		}
		defer producer.Close()
		publisher := targetstore.NewPublisher(store, producer, logger)
		g.Go(func() error { return publisher.Run(gctx) })
	default:
		persister = restclient.New(restclient.Config{
			BaseURL: cfg.BackendURL,
			Token:   cfg.BackendToken,
			Timeout: cfg.BackendTimeout,
			RPS:     cfg.BackendRPS,
		}, logger)
	}

	chaosCfg, err := chaos.LoadConfig()
	if err != nil {
		return err
	}
	if chaosCfg.Enabled {
		c, err := chaos.New(*chaosCfg, logger)
		if err != nil {
			return err
		}
		logger.Warn("chaos enabled for persistence calls",
			zap.String("profile", chaosCfg.Profile),
			zap.String("target_order_id", chaosCfg.TargetOrderID),
		)
		persister = chaos.Wrap(persister, c)
	}

	eng := engine.New(persister, logger, engine.WithRecorder(metrics))
	g.Go(func() error { return eng.Run(gctx) })

	// Snapshot feed
	handler := hubfeed.NewHandler(eng, metrics, logger)

	consumer, err := msg.NewConsumer(cfg.Kafka(), cfg.ConsumerGroup, []string{cfg.SnapshotTopic}, logger)
	if err != nil {
		return fmt.Errorf("failed to create kafka consumer: %w", err)
	}
	defer consumer.Close()
	g.Go(func() error { return consumer.Run(gctx, handler.HandleRecord) })

	g.Go(func() error {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			healthChecker.SetFeedReady(consumer.IsRunning())
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})

	if cfg.HubWSURL != "" {
		ws := hubfeed.NewWSClient(hubfeed.WSConfig{
			URL:       cfg.HubWSURL,
			Token:     cfg.BackendToken,
			Subscribe: map[string]string{"action": "subscribe", "channel": "orders"},
		}, handler, logger)
		healthChecker.AddCheck("hub_ws", func(context.Context) error {
			if !ws.Connected() {
				return errors.New("not connected")
			}
			return nil
		})
		g.Go(func() error { return ws.Run(gctx) })
	}

	// Servers
	apiServer := &http.Server{
		Addr:              cfg.APIAddr(),
		Handler:           api.NewEngineServer(eng, logger).Handler(cfg.CORSOrigins),
		ReadHeaderTimeout: 5 * time.Second,
	}
	g.Go(func() error {
		logger.Info("engine API listening", zap.String("addr", cfg.APIAddr()))
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("engine API: %w", err)
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

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("error shutting down engine API", zap.Error(err))
		}
		if err := healthChecker.Shutdown(shutdownCtx); err != nil {
			logger.Error("error shutting down health checker", zap.Error(err))
		}
		grpcServer.GracefulStop()
		return nil
	})

	return g.Wait()
}
