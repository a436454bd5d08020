package observability

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// Check reports whether a dependency is usable
type Check func(ctx context.Context) error

// HealthChecker manages health checks for both gRPC and HTTP and serves
// /metrics next to /healthz
type HealthChecker struct {
	grpcHealth *health.Server
	httpServer *http.Server
	gatherer   prometheus.Gatherer
	logger     *zap.Logger

	mu        sync.RWMutex
	ready     bool
	feedReady bool
	usesFeed  bool
	checks    map[string]Check
}

// NewHealthChecker creates a new health checker. gatherer may be nil to use
// the default registry.
func NewHealthChecker(gatherer prometheus.Gatherer, logger *zap.Logger) *HealthChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &HealthChecker{
		grpcHealth: health.NewServer(),
		gatherer:   gatherer,
		logger:     logger,
		ready:      true,
		checks:     make(map[string]Check),
	}
}

// RegisterGRPC registers the health service with the gRPC server
func (h *HealthChecker) RegisterGRPC(s *grpc.Server) {
	grpc_health_v1.RegisterHealthServer(s, h.grpcHealth)
	h.grpcHealth.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
}

// AddCheck registers a dependency check evaluated on every /healthz
func (h *HealthChecker) AddCheck(name string, check Check) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// SetFeedReady sets the snapshot feed readiness
func (h *HealthChecker) SetFeedReady(ready bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.feedReady = ready
	h.usesFeed = true

	status := grpc_health_v1.HealthCheckResponse_SERVING
	if !ready || !h.ready {
		status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	h.grpcHealth.SetServingStatus("", status)
}

// Handler serves /healthz and /metrics
func (h *HealthChecker) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealthz)
	mux.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	return mux
}

// StartHTTPServer starts the HTTP health check server
func (h *HealthChecker) StartHTTPServer(addr string) error {
	h.mu.Lock()
	if !h.ready {
		h.mu.Unlock()
		return http.ErrServerClosed
	}
	h.httpServer = &http.Server{
		Addr:              addr,
		Handler:           h.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	srv := h.httpServer
	h.mu.Unlock()

	h.logger.Info("starting HTTP health server", zap.String("addr", addr))
	return srv.ListenAndServe()
}

// Shutdown gracefully shuts down the health checker
func (h *HealthChecker) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.ready = false
	h.grpcHealth.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	srv := h.httpServer
	h.mu.Unlock()

	if srv != nil {
		return srv.Shutdown(ctx)
	}
	return nil
}

func (h *HealthChecker) handleHealthz(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	ready := h.ready
	feedReady := h.feedReady
	usesFeed := h.usesFeed
	checks := make(map[string]Check, len(h.checks))
	for name, c := range h.checks {
		checks[name] = c
	}
	h.mu.RUnlock()

	var failing []string
	if !ready {
		failing = append(failing, "shutting down")
	}
	if usesFeed && !feedReady {
		failing = append(failing, "feed: not ready")
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := checks[name](ctx); err != nil {
			failing = append(failing, fmt.Sprintf("%s: %v", name, err))
		}
	}

	if len(failing) == 0 {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	w.Write([]byte("NOT_READY\n" + strings.Join(failing, "\n")))
}
