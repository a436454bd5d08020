package restclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ismaiel54/trade-target-engine/internal/hubfeed"
	"github.com/ismaiel54/trade-target-engine/internal/target"
)

const targetsPath = "/api/v1/order-targets"

// Config configures the persistence client
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	// RPS caps outgoing requests per second; 0 disables pacing
	RPS   float64
	Burst int
}

// Client talks to the order-target REST API. Requests are never retried;
// a circuit breaker fails fast while the backend keeps returning 5xx.
type Client struct {
	http     *http.Client
	baseURL  string
	token    string
	pipeline failsafe.Executor[*http.Response]
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// New creates a client
func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	breaker := circuitbreaker.NewBuilder[*http.Response]().
		HandleIf(func(resp *http.Response, err error) bool {
			if err != nil {
				return !errors.Is(err, context.Canceled)
			}
			return resp.StatusCode >= 500
		}).
		WithFailureThresholdRatio(5, 10).
		WithDelay(10 * time.Second).
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			logger.Warn("Backend circuit breaker state changed",
				zap.String("from", e.OldState.String()),
				zap.String("to", e.NewState.String()))
		}).
		Build()

	c := &Client{
		http:     &http.Client{Timeout: cfg.Timeout},
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		token:    cfg.Token,
		pipeline: failsafe.With[*http.Response](breaker),
		logger:   logger,
	}
	if cfg.RPS > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = int(cfg.RPS) + 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}
	return c
}

// CreateTarget posts a new target. A success response without a usable id
// yields (nil, nil).
func (c *Client) CreateTarget(ctx context.Context, payload target.CreatePayload) (*target.Target, error) {
	body, err := c.send(ctx, http.MethodPost, targetsPath, payload)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}

	t, err := hubfeed.ParseTargetJSON(body)
	if err != nil {
		c.logger.Warn("Create response is not a target", zap.Error(err))
		return nil, nil
	}
	if target.IsTemp(t) {
		return nil, nil
	}
	return &t, nil
}

// UpdateTarget replaces the lot, stop loss and take profit of target id
func (c *Client) UpdateTarget(ctx context.Context, id string, payload target.UpdatePayload) error {
	payload.ID = id
	_, err := c.send(ctx, http.MethodPut, targetsPath+"/"+url.PathEscape(id), payload)
	return err
}

// DeleteTarget deletes target id
func (c *Client) DeleteTarget(ctx context.Context, id string) error {
	_, err := c.send(ctx, http.MethodDelete, targetsPath+"/"+url.PathEscape(id), nil)
	return err
}

func (c *Client) send(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	start := time.Now()
	resp, err := c.pipeline.GetWithExecution(func(exec failsafe.Execution[*http.Response]) (*http.Response, error) {
		return c.http.Do(req)
	})
	if err != nil {
		return nil, fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	c.logger.Debug("Backend request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)))

	if resp.StatusCode >= 400 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    extractMessage(body),
			Body:       body,
		}
	}
	return body, nil
}
