package hubfeed

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSConfig configures the push channel subscriber
type WSConfig struct {
	URL           string
	Token         string
	Subscribe     any // sent as JSON after every connect; nil sends nothing
	ReconnectWait time.Duration
	PingInterval  time.Duration
	PingWait      time.Duration
	PongWait      time.Duration
}

func (c *WSConfig) defaults() {
	if c.ReconnectWait <= 0 {
		c.ReconnectWait = 5 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.PingWait <= 0 {
		c.PingWait = 10 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
}

// WSClient subscribes to the hub over WebSocket and hands every text frame
// to the Handler. It reconnects until its context is cancelled.
type WSClient struct {
	cfg     WSConfig
	handler *Handler
	logger  *zap.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected atomic.Bool
	frames    atomic.Int64
}

// NewWSClient creates a subscriber
func NewWSClient(cfg WSConfig, handler *Handler, logger *zap.Logger) *WSClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.defaults()
	return &WSClient{cfg: cfg, handler: handler, logger: logger}
}

// Connected reports whether a connection is currently established
func (c *WSClient) Connected() bool {
	return c.connected.Load()
}

// Frames returns the number of frames received so far
func (c *WSClient) Frames() int64 {
	return c.frames.Load()
}

// Run connects, reads and reconnects until ctx is done
func (c *WSClient) Run(ctx context.Context) error {
	for {
		if err := c.connect(ctx); err != nil {
			c.logger.Error("Hub connect failed", zap.String("url", c.cfg.URL), zap.Error(err))
		} else {
			c.logger.Info("Hub connected", zap.String("url", c.cfg.URL))
			c.session(ctx)
			c.logger.Warn("Hub connection lost", zap.String("url", c.cfg.URL))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.cfg.ReconnectWait):
		}
	}
}

func (c *WSClient) connect(ctx context.Context) error {
	header := http.Header{}
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return fmt.Errorf("failed to dial hub: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	if c.cfg.Subscribe != nil {
		if err := conn.WriteJSON(c.cfg.Subscribe); err != nil {
			conn.Close()
			return fmt.Errorf("failed to send subscribe message: %w", err)
		}
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.connected.Store(true)
	return nil
}

// session runs the heartbeat and the read loop for one connection
func (c *WSClient) session(ctx context.Context) {
	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.heartbeat(sessCtx)
	}()

	// unblock ReadMessage when the caller goes away
	go func() {
		defer wg.Done()
		<-sessCtx.Done()
		c.closeConn()
	}()

	c.readLoop(sessCtx)
	cancel()
	wg.Wait()
}

func (c *WSClient) heartbeat(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			conn := c.conn
			c.mu.Unlock()
			if conn == nil {
				return
			}
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.PingWait)); err != nil {
				c.closeConn()
				return
			}
		}
	}
}

func (c *WSClient) readLoop(ctx context.Context) {
	defer c.closeConn()

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Debug("Hub read failed", zap.Error(err))
			}
			return
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}
		c.frames.Add(1)
		if _, err := c.handler.Handle(ctx, data); err != nil {
			c.logger.Warn("Failed to apply hub frame", zap.Error(err))
		}
	}
}

func (c *WSClient) closeConn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connected.Store(false)
}
