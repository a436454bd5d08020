package chaos

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ismaiel54/trade-target-engine/internal/engine"
	"github.com/ismaiel54/trade-target-engine/internal/target"
)

// ErrDropped is returned in place of a persister call that chaos dropped
var ErrDropped = errors.New("chaos: request dropped")

// Chaos provides deterministic failure injection
type Chaos struct {
	cfg    Config
	logger *zap.Logger
	rng    *rand.Rand
	mu     sync.Mutex
	start  time.Time
}

// New creates a new Chaos instance. Profile settings override DropPct and
// the delay range.
func New(cfg Config, logger *zap.Logger) (*Chaos, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Profile != "" {
		dropPct, delayMin, delayMax, err := ParseProfile(cfg.Profile)
		if err != nil {
			return nil, fmt.Errorf("failed to parse chaos profile: %w", err)
		}
		if dropPct > 0 {
			cfg.DropPct = dropPct
		}
		if delayMin > 0 || delayMax > 0 {
			cfg.DelayMsMin = delayMin
			cfg.DelayMsMax = delayMax
		}
	}
	if cfg.DelayMsMax < cfg.DelayMsMin {
		cfg.DelayMsMax = cfg.DelayMsMin
	}

	return &Chaos{
		cfg:    cfg,
		logger: logger,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		start:  time.Now(),
	}, nil
}

// EnabledFor checks if chaos applies to calls on orderID
func (c *Chaos) EnabledFor(orderID string) bool {
	if !c.cfg.Enabled {
		return false
	}
	if c.cfg.WindowMs > 0 && time.Since(c.start).Milliseconds() > int64(c.cfg.WindowMs) {
		return false
	}
	// calls whose order is unknown (update, delete) are in scope
	if c.cfg.TargetOrderID != "" && orderID != "" && c.cfg.TargetOrderID != orderID {
		return false
	}
	return true
}

// MaybeDelay injects a random delay if chaos is enabled
func (c *Chaos) MaybeDelay(ctx context.Context, orderID, op string) error {
	if !c.EnabledFor(orderID) || c.cfg.DelayMsMax == 0 {
		return nil
	}

	c.mu.Lock()
	delayMs := c.cfg.DelayMsMin
	if c.cfg.DelayMsMax > c.cfg.DelayMsMin {
		delayMs += c.rng.Intn(c.cfg.DelayMsMax - c.cfg.DelayMsMin + 1)
	}
	c.mu.Unlock()

	if delayMs <= 0 {
		return nil
	}
	c.logger.Info("chaos delay injected",
		zap.String("order_id", orderID),
		zap.String("op", op),
		zap.Int("delay_ms", delayMs),
	)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Duration(delayMs) * time.Millisecond):
		return nil
	}
}

// MaybeDrop returns true if the call should be dropped
func (c *Chaos) MaybeDrop(orderID, op string) bool {
	if !c.EnabledFor(orderID) || c.cfg.DropPct == 0 {
		return false
	}

	c.mu.Lock()
	drop := c.rng.Intn(100) < c.cfg.DropPct
	c.mu.Unlock()

	if drop {
		c.logger.Info("chaos drop injected",
			zap.String("order_id", orderID),
			zap.String("op", op),
		)
	}
	return drop
}

// Persister wraps an engine persister with chaos
type Persister struct {
	next  engine.Persister
	chaos *Chaos
}

// Wrap returns next unchanged when chaos is disabled
func Wrap(next engine.Persister, c *Chaos) engine.Persister {
	if c == nil || !c.cfg.Enabled {
		return next
	}
	return &Persister{next: next, chaos: c}
}

func (p *Persister) inject(ctx context.Context, orderID, op string) error {
	if err := p.chaos.MaybeDelay(ctx, orderID, op); err != nil {
		return err
	}
	if p.chaos.MaybeDrop(orderID, op) {
		return fmt.Errorf("%s: %w", op, ErrDropped)
	}
	return nil
}

func (p *Persister) CreateTarget(ctx context.Context, payload target.CreatePayload) (*target.Target, error) {
	if err := p.inject(ctx, payload.OrderID, engine.OpCreate); err != nil {
		return nil, err
	}
	return p.next.CreateTarget(ctx, payload)
}

func (p *Persister) UpdateTarget(ctx context.Context, id string, payload target.UpdatePayload) error {
	if err := p.inject(ctx, "", engine.OpUpdate); err != nil {
		return err
	}
	return p.next.UpdateTarget(ctx, id, payload)
}

func (p *Persister) DeleteTarget(ctx context.Context, id string) error {
	if err := p.inject(ctx, "", engine.OpDelete); err != nil {
		return err
	}
	return p.next.DeleteTarget(ctx, id)
}
