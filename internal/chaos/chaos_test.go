package chaos

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ismaiel54/trade-target-engine/internal/engine"
	"github.com/ismaiel54/trade-target-engine/internal/target"
)

type countingPersister struct {
	creates, updates, deletes int
}

func (c *countingPersister) CreateTarget(context.Context, target.CreatePayload) (*target.Target, error) {
	c.creates++
	return &target.Target{ID: "1"}, nil
}

func (c *countingPersister) UpdateTarget(context.Context, string, target.UpdatePayload) error {
	c.updates++
	return nil
}

func (c *countingPersister) DeleteTarget(context.Context, string) error {
	c.deletes++
	return nil
}

func TestParseProfile(t *testing.T) {
	tests := []struct {
		profile                 string
		drop, delayMin, delayMax int
		wantErr                 bool
	}{
		{profile: "", drop: 0},
		{profile: "drop-pct=30,delay=50-250", drop: 30, delayMin: 50, delayMax: 250},
		{profile: " delay=100 ", delayMin: 100, delayMax: 100},
		{profile: "drop-pct=101", wantErr: true},
		{profile: "delay=300-200", wantErr: true},
		{profile: "latency=5", wantErr: true},
	}

	for _, tt := range tests {
		drop, lo, hi, err := ParseProfile(tt.profile)
		if tt.wantErr {
			assert.Error(t, err, tt.profile)
			continue
		}
		require.NoError(t, err, tt.profile)
		assert.Equal(t, tt.drop, drop, tt.profile)
		assert.Equal(t, tt.delayMin, lo, tt.profile)
		assert.Equal(t, tt.delayMax, hi, tt.profile)
	}
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("CHAOS_ENABLED", "true")
	t.Setenv("CHAOS_TARGET_ORDER_ID", "1001")
	t.Setenv("CHAOS_DROP_PCT", "40")
	t.Setenv("CHAOS_SEED", "7")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "1001", cfg.TargetOrderID)
	assert.Equal(t, 40, cfg.DropPct)
	assert.Equal(t, int64(7), cfg.Seed)
}

func TestWrap_DisabledIsPassThrough(t *testing.T) {
	next := &countingPersister{}
	c, err := New(Config{}, nil)
	require.NoError(t, err)
	assert.Same(t, engine.Persister(next), Wrap(next, c))
}

func TestPersister_DropsDeterministically(t *testing.T) {
	run := func() []bool {
		c, err := New(Config{Enabled: true, Profile: "drop-pct=50", Seed: 42}, nil)
		require.NoError(t, err)
		p := Wrap(&countingPersister{}, c)

		var dropped []bool
		for i := 0; i < 20; i++ {
			_, err := p.CreateTarget(context.Background(), target.CreatePayload{OrderID: "1001"})
			dropped = append(dropped, errors.Is(err, ErrDropped))
		}
		return dropped
	}

	first := run()
	assert.Equal(t, first, run())
	assert.Contains(t, first, true)
	assert.Contains(t, first, false)
}

func TestPersister_ScopedToOrder(t *testing.T) {
	next := &countingPersister{}
	c, err := New(Config{Enabled: true, DropPct: 100, TargetOrderID: "1001"}, nil)
	require.NoError(t, err)
	p := Wrap(next, c)
	ctx := context.Background()

	_, err = p.CreateTarget(ctx, target.CreatePayload{OrderID: "2002"})
	assert.NoError(t, err)
	_, err = p.CreateTarget(ctx, target.CreatePayload{OrderID: "1001"})
	assert.ErrorIs(t, err, ErrDropped)
	assert.ErrorIs(t, p.DeleteTarget(ctx, "5"), ErrDropped)
	assert.Equal(t, 1, next.creates)
	assert.Zero(t, next.deletes)
}

func TestPersister_WindowExpires(t *testing.T) {
	next := &countingPersister{}
	c, err := New(Config{Enabled: true, DropPct: 100, WindowMs: 20}, nil)
	require.NoError(t, err)
	p := Wrap(next, c)

	assert.ErrorIs(t, p.UpdateTarget(context.Background(), "1", target.UpdatePayload{}), ErrDropped)
	time.Sleep(40 * time.Millisecond)
	assert.NoError(t, p.UpdateTarget(context.Background(), "1", target.UpdatePayload{}))
	assert.Equal(t, 1, next.updates)
}

func TestMaybeDelay_HonorsContext(t *testing.T) {
	c, err := New(Config{Enabled: true, DelayMsMin: 5000, DelayMsMax: 5000}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.MaybeDelay(ctx, "1", "create"), context.DeadlineExceeded)
}

func TestDroppedCallSurfacesAsOperationError(t *testing.T) {
	c, err := New(Config{Enabled: true, DropPct: 100}, nil)
	require.NoError(t, err)
	e := engine.New(Wrap(&countingPersister{}, c), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = e.Run(ctx) }()

	_, err = e.OpenTargets(ctx, target.Order{ID: "1001", LotSize: 1}, nil)
	require.NoError(t, err)

	_, err = e.CreateTarget(ctx, "1001", target.Draft{LotSize: 0.5})
	var oe *engine.OperationError
	require.True(t, errors.As(err, &oe))
	assert.Equal(t, engine.FallbackSaveMessage, oe.Message)
	assert.ErrorIs(t, err, ErrDropped)

	v, err := e.View(ctx, "1001")
	require.NoError(t, err)
	assert.Empty(t, v.Targets)
}
