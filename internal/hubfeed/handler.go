package hubfeed

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/ismaiel54/trade-target-engine/internal/engine"
	"github.com/ismaiel54/trade-target-engine/internal/msg"
)

// Applier receives canonical snapshots. *engine.Engine implements it.
type Applier interface {
	ApplySnapshot(ctx context.Context, snap engine.Snapshot) error
}

// SnapshotRecorder counts payloads that could not be used
type SnapshotRecorder interface {
	Snapshot(result string)
}

// Handler feeds raw push payloads into the engine
type Handler struct {
	applier  Applier
	logger   *zap.Logger
	recorder SnapshotRecorder
}

// NewHandler creates a handler. recorder may be nil.
func NewHandler(applier Applier, recorder SnapshotRecorder, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{applier: applier, recorder: recorder, logger: logger}
}

// Handle parses payload and applies every order snapshot it carries.
// Malformed payloads are logged and dropped; only engine failures are returned.
func (h *Handler) Handle(ctx context.Context, payload []byte) (int, error) {
	snaps, err := ParseSnapshots(payload)
	if err != nil {
		h.logger.Warn("Dropping malformed snapshot payload",
			zap.Int("bytes", len(payload)),
			zap.Error(err))
		if h.recorder != nil {
			h.recorder.Snapshot("malformed")
		}
		return 0, nil
	}

	applied := 0
	for _, s := range snaps {
		if err := h.applier.ApplySnapshot(ctx, s.Update()); err != nil {
			if errors.Is(err, engine.ErrInvalidOrder) {
				continue
			}
			return applied, err
		}
		applied++
	}
	return applied, nil
}

// HandleRecord adapts Handle to msg.Consumer.Run
func (h *Handler) HandleRecord(ctx context.Context, rec msg.Record) error {
	n, err := h.Handle(ctx, rec.Value)
	if err != nil {
		return err
	}
	h.logger.Debug("Snapshot record applied",
		zap.String("topic", rec.Topic),
		zap.String("key", rec.Key),
		zap.Int64("offset", rec.Offset),
		zap.Int("orders", n))
	return nil
}
