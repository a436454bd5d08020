package engine

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/ismaiel54/trade-target-engine/internal/target"
)

// Snapshot is one order's state as delivered by the push channel.
// Order is nil when the payload carried no order fields; Targets is nil when
// it carried no target list (an empty non-nil list is an empty push).
type Snapshot struct {
	OrderID string
	Order   *target.Order
	Targets []target.Target
}

// ApplySnapshot merges a pushed snapshot into the order's list. Pushes may be
// partial, duplicated or out of order; they never raise user-visible errors.
func (e *Engine) ApplySnapshot(ctx context.Context, snap Snapshot) error {
	orderID := strings.TrimSpace(snap.OrderID)
	if orderID == "" && snap.Order != nil {
		orderID = strings.TrimSpace(snap.Order.ID)
	}
	if orderID == "" {
		e.recordSnapshot("ignored")
		return ErrInvalidOrder
	}

	var stats target.MergeStats
	var size int
	err := e.do(ctx, func(b *book) {
		st := b.ensure(orderID)
		if snap.Order != nil {
			st.refreshOrder(*snap.Order)
		}
		if snap.Targets != nil {
			incoming := e.admit(st, snap.Targets)
			st.targets, stats = target.MergeWithStats(st.targets, incoming)
		}
		size = len(st.targets)
		st.refreshDefault()
		e.changed(st)
	})
	if err != nil {
		return err
	}

	e.recordSnapshot("applied")
	if e.recorder != nil && stats.Superseded > 0 {
		e.recorder.TempSuperseded(stats.Superseded)
	}
	e.logger.Debug("Snapshot merged",
		zap.String("order_id", orderID),
		zap.Int("incoming", len(snap.Targets)),
		zap.Int("targets", size),
		zap.Int("superseded", stats.Superseded),
		zap.Int("retained", stats.Retained),
		zap.Int("unconfirmed", stats.Unconfirmed))
	return nil
}

// admit filters pushed entries before they are merged. Entries flagged
// deleted remove their local copy and are tombstoned; tombstoned ids are
// dropped so a stale push cannot resurrect a deleted target. Repeated ids
// keep their first occurrence.
func (e *Engine) admit(st *orderState, incoming []target.Target) []target.Target {
	out := make([]target.Target, 0, len(incoming))
	seen := make(map[string]struct{}, len(incoming))
	for _, raw := range incoming {
		t := target.Normalize(raw)
		if t.OrderID == "" {
			t.OrderID = st.order.ID
		}
		if t.ID != "" {
			if t.IsDeleted {
				st.tombstones[t.ID] = struct{}{}
				if idx := target.IndexOfID(st.targets, t.ID); idx >= 0 {
					st.removeAt(idx)
				}
				continue
			}
			if _, gone := st.tombstones[t.ID]; gone {
				continue
			}
			if _, dup := seen[t.ID]; dup {
				continue
			}
			seen[t.ID] = struct{}{}
		} else if t.IsDeleted {
			continue
		}
		t.Pending = false
		out = append(out, t)
	}
	return out
}

func (e *Engine) recordSnapshot(result string) {
	if e.recorder != nil {
		e.recorder.Snapshot(result)
	}
}
