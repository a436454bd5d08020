package engine

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/ismaiel54/trade-target-engine/internal/allocation"
	"github.com/ismaiel54/trade-target-engine/internal/target"
)

// OpenTargets registers order (or refreshes it) and merges seed into its
// list. The order's last error is cleared.
func (e *Engine) OpenTargets(ctx context.Context, order target.Order, seed []target.Target) (View, error) {
	order.ID = strings.TrimSpace(order.ID)
	if order.ID == "" {
		return View{}, ErrInvalidOrder
	}

	var v View
	err := e.do(ctx, func(b *book) {
		st := b.ensure(order.ID)
		st.order = order
		incoming := e.admit(st, seed)
		st.targets = target.Merge(st.targets, incoming)
		st.err = nil
		st.refreshDefault()
		e.changed(st)
		v = st.view()
	})
	if err != nil {
		return View{}, err
	}
	e.logger.Debug("Opened order targets",
		zap.String("order_id", order.ID),
		zap.Int("targets", len(v.Targets)))
	return v, nil
}

// CreateTarget validates draft, inserts a pending temp entry and persists it.
// A confirmed response replaces the temp entry; a response without an id
// leaves it pending for a later snapshot; a failure removes it again.
func (e *Engine) CreateTarget(ctx context.Context, orderID string, draft target.Draft) (target.Target, error) {
	var (
		temp    target.Target
		payload target.CreatePayload
		opErr   error
	)
	err := e.do(ctx, func(b *book) {
		st, ok := b.get(orderID)
		if !ok {
			opErr = ErrUnknownOrder
			return
		}
		if verr := allocation.ValidateCreate(st.order, st.effective(), draft); verr != nil {
			opErr = verr
			st.err = verr
			e.changed(st)
			return
		}

		temp = target.Target{
			ClientTempID: e.newTempID(),
			OrderID:      st.order.ID,
			AccountID:    st.order.AccountID,
			LotSize:      draft.LotSize,
			StopLoss:     draft.StopLoss,
			TakeProfit:   draft.TakeProfit,
			EntryPrice:   st.order.EntryPrice,
			Pending:      true,
		}
		payload = target.CreatePayload{
			OrderID:    temp.OrderID,
			AccountID:  temp.AccountID,
			TakeProfit: temp.TakeProfit,
			StopLoss:   temp.StopLoss,
			LotSize:    temp.LotSize,
			EntryPrice: temp.EntryPrice,
		}
		st.targets = append(st.targets, temp)
		e.changed(st)
	})
	if err != nil {
		return target.Target{}, err
	}
	if opErr != nil {
		e.rejected(OpCreate, orderID, opErr)
		return target.Target{}, opErr
	}

	created, perr := e.persister.CreateTarget(ctx, payload)

	var result target.Target
	err = e.do(context.WithoutCancel(ctx), func(b *book) {
		st, _ := b.get(orderID)
		idx := target.IndexOfKey(st.targets, temp.ClientTempID)

		if perr != nil {
			if idx >= 0 {
				st.removeAt(idx)
			}
			oe := newOperationError(orderID, OpCreate, perr)
			opErr = oe
			st.err = oe
			st.refreshDefault()
			e.changed(st)
			return
		}

		if created == nil || target.IsTemp(*created) {
			result = temp
			if idx >= 0 {
				result = st.targets[idx]
			}
		} else {
			confirmed := confirm(*created, temp)
			switch {
			case target.IndexOfID(st.targets, confirmed.ID) >= 0:
				// a snapshot delivered it first
				if idx >= 0 {
					st.removeAt(idx)
				}
			case idx >= 0:
				st.targets[idx] = confirmed
			default:
				st.targets = append(st.targets, confirmed)
			}
			result = confirmed
		}
		st.err = nil
		st.refreshDefault()
		e.changed(st)
	})
	if err != nil {
		return target.Target{}, err
	}
	if opErr != nil {
		e.failed(OpCreate, orderID, opErr)
		return target.Target{}, opErr
	}

	e.recordOp(OpCreate, resultFor(result))
	e.logger.Debug("Target created",
		zap.String("order_id", orderID),
		zap.String("target_id", result.ID),
		zap.String("client_temp_id", temp.ClientTempID),
		zap.Bool("pending", result.Pending))
	return result, nil
}

// UpdateTarget validates draft against every other target of the order and
// persists it. The entry is patched in the latest list once the server accepts.
func (e *Engine) UpdateTarget(ctx context.Context, orderID, key string, draft target.Draft) (target.Target, error) {
	var (
		id      string
		seq     uint64
		payload target.UpdatePayload
		opErr   error
	)
	err := e.do(ctx, func(b *book) {
		st, ok := b.get(orderID)
		if !ok {
			opErr = ErrUnknownOrder
			return
		}
		idx := target.IndexOfKey(st.targets, key)
		if idx < 0 {
			opErr = ErrTargetNotFound
			return
		}
		id = target.GetTargetID(st.targets[idx])
		if id == "" {
			opErr = ErrMissingID
			st.err = opErr
			e.changed(st)
			return
		}
		if verr := allocation.ValidateUpdate(st.order, st.effective(), key, draft); verr != nil {
			opErr = verr
			st.err = verr
			e.changed(st)
			return
		}
		seq = b.nextSeq()
		st.reserve(id, seq, draft.LotSize)
		payload = target.UpdatePayload{
			ID:         id,
			TakeProfit: draft.TakeProfit,
			StopLoss:   draft.StopLoss,
			LotSize:    draft.LotSize,
		}
	})
	if err != nil {
		return target.Target{}, err
	}
	if opErr != nil {
		e.rejected(OpUpdate, orderID, opErr)
		return target.Target{}, opErr
	}

	perr := e.persister.UpdateTarget(ctx, id, payload)

	var result target.Target
	err = e.do(context.WithoutCancel(ctx), func(b *book) {
		st, _ := b.get(orderID)
		st.release(id, seq)

		if perr != nil {
			oe := newOperationError(orderID, OpUpdate, perr)
			opErr = oe
			st.err = oe
			e.changed(st)
			return
		}

		if idx := target.IndexOfID(st.targets, id); idx >= 0 {
			t := &st.targets[idx]
			t.LotSize = draft.LotSize
			t.StopLoss = draft.StopLoss
			t.TakeProfit = draft.TakeProfit
			result = *t
		} else {
			result = target.Target{ID: id, OrderID: orderID, LotSize: draft.LotSize, StopLoss: draft.StopLoss, TakeProfit: draft.TakeProfit}
		}
		st.err = nil
		st.refreshDefault()
		e.changed(st)
	})
	if err != nil {
		return target.Target{}, err
	}
	if opErr != nil {
		e.failed(OpUpdate, orderID, opErr)
		return target.Target{}, opErr
	}

	e.recordOp(OpUpdate, "ok")
	e.logger.Debug("Target updated", zap.String("order_id", orderID), zap.String("target_id", id))
	return result, nil
}

// RemoveTarget deletes a confirmed target through the persistence layer.
// Temp entries must go through RemoveLocalTempTarget.
func (e *Engine) RemoveTarget(ctx context.Context, orderID, key string) error {
	var (
		id    string
		opErr error
	)
	err := e.do(ctx, func(b *book) {
		st, ok := b.get(orderID)
		if !ok {
			opErr = ErrUnknownOrder
			return
		}
		idx := target.IndexOfKey(st.targets, key)
		if idx < 0 {
			opErr = ErrTargetNotFound
			return
		}
		id = target.GetTargetID(st.targets[idx])
		if id == "" {
			opErr = ErrMissingID
			st.err = opErr
			e.changed(st)
		}
	})
	if err != nil {
		return err
	}
	if opErr != nil {
		e.rejected(OpDelete, orderID, opErr)
		return opErr
	}

	perr := e.persister.DeleteTarget(ctx, id)

	err = e.do(context.WithoutCancel(ctx), func(b *book) {
		st, _ := b.get(orderID)
		if perr != nil {
			oe := newOperationError(orderID, OpDelete, perr)
			opErr = oe
			st.err = oe
			e.changed(st)
			return
		}
		st.tombstones[id] = struct{}{}
		if idx := target.IndexOfID(st.targets, id); idx >= 0 {
			st.removeAt(idx)
		}
		st.err = nil
		st.refreshDefault()
		e.changed(st)
	})
	if err != nil {
		return err
	}
	if opErr != nil {
		e.failed(OpDelete, orderID, opErr)
		return opErr
	}

	e.recordOp(OpDelete, "ok")
	e.logger.Debug("Target deleted", zap.String("order_id", orderID), zap.String("target_id", id))
	return nil
}

// RemoveLocalTempTarget drops an unconfirmed entry from local state only
func (e *Engine) RemoveLocalTempTarget(ctx context.Context, orderID, key string) error {
	var opErr error
	err := e.do(ctx, func(b *book) {
		st, ok := b.get(orderID)
		if !ok {
			opErr = ErrUnknownOrder
			return
		}
		idx := target.IndexOfKey(st.targets, key)
		if idx < 0 {
			opErr = ErrTargetNotFound
			return
		}
		if !target.IsTemp(st.targets[idx]) {
			opErr = ErrNotTemp
			return
		}
		st.removeAt(idx)
		st.refreshDefault()
		e.changed(st)
	})
	if err != nil {
		return err
	}
	if opErr == nil {
		e.logger.Debug("Local temp target removed", zap.String("order_id", orderID), zap.String("key", key))
	}
	return opErr
}

// confirm builds the confirmed entry from a create response, filling fields
// the server left out from the temp entry it replaces.
func confirm(created, temp target.Target) target.Target {
	t := target.Normalize(created)
	if t.OrderID == "" {
		t.OrderID = temp.OrderID
	}
	if t.AccountID == "" {
		t.AccountID = temp.AccountID
	}
	if t.LotSize == 0 {
		t.LotSize = temp.LotSize
	}
	if t.StopLoss == 0 {
		t.StopLoss = temp.StopLoss
	}
	if t.TakeProfit == 0 {
		t.TakeProfit = temp.TakeProfit
	}
	if t.EntryPrice == 0 {
		t.EntryPrice = temp.EntryPrice
	}
	t.ClientTempID = ""
	t.Pending = false
	return t
}

func resultFor(t target.Target) string {
	if t.Pending {
		return "pending"
	}
	return "ok"
}

func (e *Engine) rejected(op, orderID string, err error) {
	e.recordOp(op, "rejected")
	var verr *allocation.ValidationError
	if errors.As(err, &verr) {
		e.logger.Debug("Target validation failed",
			zap.String("op", op),
			zap.String("order_id", orderID),
			zap.String("field", verr.Field),
			zap.Error(err))
		return
	}
	e.logger.Debug("Target operation refused",
		zap.String("op", op),
		zap.String("order_id", orderID),
		zap.Error(err))
}

func (e *Engine) failed(op, orderID string, err error) {
	e.recordOp(op, "error")
	e.logger.Warn("Target persist failed",
		zap.String("op", op),
		zap.String("order_id", orderID),
		zap.Error(err))
}
