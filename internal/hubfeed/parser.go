package hubfeed

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ismaiel54/trade-target-engine/internal/engine"
	"github.com/ismaiel54/trade-target-engine/internal/numeric"
	"github.com/ismaiel54/trade-target-engine/internal/target"
)

// maxUnwrapDepth bounds how many {"data": ...} envelopes are peeled off
const maxUnwrapDepth = 4

var (
	ErrUnexpectedShape = errors.New("payload is neither an object nor an array")
	ErrNoOrderID       = errors.New("snapshot has no order id")
)

// Field name aliases seen from the hub and from legacy backends. The first
// present, non-null alias wins.
var (
	targetListFields = []string{"targets", "orderTargets", "order_targets", "childOrders", "child_orders", "children"}
	targetIDFields   = []string{"id", "targetId", "target_id", "_id", "orderTargetId"}
	orderIDFields    = []string{"orderId", "order_id", "id", "ticket"}
	parentIDFields   = []string{"orderId", "order_id", "parentOrderId", "parent_order_id"}
	accountIDFields  = []string{"accountId", "account_id"}
	sideFields       = []string{"side", "type", "orderType"}
	lotFields        = []string{"lotSize", "lot_size", "volume", "quantity"}
	minLotFields     = []string{"minLotSize", "min_lot_size", "minLot"}
	lotStepFields    = []string{"lotStepSize", "lot_step_size", "lotStep", "stepSize"}
	entryPriceFields = []string{"entryPrice", "entry_price", "openPrice", "price"}
	stopLossFields   = []string{"stopLoss", "stop_loss", "sl"}
	takeProfitFields = []string{"takeProfit", "take_profit", "tp"}
	tempIDFields     = []string{"clientTempId", "client_temp_id"}
	closedFields     = []string{"isClosed", "is_closed", "closed"}
	deletedFields    = []string{"isDeleted", "is_deleted", "deleted"}
)

// Snapshot is one order as delivered by the push channel, in canonical shape
type Snapshot struct {
	Order          target.Order
	HasOrderFields bool
	Targets        []target.Target
	HasTargets     bool
}

// Update converts s into the engine's snapshot message
func (s Snapshot) Update() engine.Snapshot {
	u := engine.Snapshot{OrderID: s.Order.ID}
	if s.HasOrderFields {
		o := s.Order
		u.Order = &o
	}
	if s.HasTargets {
		u.Targets = s.Targets
		if u.Targets == nil {
			u.Targets = []target.Target{}
		}
	}
	return u
}

// ParseSnapshots decodes a push payload: one order object, an array of them,
// or either wrapped in {"data": ...}. Elements without an order id are
// skipped; ErrNoOrderID is returned when nothing usable remains.
func ParseSnapshots(data []byte) ([]Snapshot, error) {
	v, err := decode(data)
	if err != nil {
		return nil, err
	}
	v = unwrap(v)

	var items []any
	switch x := v.(type) {
	case []any:
		items = x
	case map[string]any:
		items = []any{x}
	default:
		return nil, ErrUnexpectedShape
	}

	out := make([]Snapshot, 0, len(items))
	for _, item := range items {
		m, ok := unwrap(item).(map[string]any)
		if !ok {
			continue
		}
		s := parseSnapshot(m)
		if s.Order.ID == "" {
			continue
		}
		out = append(out, s)
	}
	if len(out) == 0 && len(items) > 0 {
		return nil, ErrNoOrderID
	}
	return out, nil
}

// ParseTargetJSON decodes a single target-shaped record, e.g. a create
// response, optionally wrapped in {"data": ...}.
func ParseTargetJSON(data []byte) (target.Target, error) {
	v, err := decode(data)
	if err != nil {
		return target.Target{}, err
	}
	m, ok := unwrap(v).(map[string]any)
	if !ok {
		return target.Target{}, ErrUnexpectedShape
	}
	return ParseTarget(m), nil
}

// ParseTarget maps a loosely shaped record onto the canonical Target
func ParseTarget(m map[string]any) target.Target {
	t := target.Target{
		ID:           text(first(m, targetIDFields...)),
		ClientTempID: text(first(m, tempIDFields...)),
		OrderID:      text(first(m, parentIDFields...)),
		AccountID:    text(first(m, accountIDFields...)),
		LotSize:      numeric.ToNumberOrZero(first(m, lotFields...)),
		StopLoss:     numeric.ToNumberOrZero(first(m, stopLossFields...)),
		TakeProfit:   numeric.ToNumberOrZero(first(m, takeProfitFields...)),
		EntryPrice:   numeric.ToNumberOrZero(first(m, entryPriceFields...)),
		IsClosed:     flag(first(m, closedFields...)),
		IsDeleted:    flag(first(m, deletedFields...)),
	}
	return target.Normalize(t)
}

func parseSnapshot(m map[string]any) Snapshot {
	orderMap := m
	if nested, ok := m["order"].(map[string]any); ok {
		orderMap = nested
	}

	var s Snapshot
	s.Order, s.HasOrderFields = parseOrder(orderMap)
	if s.Order.ID == "" {
		s.Order.ID = text(first(m, orderIDFields...))
	}

	list, ok := first(m, targetListFields...).([]any)
	if !ok && orderMap != nil {
		list, ok = first(orderMap, targetListFields...).([]any)
	}
	if ok {
		s.HasTargets = true
		s.Targets = make([]target.Target, 0, len(list))
		for _, raw := range list {
			tm, isMap := unwrap(raw).(map[string]any)
			if !isMap {
				continue
			}
			t := ParseTarget(tm)
			if t.OrderID == "" {
				t.OrderID = s.Order.ID
			}
			if t.AccountID == "" {
				t.AccountID = s.Order.AccountID
			}
			s.Targets = append(s.Targets, t)
		}
	}
	return s
}

// parseOrder reports whether any field beyond the id was present
func parseOrder(m map[string]any) (target.Order, bool) {
	o := target.Order{
		ID:          text(first(m, orderIDFields...)),
		AccountID:   text(first(m, accountIDFields...)),
		Side:        side(first(m, sideFields...)),
		LotSize:     numeric.ToNumberOrZero(first(m, lotFields...)),
		MinLotSize:  numeric.ToNumberOrZero(first(m, minLotFields...)),
		LotStepSize: numeric.ToNumberOrZero(first(m, lotStepFields...)),
		EntryPrice:  numeric.ToNumberOrZero(first(m, entryPriceFields...)),
	}
	has := o.AccountID != "" || o.Side != "" || o.LotSize > 0 || o.MinLotSize > 0 ||
		o.LotStepSize > 0 || o.EntryPrice > 0
	return o, has
}

func decode(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	return v, nil
}

// unwrap peels {"data": ...} envelopes that carry nothing else of interest
func unwrap(v any) any {
	for i := 0; i < maxUnwrapDepth; i++ {
		m, ok := v.(map[string]any)
		if !ok {
			return v
		}
		inner, ok := m["data"]
		if !ok || inner == nil {
			return v
		}
		if first(m, orderIDFields...) != nil || first(m, targetListFields...) != nil {
			return v
		}
		v = inner
	}
	return v
}

func first(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func text(v any) string {
	switch x := v.(type) {
	case string:
		s := strings.TrimSpace(x)
		if s == "null" || s == "undefined" {
			return ""
		}
		return s
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case nil, bool, map[string]any, []any:
		return ""
	default:
		return fmt.Sprint(x)
	}
}

func flag(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(x))
		return err == nil && b
	case json.Number:
		return numeric.ToNumberOrZero(x) != 0
	default:
		return false
	}
}

func side(v any) target.Side {
	switch strings.ToLower(text(v)) {
	case "buy", "long", "0":
		return target.Buy
	case "sell", "short", "1":
		return target.Sell
	default:
		return ""
	}
}
