package main

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"strconv"

	"github.com/google/uuid"

	"github.com/ismaiel54/trade-target-engine/internal/msg"
)

// event is one encoded push payload keyed by order id
type event struct {
	OrderID string
	Payload []byte
	Dup     bool
}

type genTarget struct {
	id      int
	cents   int
	sl, tp  float64
	deleted bool
}

type genOrder struct {
	id         string
	account    string
	side       string
	lotCents   int
	entryPrice float64
}

// generator builds a deterministic snapshot stream per order: a full push,
// a delta, a delete, a stale push of the deleted target and a final target
// that takes exactly the freed lot. Replaying it never exceeds an order's
// lot unless a deleted target is resurrected.
type generator struct {
	rng       *rand.Rand
	seed      int64
	dupPct    int
	legacyPct int
	nextID    int
}

func newGenerator(seed int64, dupPct, legacyPct int) *generator {
	return &generator{rng: rand.New(rand.NewSource(seed)), seed: seed, dupPct: dupPct, legacyPct: legacyPct}
}

func (g *generator) orders(count int) ([]event, error) {
	var out []event
	for i := 0; i < count; i++ {
		events, err := g.order(i)
		if err != nil {
			return nil, err
		}
		out = append(out, events...)
	}
	return out, nil
}

func (g *generator) order(i int) ([]event, error) {
	o := genOrder{
		id:         fmt.Sprintf("ord-%d-%d", g.seed, i),
		account:    fmt.Sprintf("acc-%d", g.rng.Intn(5)),
		side:       []string{"BUY", "SELL"}[g.rng.Intn(2)],
		lotCents:   []int{100, 200, 500}[g.rng.Intn(3)],
		entryPrice: 1.1 + float64(g.rng.Intn(1000))/10000,
	}

	quarter := o.lotCents / 4
	t1, t2, t3 := g.target(o, quarter), g.target(o, quarter), g.target(o, quarter)

	var steps [][]genTarget
	steps = append(steps, []genTarget{t1, t2, t3})

	t2.cents = o.lotCents / 8
	steps = append(steps, []genTarget{t2})

	gone := t1
	gone.deleted = true
	steps = append(steps, []genTarget{gone})

	// stale push from before the delete
	steps = append(steps, []genTarget{t1})

	t4 := g.target(o, o.lotCents-t2.cents-t3.cents)
	steps = append(steps, []genTarget{t4})

	var out []event
	for _, targets := range steps {
		payload, err := g.encode(o, targets)
		if err != nil {
			return nil, err
		}
		out = append(out, event{OrderID: o.id, Payload: payload})
		if g.rng.Intn(100) < g.dupPct {
			out = append(out, event{OrderID: o.id, Payload: payload, Dup: true})
		}
	}
	return out, nil
}

func (g *generator) target(o genOrder, cents int) genTarget {
	g.nextID++
	offset := 0.001 * float64(1+g.rng.Intn(50))
	t := genTarget{id: g.nextID, cents: cents}
	if o.side == "BUY" {
		t.sl, t.tp = o.entryPrice-offset, o.entryPrice+offset
	} else {
		t.sl, t.tp = o.entryPrice+offset, o.entryPrice-offset
	}
	return t
}

func lot(cents int) float64 {
	return float64(cents) / 100
}

func (g *generator) encode(o genOrder, targets []genTarget) ([]byte, error) {
	if g.rng.Intn(100) < g.legacyPct {
		return json.Marshal(g.legacy(o, targets))
	}

	snap := msg.OrderSnapshotMsg{
		EventID:     uuid.NewString(),
		OrderID:     o.id,
		AccountID:   o.account,
		Side:        o.side,
		LotSize:     lot(o.lotCents),
		MinLotSize:  0.01,
		LotStepSize: 0.01,
		EntryPrice:  o.entryPrice,
		Targets:     make([]msg.TargetMsg, 0, len(targets)),
	}
	for _, t := range targets {
		snap.Targets = append(snap.Targets, msg.TargetMsg{
			ID:         strconv.Itoa(t.id),
			OrderID:    o.id,
			AccountID:  o.account,
			LotSize:    lot(t.cents),
			StopLoss:   t.sl,
			TakeProfit: t.tp,
			EntryPrice: o.entryPrice,
			IsDeleted:  t.deleted,
		})
	}
	return json.Marshal(snap)
}

// legacy renders the shape older backends push: ticket ids, string numbers,
// snake_case child orders, all inside a data envelope
func (g *generator) legacy(o genOrder, targets []genTarget) map[string]any {
	children := make([]map[string]any, 0, len(targets))
	for _, t := range targets {
		children = append(children, map[string]any{
			"target_id":  t.id,
			"lot_size":   strconv.FormatFloat(lot(t.cents), 'f', 2, 64),
			"sl":         t.sl,
			"tp":         strconv.FormatFloat(t.tp, 'f', 5, 64),
			"is_deleted": t.deleted,
		})
	}
	return map[string]any{
		"data": []map[string]any{{
			"ticket":       o.id,
			"account_id":   o.account,
			"type":         map[string]string{"BUY": "buy", "SELL": "sell"}[o.side],
			"volume":       strconv.FormatFloat(lot(o.lotCents), 'f', 2, 64),
			"min_lot_size": 0.01,
			"lotStep":      "0.01",
			"openPrice":    o.entryPrice,
			"child_orders": children,
		}},
	}
}
