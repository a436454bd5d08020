package engine

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"pgregory.net/rapid"

	"github.com/ismaiel54/trade-target-engine/internal/allocation"
	"github.com/ismaiel54/trade-target-engine/internal/target"
)

// Random lifecycle calls against a persister that confirms, defers or fails
// each create; the allocation ceiling must hold after every call.
func TestProperty_EngineAllocationCeiling(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		next := 0
		p := &fakePersister{}
		p.createFn = func(_ context.Context, pl target.CreatePayload) (*target.Target, error) {
			switch rapid.IntRange(0, 2).Draw(rt, "createOutcome") {
			case 0:
				next++
				return &target.Target{ID: "c" + strconv.Itoa(next), LotSize: pl.LotSize}, nil
			case 1:
				return nil, nil
			default:
				return nil, errors.New("unavailable")
			}
		}

		e := New(p, nil)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() { _ = e.Run(ctx) }()

		order := testOrder()
		order.LotSize = rapid.SampledFrom([]float64{0.5, 1.0, 1.5}).Draw(rt, "orderLot")
		if _, err := e.OpenTargets(ctx, order, nil); err != nil {
			rt.Fatalf("open: %v", err)
		}

		steps := rapid.IntRange(1, 30).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			v, err := e.View(ctx, order.ID)
			if err != nil {
				rt.Fatalf("view: %v", err)
			}
			lot := float64(rapid.IntRange(5, 80).Draw(rt, "lotCents")) / 100

			op := rapid.IntRange(0, 3).Draw(rt, "op")
			if op == 0 || len(v.Targets) == 0 {
				_, _ = e.CreateTarget(ctx, order.ID, target.Draft{LotSize: lot})
			} else {
				idx := rapid.IntRange(0, len(v.Targets)-1).Draw(rt, "idx")
				key := target.Key(v.Targets[idx], idx)
				switch op {
				case 1:
					_, _ = e.UpdateTarget(ctx, order.ID, key, target.Draft{LotSize: lot})
				case 2:
					_ = e.RemoveTarget(ctx, order.ID, key)
				default:
					_ = e.RemoveLocalTempTarget(ctx, order.ID, key)
				}
			}

			v, err = e.View(ctx, order.ID)
			if err != nil {
				rt.Fatalf("view: %v", err)
			}
			if sum := target.Sum(v.Targets); sum > order.LotSize+allocation.Tolerance {
				rt.Fatalf("allocated %v exceeds order lot %v", sum, order.LotSize)
			}
		}
	})
}
