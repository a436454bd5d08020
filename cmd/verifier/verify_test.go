package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ismaiel54/trade-target-engine/internal/engine"
	"github.com/ismaiel54/trade-target-engine/internal/target"
)

func TestVerify(t *testing.T) {
	views := []engine.View{
		{
			OrderID: "b",
			Order:   target.Order{ID: "b", LotSize: 1},
			Targets: []target.Target{{ID: "1", LotSize: 0.6}, {ID: "2", LotSize: 0.5}},
		},
		{
			OrderID: "a",
			Order:   target.Order{ID: "a", LotSize: 1},
			Targets: []target.Target{{ID: "1", LotSize: 0.3}, {ID: "1", LotSize: 0.3}},
		},
		{
			OrderID: "c",
			Order:   target.Order{ID: "c", LotSize: 0.3},
			Targets: []target.Target{{ID: "1", LotSize: 0.1}, {ID: "2", LotSize: 0.2}},
		},
	}

	r := verify(views)
	assert.Equal(t, 3, r.Orders)
	assert.Equal(t, 6, r.Targets)
	require.Len(t, r.Violations, 2)
	assert.Contains(t, r.Violations[0], "order a: duplicate target key 1")
	assert.Contains(t, r.Violations[1], "order b: allocated")
}
