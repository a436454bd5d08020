package numeric

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/ismaiel54/trade-target-engine/internal/target"
)

func TestToNumberOrZero(t *testing.T) {
	var nilPtr *float64
	v := 4.5

	tests := []struct {
		name string
		in   any
		want float64
	}{
		{name: "nil", in: nil, want: 0},
		{name: "float", in: 1.25, want: 1.25},
		{name: "int", in: 3, want: 3},
		{name: "numeric string", in: " 1.5 ", want: 1.5},
		{name: "garbage string", in: "abc", want: 0},
		{name: "empty string", in: "", want: 0},
		{name: "nan string", in: "NaN", want: 0},
		{name: "nan", in: math.NaN(), want: 0},
		{name: "inf", in: math.Inf(1), want: 0},
		{name: "json number", in: json.Number("2.25"), want: 2.25},
		{name: "bool", in: true, want: 0},
		{name: "nil pointer", in: nilPtr, want: 0},
		{name: "pointer", in: &v, want: 4.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ToNumberOrZero(tt.in))
		})
	}
}

func TestCountDecimals(t *testing.T) {
	tests := map[float64]int{
		0.01:    2,
		0.1:     1,
		0.25:    2,
		0.001:   3,
		0.00001: 5,
		1:       0,
		10:      0,
		0:       0,
		-0.1:    0,
	}
	for step, want := range tests {
		assert.Equal(t, want, CountDecimals(step), "step %v", step)
	}
	assert.Equal(t, 0, CountDecimals(math.NaN()))
}

func TestFormatWithDecimals(t *testing.T) {
	assert.Equal(t, "2.00", FormatWithDecimals(2, 2))
	assert.Equal(t, "0.13", FormatWithDecimals(0.125, 2))
	assert.Equal(t, "-0.13", FormatWithDecimals(-0.125, 2))
	assert.Equal(t, "2", FormatWithDecimals(1.5, -1))
	assert.Equal(t, "0.00", FormatWithDecimals(math.NaN(), 2))
}

func TestFormatWithDigits(t *testing.T) {
	assert.Equal(t, "1.20000", FormatWithDigits(1.2, -1))
	assert.Equal(t, "1.200", FormatWithDigits(1.2, 3))
}

func TestAdjustNumberInputByStep(t *testing.T) {
	floor := 0.1

	tests := []struct {
		name      string
		current   string
		step      float64
		direction int
		decimals  int
		opts      AdjustOptions
		want      string
	}{
		{name: "increment", current: "0.10", step: 0.01, direction: 1, decimals: 2, want: "0.11"},
		{name: "decrement", current: "0.3", step: 0.1, direction: -1, decimals: 2, want: "0.20"},
		{name: "clamped to min", current: "0.10", step: 0.01, direction: -1, decimals: 2, opts: AdjustOptions{Min: &floor}, want: "0.10"},
		{name: "garbage input", current: "abc", step: 0.1, direction: 1, decimals: 1, want: "0.1"},
		{name: "zero step uses precision", current: "1.20000", step: 0, direction: 1, decimals: 5, want: "1.20001"},
		{name: "no direction reformats", current: "1.2", step: 0.1, direction: 0, decimals: 3, want: "1.200"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AdjustNumberInputByStep(tt.current, tt.step, tt.direction, tt.decimals, tt.opts))
		})
	}
}

func TestValidateSlTp_Buy(t *testing.T) {
	order := target.Order{Side: target.Buy, EntryPrice: 1.2}

	res := ValidateSlTp(order, 1.21, 0)
	require.Error(t, res.StopLoss)
	assert.ErrorIs(t, res.StopLoss, ErrInvalidStopLoss)
	assert.NoError(t, res.TakeProfit)

	res = ValidateSlTp(order, 1.19, 1.25)
	assert.False(t, res.Any())

	res = ValidateSlTp(order, 0, 1.19)
	assert.NoError(t, res.StopLoss)
	assert.ErrorIs(t, res.TakeProfit, ErrInvalidTakeProfit)

	res = ValidateSlTp(order, 1.2, 1.2)
	assert.Error(t, res.StopLoss)
	assert.Error(t, res.TakeProfit)
}

func TestValidateSlTp_Sell(t *testing.T) {
	order := target.Order{Side: target.Sell, EntryPrice: 1.2}

	res := ValidateSlTp(order, 1.19, 1.21)
	assert.ErrorIs(t, res.StopLoss, ErrInvalidStopLoss)
	assert.ErrorIs(t, res.TakeProfit, ErrInvalidTakeProfit)

	res = ValidateSlTp(order, 1.21, 1.19)
	assert.False(t, res.Any())
}

func TestValidateSlTp_NoReferencePrice(t *testing.T) {
	res := ValidateSlTp(target.Order{Side: target.Buy}, 5, 1)
	assert.False(t, res.Any())
}

func TestValidateSlTp_NonFinite(t *testing.T) {
	order := target.Order{Side: target.Buy, EntryPrice: 1.2}

	res := ValidateSlTp(order, math.NaN(), 1.25)
	assert.ErrorIs(t, res.StopLoss, ErrInvalidStopLoss)

	res = ValidateSlTp(target.Order{Side: target.Sell}, 0, math.Inf(1))
	assert.NoError(t, res.StopLoss)
	assert.ErrorIs(t, res.TakeProfit, ErrInvalidTakeProfit)
}

func TestProperty_FormatNeverPanics(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		v := rapid.Float64().Draw(t, "v")
		d := rapid.IntRange(-3, 20).Draw(t, "d")

		_ = FormatWithDecimals(v, d)
		_ = FormatWithDigits(v, d)
		if got := ToNumberOrZero(v); math.IsNaN(got) || math.IsInf(got, 0) {
			t.Fatalf("non-finite coercion of %v", v)
		}
	})
}
