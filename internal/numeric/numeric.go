package numeric

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultPriceDigits is used by FormatWithDigits when the instrument does not
// report its own precision.
const DefaultPriceDigits = 5

// maxDecimals bounds every formatting call; float64 carries no more.
const maxDecimals = 16

// ToNumberOrZero coerces v to a finite float64. nil, non-numeric strings,
// NaN and infinities all become 0.
func ToNumberOrZero(v any) float64 {
	var f float64
	switch n := v.(type) {
	case nil:
		return 0
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0
		}
		f = parsed
	case decimal.Decimal:
		f = n.InexactFloat64()
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		f = parsed
	case *float64:
		if n == nil {
			return 0
		}
		f = *n
	default:
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// CountDecimals returns how many decimal places a step implies, e.g. 0.01 -> 2.
// Non-positive or integral steps yield 0.
func CountDecimals(step float64) int {
	if step <= 0 || math.IsNaN(step) || math.IsInf(step, 0) {
		return 0
	}
	exp := decimal.NewFromFloat(step).Exponent()
	if exp >= 0 {
		return 0
	}
	if d := int(-exp); d < maxDecimals {
		return d
	}
	return maxDecimals
}

// FormatWithDecimals renders value with exactly decimals places, rounding half
// away from zero. Negative decimals are treated as 0.
func FormatWithDecimals(value float64, decimals int) string {
	return fixed(value, clampDecimals(decimals, 0))
}

// FormatWithDigits is FormatWithDecimals for prices; negative digits fall back
// to DefaultPriceDigits.
func FormatWithDigits(value float64, digits int) string {
	return fixed(value, clampDecimals(digits, DefaultPriceDigits))
}

func clampDecimals(d, fallback int) int {
	if d < 0 {
		return fallback
	}
	if d > maxDecimals {
		return maxDecimals
	}
	return d
}

func fixed(value float64, places int) string {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		value = 0
	}
	return decimal.NewFromFloat(value).StringFixed(int32(places))
}

// AdjustOptions bounds AdjustNumberInputByStep
type AdjustOptions struct {
	Min *float64
}

// AdjustNumberInputByStep moves the text value current by one step in
// direction (+1 or -1), clamps the result to opts.Min and formats it to
// decimals places. Unparseable input is treated as 0. A non-positive step
// falls back to the smallest unit representable with decimals places.
func AdjustNumberInputByStep(current string, step float64, direction int, decimals int, opts AdjustOptions) string {
	decimals = clampDecimals(decimals, 0)

	cur, err := decimal.NewFromString(strings.TrimSpace(current))
	if err != nil {
		cur = decimal.Zero
	}

	var inc decimal.Decimal
	if !(step > 0) || math.IsInf(step, 0) {
		inc = decimal.New(1, int32(-decimals))
	} else {
		inc = decimal.NewFromFloat(step)
	}

	switch {
	case direction > 0:
		cur = cur.Add(inc)
	case direction < 0:
		cur = cur.Sub(inc)
	}

	if opts.Min != nil && !math.IsNaN(*opts.Min) && !math.IsInf(*opts.Min, 0) {
		if floor := decimal.NewFromFloat(*opts.Min); cur.LessThan(floor) {
			cur = floor
		}
	}

	return cur.StringFixed(int32(decimals))
}
