package allocation

import (
	"errors"
	"fmt"
	"math"

	"github.com/ismaiel54/trade-target-engine/internal/numeric"
	"github.com/ismaiel54/trade-target-engine/internal/target"
)

// Tolerance absorbs float noise when comparing lot sizes against limits
const Tolerance = 1e-6

// Validation sentinels; callers match them with errors.Is
var (
	ErrLotNotPositive    = errors.New("lot size must be greater than zero")
	ErrBelowMinLot       = errors.New("lot size is below the minimum lot")
	ErrExceedsRemaining  = errors.New("lot size exceeds the remaining lot")
	ErrInvalidStopLoss   = numeric.ErrInvalidStopLoss
	ErrInvalidTakeProfit = numeric.ErrInvalidTakeProfit
)

// Field names reported by ValidationError
const (
	FieldLotSize    = "lotSize"
	FieldStopLoss   = "stopLoss"
	FieldTakeProfit = "takeProfit"
)

// ValidationError is a field-scoped rejection detected before any network call
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Remaining returns the lot still unallocated on order, ignoring the target
// whose key equals excludingKey (pass "" to count every target).
func Remaining(order target.Order, targets []target.Target, excludingKey string) float64 {
	rem := headroom(order, targets, excludingKey)
	if rem < 0 || math.IsNaN(rem) {
		return 0
	}
	return rem
}

// headroom is Remaining without the clamp at zero. Accepted lots never sum
// past order.LotSize+Tolerance because validation compares against it.
func headroom(order target.Order, targets []target.Target, excludingKey string) float64 {
	var used float64
	for i, t := range targets {
		if excludingKey != "" && target.Key(t, i) == excludingKey {
			continue
		}
		used += t.LotSize
	}
	return order.LotSize - used
}

// ValidateCreate checks a new target against the order and the current list
func ValidateCreate(order target.Order, targets []target.Target, draft target.Draft) error {
	return validate(order, draft, headroom(order, targets, ""))
}

// ValidateUpdate checks an edit of the target identified by key; the edited
// target's own allocation does not count against it.
func ValidateUpdate(order target.Order, targets []target.Target, key string, draft target.Draft) error {
	return validate(order, draft, headroom(order, targets, key))
}

func validate(order target.Order, draft target.Draft, remaining float64) error {
	lot := draft.LotSize
	if !(lot > 0) || math.IsInf(lot, 0) {
		return &ValidationError{Field: FieldLotSize, Err: ErrLotNotPositive}
	}
	decimals := lotDecimals(order)
	if order.MinLotSize > 0 && lot < order.MinLotSize-Tolerance {
		return &ValidationError{
			Field: FieldLotSize,
			Err:   fmt.Errorf("%w: %s < %s", ErrBelowMinLot, numeric.FormatWithDecimals(lot, decimals), numeric.FormatWithDecimals(order.MinLotSize, decimals)),
		}
	}
	if !(lot <= remaining+Tolerance) {
		return &ValidationError{
			Field: FieldLotSize,
			Err:   fmt.Errorf("%w: %s > %s", ErrExceedsRemaining, numeric.FormatWithDecimals(lot, decimals), numeric.FormatWithDecimals(math.Max(remaining, 0), decimals)),
		}
	}

	res := numeric.ValidateSlTp(order, draft.StopLoss, draft.TakeProfit)
	if res.StopLoss != nil {
		return &ValidationError{Field: FieldStopLoss, Err: res.StopLoss}
	}
	if res.TakeProfit != nil {
		return &ValidationError{Field: FieldTakeProfit, Err: res.TakeProfit}
	}
	return nil
}

// NextDefaultLot is the remaining lot rendered at the precision of the order's
// lot step, used to pre-fill the next create.
func NextDefaultLot(order target.Order, targets []target.Target) string {
	return numeric.FormatWithDecimals(Remaining(order, targets, ""), lotDecimals(order))
}

func lotDecimals(order target.Order) int {
	if order.LotStepSize > 0 {
		return numeric.CountDecimals(order.LotStepSize)
	}
	if order.MinLotSize > 0 {
		return numeric.CountDecimals(order.MinLotSize)
	}
	return 2
}
