package numeric

import (
	"errors"
	"fmt"
	"math"

	"github.com/ismaiel54/trade-target-engine/internal/target"
)

var (
	ErrInvalidStopLoss   = errors.New("invalid stop loss")
	ErrInvalidTakeProfit = errors.New("invalid take profit")
)

// SlTpErrors holds the per-field outcome of ValidateSlTp; nil means valid
type SlTpErrors struct {
	StopLoss   error
	TakeProfit error
}

// Any reports whether either field failed validation
func (e SlTpErrors) Any() bool {
	return e.StopLoss != nil || e.TakeProfit != nil
}

// ValidateSlTp checks stop-loss and take-profit against the order's reference
// price. For BUY the stop loss must be below and the take profit above the
// reference; SELL inverts both. A zero value means "not set" and is skipped, as
// is any check when the order carries no usable reference price.
func ValidateSlTp(order target.Order, stopLoss, takeProfit float64) SlTpErrors {
	var out SlTpErrors
	if !finite(stopLoss) {
		out.StopLoss = fmt.Errorf("%w: not a number", ErrInvalidStopLoss)
	}
	if !finite(takeProfit) {
		out.TakeProfit = fmt.Errorf("%w: not a number", ErrInvalidTakeProfit)
	}
	ref := order.EntryPrice
	if out.Any() || !(ref > 0) {
		return out
	}

	digits := CountDecimals(ref)
	if digits < 2 {
		digits = 2
	}
	refText := FormatWithDigits(ref, digits)

	sell := order.Side == target.Sell
	if stopLoss != 0 {
		if sell && stopLoss <= ref {
			out.StopLoss = fmt.Errorf("%w: must be above entry price %s for sell orders", ErrInvalidStopLoss, refText)
		}
		if !sell && stopLoss >= ref {
			out.StopLoss = fmt.Errorf("%w: must be below entry price %s for buy orders", ErrInvalidStopLoss, refText)
		}
	}
	if takeProfit != 0 {
		if sell && takeProfit >= ref {
			out.TakeProfit = fmt.Errorf("%w: must be below entry price %s for sell orders", ErrInvalidTakeProfit, refText)
		}
		if !sell && takeProfit <= ref {
			out.TakeProfit = fmt.Errorf("%w: must be above entry price %s for buy orders", ErrInvalidTakeProfit, refText)
		}
	}
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
