package target

// Side is the direction of the parent order
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Order is the read model of the parent position a target is attached to.
// The engine never mutates it beyond refreshing it from snapshots.
type Order struct {
	ID          string  `json:"orderId"`
	AccountID   string  `json:"accountId"`
	Side        Side    `json:"side"`
	LotSize     float64 `json:"lotSize"`
	MinLotSize  float64 `json:"minLotSize"`
	LotStepSize float64 `json:"lotStepSize"`
	EntryPrice  float64 `json:"entryPrice"`
}

// Target is a partial take-profit/stop-loss instruction against an order.
// ID is empty until the server confirms the target; until then ClientTempID
// identifies it locally.
type Target struct {
	ID           string  `json:"id,omitempty"`
	ClientTempID string  `json:"clientTempId,omitempty"`
	OrderID      string  `json:"orderId"`
	AccountID    string  `json:"accountId"`
	LotSize      float64 `json:"lotSize"`
	StopLoss     float64 `json:"stopLoss"`
	TakeProfit   float64 `json:"takeProfit"`
	EntryPrice   float64 `json:"entryPrice"`
	IsClosed     bool    `json:"isClosed"`
	IsDeleted    bool    `json:"isDeleted"`

	// Pending marks a local entry whose create has not been confirmed with an id.
	Pending bool `json:"pending,omitempty"`
}

// CreatePayload is the body of a create request
type CreatePayload struct {
	OrderID    string  `json:"orderId"`
	AccountID  string  `json:"accountId"`
	TakeProfit float64 `json:"takeProfit"`
	StopLoss   float64 `json:"stopLoss"`
	LotSize    float64 `json:"lotSize"`
	EntryPrice float64 `json:"entryPrice"`
	IsClosed   bool    `json:"isClosed"`
	IsDeleted  bool    `json:"isDeleted"`
}

// UpdatePayload is the body of an update request
type UpdatePayload struct {
	ID         string  `json:"id"`
	TakeProfit float64 `json:"takeProfit"`
	StopLoss   float64 `json:"stopLoss"`
	LotSize    float64 `json:"lotSize"`
}

// Draft holds the user-editable fields of a target
type Draft struct {
	LotSize    float64 `json:"lotSize"`
	StopLoss   float64 `json:"stopLoss"`
	TakeProfit float64 `json:"takeProfit"`
}

// Sum returns the total lot size allocated by targets
func Sum(targets []Target) float64 {
	var total float64
	for _, t := range targets {
		total += t.LotSize
	}
	return total
}

// Clone returns a copy of the list that shares no backing array with targets
func Clone(targets []Target) []Target {
	if targets == nil {
		return nil
	}
	out := make([]Target, len(targets))
	copy(out, targets)
	return out
}
