package msg

// TargetMsg is one target inside an order snapshot
type TargetMsg struct {
	ID         string  `json:"id"`
	OrderID    string  `json:"orderId"`
	AccountID  string  `json:"accountId"`
	LotSize    float64 `json:"lotSize"`
	StopLoss   float64 `json:"stopLoss"`
	TakeProfit float64 `json:"takeProfit"`
	EntryPrice float64 `json:"entryPrice"`
	IsClosed   bool    `json:"isClosed"`
	IsDeleted  bool    `json:"isDeleted"`
}

// OrderSnapshotMsg is the authoritative state of one order and its targets as
// published on TopicOrderSnapshots. Targets may be a delta.
type OrderSnapshotMsg struct {
	EventID      string      `json:"eventId"`
	OrderID      string      `json:"orderId"`
	AccountID    string      `json:"accountId"`
	Side         string      `json:"side"` // "BUY" or "SELL"
	LotSize      float64     `json:"lotSize"`
	MinLotSize   float64     `json:"minLotSize"`
	LotStepSize  float64     `json:"lotStepSize"`
	EntryPrice   float64     `json:"entryPrice"`
	Targets      []TargetMsg `json:"targets"`
	TsUnixMillis int64       `json:"tsUnixMillis"`
}
