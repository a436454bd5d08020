package target

import (
	"math"
	"strconv"
	"strings"
)

// Tolerances used when comparing targets by value
const (
	LotTolerance   = 1e-6
	PriceTolerance = 1e-6
)

// GetTargetID returns the server id of t, or "" when the target is unconfirmed.
// Vendor field names are folded into ID at ingestion (see hubfeed), so only
// the canonical field is consulted here.
func GetTargetID(t Target) string {
	id := strings.TrimSpace(t.ID)
	switch id {
	case "null", "undefined":
		return ""
	}
	return id
}

// IsTemp reports whether t has not been assigned a server id yet
func IsTemp(t Target) bool {
	return GetTargetID(t) == ""
}

// Key derives the identity used for diffing: the server id, else the client
// temp id, else a positional fallback.
func Key(t Target, fallbackIndex int) string {
	if id := GetTargetID(t); id != "" {
		return id
	}
	if tmp := strings.TrimSpace(t.ClientTempID); tmp != "" {
		return tmp
	}
	return "tmp-" + strconv.Itoa(fallbackIndex)
}

// Matches reports whether a and b describe the same real target by value.
// It is only meaningful when at least one side has no server id.
func Matches(a, b Target) bool {
	return math.Abs(a.LotSize-b.LotSize) <= LotTolerance &&
		math.Abs(a.StopLoss-b.StopLoss) <= PriceTolerance &&
		math.Abs(a.TakeProfit-b.TakeProfit) <= PriceTolerance
}

// Normalize materializes the derived id of t
func Normalize(t Target) Target {
	t.ID = GetTargetID(t)
	if t.ID != "" {
		t.Pending = false
	}
	return t
}

// IndexOfKey returns the position of the target whose derived key is key, or -1
func IndexOfKey(targets []Target, key string) int {
	for i, t := range targets {
		if Key(t, i) == key {
			return i
		}
	}
	return -1
}

// IndexOfID returns the position of the target with server id id, or -1
func IndexOfID(targets []Target, id string) int {
	if id == "" {
		return -1
	}
	for i, t := range targets {
		if GetTargetID(t) == id {
			return i
		}
	}
	return -1
}
