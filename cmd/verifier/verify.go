package main

import (
	"fmt"
	"sort"

	"github.com/ismaiel54/trade-target-engine/internal/allocation"
	"github.com/ismaiel54/trade-target-engine/internal/engine"
	"github.com/ismaiel54/trade-target-engine/internal/numeric"
	"github.com/ismaiel54/trade-target-engine/internal/target"
)

// Report summarizes the merged state of every order seen on the feed
type Report struct {
	Orders     int
	Targets    int
	Violations []string
}

// verify checks that no order is over-allocated and that target keys are
// unique within each order
func verify(views []engine.View) Report {
	sort.Slice(views, func(i, j int) bool { return views[i].OrderID < views[j].OrderID })

	var r Report
	for _, v := range views {
		r.Orders++
		r.Targets += len(v.Targets)

		if v.Order.LotSize > 0 {
			sum := target.Sum(v.Targets)
			if sum > v.Order.LotSize+allocation.Tolerance {
				r.Violations = append(r.Violations, fmt.Sprintf(
					"order %s: allocated %s exceeds lot %s",
					v.OrderID, numeric.FormatWithDecimals(sum, 8), numeric.FormatWithDecimals(v.Order.LotSize, 8)))
			}
		}

		seen := make(map[string]bool, len(v.Targets))
		for i, t := range v.Targets {
			key := target.Key(t, i)
			if seen[key] {
				r.Violations = append(r.Violations, fmt.Sprintf("order %s: duplicate target key %s", v.OrderID, key))
			}
			seen[key] = true
		}
	}
	return r
}
