package target

// MergeStats describes what a merge did with the locally held entries
type MergeStats struct {
	// Replaced counts confirmed local entries already represented in the result.
	Replaced int
	// Retained counts confirmed local entries the incoming batch did not mention.
	Retained int
	// Superseded counts temp entries dropped because a matching entry arrived.
	Superseded int
	// Unconfirmed counts temp entries still waiting for confirmation.
	Unconfirmed int
}

// Merge reconciles the locally held list prev with an authoritative batch
// incoming and returns the next canonical list. Neither input is modified.
//
// Incoming entries come first (deduplicated by id, first occurrence wins),
// followed by the incoming entries without an id. Confirmed local entries the
// batch does not mention are kept, since a push may be a delta. Temp entries
// are dropped once a value-equivalent non-temp entry is present and kept
// otherwise. Temp entries are never matched against each other.
func Merge(prev, incoming []Target) []Target {
	out, _ := MergeWithStats(prev, incoming)
	return out
}

// MergeWithStats is Merge that also reports how prev entries were resolved
func MergeWithStats(prev, incoming []Target) ([]Target, MergeStats) {
	var stats MergeStats
	if len(prev) == 0 {
		return Clone(incoming), stats
	}
	if len(incoming) == 0 {
		return Clone(prev), stats
	}

	seen := make(map[string]struct{}, len(incoming))
	withID := make([]Target, 0, len(incoming))
	var withoutID []Target
	for _, raw := range incoming {
		t := Normalize(raw)
		if t.ID == "" {
			withoutID = append(withoutID, t)
			continue
		}
		if _, dup := seen[t.ID]; dup {
			continue
		}
		seen[t.ID] = struct{}{}
		withID = append(withID, t)
	}

	result := make([]Target, 0, len(withID)+len(withoutID)+len(prev))
	result = append(result, withID...)
	result = append(result, withoutID...)

	// candidates holds every non-temp entry of result, in result order
	candidates := Clone(result)

	for _, raw := range prev {
		p := Normalize(raw)
		if p.ID != "" {
			if _, ok := seen[p.ID]; ok {
				stats.Replaced++
				continue
			}
			stats.Retained++
			seen[p.ID] = struct{}{}
			result = append(result, p)
			candidates = append(candidates, p)
			continue
		}

		if matchesAny(p, candidates) {
			stats.Superseded++
			continue
		}
		stats.Unconfirmed++
		result = append(result, p)
	}

	return result, stats
}

func matchesAny(t Target, list []Target) bool {
	for _, c := range list {
		if Matches(t, c) {
			return true
		}
	}
	return false
}
