package schedule

import "sort"

// ComputeFree converts a list of busy periods into the free periods left
// inside the window.
//
// The sweep keeps a cursor at the end of the busy time seen so far and only
// advances it, so overlapping or back-to-back busy periods are absorbed into
// one block instead of leaking a spurious free gap between them.
func ComputeFree(busy []Period, window Period) []Period {
	if window.IsEmpty() {
		return nil
	}

	clipped := make([]Period, 0, len(busy))
	for _, b := range busy {
		if c, ok := b.Clip(window); ok && !c.IsEmpty() {
			clipped = append(clipped, c)
		}
	}
	sort.SliceStable(clipped, func(i, j int) bool {
		return clipped[i].Start.Before(clipped[j].Start)
	})

	var free []Period
	cursor := window.Start
	for _, b := range clipped {
		if b.Start.After(cursor) {
			free = append(free, Period{Start: cursor, End: b.Start})
		}
		if b.End.After(cursor) {
			cursor = b.End
		}
	}
	if cursor.Before(window.End) {
		free = append(free, Period{Start: cursor, End: window.End})
	}

	return free
}

// ComputeFreeAcross applies ComputeFree to each window in order and
// concatenates the results. Windows are expected to be sorted and disjoint,
// as produced by BuildWindows.
func ComputeFreeAcross(busy []Period, windows []Period) []Period {
	var free []Period
	for _, w := range windows {
		free = append(free, ComputeFree(busy, w)...)
	}
	return free
}
