package schedule

import (
	"sort"
	"time"
)

// Intersect folds the free-period lists of all participants into the periods
// where everyone is free for at least minDuration. The result is sorted,
// non-overlapping, and merged with exact-touch adjacency.
//
// An empty intermediate result short-circuits: once any participant shares no
// free time with the rest, no further participant can change the outcome.
func Intersect(lists [][]Period, minDuration time.Duration) []Period {
	if len(lists) == 0 {
		return nil
	}

	result := filterByDuration(lists[0], minDuration)
	for _, list := range lists[1:] {
		if len(result) == 0 {
			return nil
		}
		result = intersectPair(result, list, minDuration)
	}

	return Merge(result, 0)
}

// intersectPair computes all pairwise overlaps between two free-period lists
// that satisfy the minimum duration.
func intersectPair(a, b []Period, minDuration time.Duration) []Period {
	var out []Period
	for _, pa := range a {
		for _, pb := range b {
			start := pa.Start
			if pb.Start.After(start) {
				start = pb.Start
			}
			end := pa.End
			if pb.End.Before(end) {
				end = pb.End
			}
			overlap := Period{Start: start, End: end}
			if overlap.IsEmpty() || overlap.Duration() < minDuration {
				continue
			}
			out = append(out, overlap)
		}
	}
	return out
}

func filterByDuration(periods []Period, minDuration time.Duration) []Period {
	var out []Period
	for _, p := range periods {
		if !p.IsEmpty() && p.Duration() >= minDuration {
			out = append(out, p)
		}
	}
	return out
}

// Merge sorts the periods and combines any pair whose gap is within the
// adjacency buffer, taking the later end of the two. Merging an already
// merged list returns it unchanged.
func Merge(periods []Period, adjacency time.Duration) []Period {
	if len(periods) == 0 {
		return nil
	}

	sorted := make([]Period, len(periods))
	copy(sorted, periods)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})

	merged := []Period{sorted[0]}
	for _, p := range sorted[1:] {
		last := &merged[len(merged)-1]
		if !p.Start.After(last.End.Add(adjacency)) {
			if p.End.After(last.End) {
				last.End = p.End
			}
			continue
		}
		merged = append(merged, p)
	}

	return merged
}
