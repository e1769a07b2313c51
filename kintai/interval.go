package kintai

import (
	"sort"
	"time"
)

// CreditedSeconds returns how many whole seconds of [start, end) fall inside
// the union of windows. Without windows the whole interval counts.
func CreditedSeconds(start, end time.Time, windows []ScheduleWindow) int64 {
	if !start.Before(end) {
		return 0
	}
	if len(windows) == 0 {
		return int64(end.Sub(start) / time.Second)
	}

	var total time.Duration
	for _, w := range mergeWindows(windows) {
		if !w.start.Before(end) {
			break
		}
		if s, e, ok := w.Overlap(start, end); ok {
			total += e.Sub(s)
		}
	}
	return int64(total / time.Second)
}

// mergeWindows returns a sorted disjoint cover of windows. Touching windows are joined.
func mergeWindows(windows []ScheduleWindow) []ScheduleWindow {
	sorted := make([]ScheduleWindow, 0, len(windows))
	for _, w := range windows {
		if w.IsValid() {
			sorted = append(sorted, w)
		}
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].start.Before(sorted[j].start)
	})

	merged := make([]ScheduleWindow, 0, len(sorted))
	for _, w := range sorted {
		if n := len(merged); n > 0 && !w.start.After(merged[n-1].end) {
			if w.end.After(merged[n-1].end) {
				merged[n-1].end = w.end
			}
			continue
		}
		merged = append(merged, w)
	}
	return merged
}
