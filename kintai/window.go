package kintai

import (
	"fmt"
	"time"
)

// ScheduleWindow is a half-open [start, end) range during which time may be credited.
type ScheduleWindow struct {
	start time.Time
	end   time.Time
}

func NewScheduleWindow(start, end time.Time) (ScheduleWindow, error) {
	w := ScheduleWindow{start: start.UTC(), end: end.UTC()}
	if !w.IsValid() {
		return ScheduleWindow{}, fmt.Errorf("%w: %s - %s", ErrInvalidWindow, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return w, nil
}

func (w ScheduleWindow) Start() time.Time { return w.start }
func (w ScheduleWindow) End() time.Time   { return w.end }

func (w ScheduleWindow) IsValid() bool {
	return !w.start.IsZero() && !w.end.IsZero() && w.start.Before(w.end)
}

// Overlap clips [start, end) to the window. ok is false when nothing is left.
func (w ScheduleWindow) Overlap(start, end time.Time) (time.Time, time.Time, bool) {
	s := start
	if w.start.After(s) {
		s = w.start
	}
	e := end
	if w.end.Before(e) {
		e = w.end
	}
	if !s.Before(e) {
		return time.Time{}, time.Time{}, false
	}
	return s, e, true
}
