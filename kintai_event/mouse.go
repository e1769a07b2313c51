package kintai_event

import (
	"log/slog"
	"math"
	"time"
)

type cursorFunc func() (x, y float64)

// MouseEventWatcher samples the cursor position and reports a move when it
// travelled farther than threshold pixels since the last report.
type MouseEventWatcher struct {
	logger    *slog.Logger
	interval  time.Duration
	threshold float64
	cursor    cursorFunc

	last position
}

func NewMouseEventWatcher(logger *slog.Logger, interval time.Duration, threshold float64, cursor cursorFunc) *MouseEventWatcher {
	return &MouseEventWatcher{logger: logger, interval: interval, threshold: threshold, cursor: cursor}
}

func (w *MouseEventWatcher) Name() string {
	return "MouseEventWatcher"
}

func (w *MouseEventWatcher) Watch(onEvent func()) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for range ticker.C {
		if w.sample() {
			onEvent()
		}
	}
	return nil
}

func (w *MouseEventWatcher) sample() bool {
	x, y := w.cursor()
	current := position{x: x, y: y}
	distance := w.last.calcDistance(current)
	w.logger.Debug("kansi mouse event",
		slog.Float64("current_x", current.x),
		slog.Float64("current_y", current.y),
		slog.Float64("distance", distance),
	)
	if distance <= w.threshold {
		return false
	}
	w.last = current
	return true
}

type position struct {
	x, y float64
}

func (p1 position) calcDistance(p2 position) float64 {
	return math.Hypot(p1.x-p2.x, p1.y-p2.y)
}
