package kintai_event

import (
	"log/slog"
	"sync"
	"time"

	hook "github.com/robotn/gohook"
)

// KeyboardEventWatcher reports key presses, at most once per minInterval.
type KeyboardEventWatcher struct {
	logger      *slog.Logger
	minInterval time.Duration

	mu     sync.Mutex
	lastAt time.Time
}

func NewKeyboardEventWatcher(logger *slog.Logger, minInterval time.Duration) *KeyboardEventWatcher {
	return &KeyboardEventWatcher{logger: logger, minInterval: minInterval}
}

func (w *KeyboardEventWatcher) Name() string {
	return "KeyboardEventWatcher"
}

func (w *KeyboardEventWatcher) Watch(onEvent func()) error {
	hook.Register(hook.KeyDown, hook.AnyKeyCmd, func(e hook.Event) {
		if w.throttle(time.Now()) {
			return
		}
		w.logger.Debug("key down", slog.Time("at", e.When))
		onEvent()
	})

	s := hook.Start()
	defer hook.End()
	<-hook.Process(s)
	return nil
}

// throttle reports whether an event at now falls inside the quiet period.
func (w *KeyboardEventWatcher) throttle(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.lastAt.IsZero() && now.Sub(w.lastAt) < w.minInterval {
		return true
	}
	w.lastAt = now
	return false
}
