package kintai_event

import (
	"log/slog"
	"time"
)

type Watcher interface {
	Name() string
	Watch(onEvent func()) error
}

func NewAllWatchers(logger *slog.Logger) []Watcher {
	ws := []Watcher{
		NewKeyboardEventWatcher(logger, 10*time.Second),
	}
	if cursor := systemCursor(); cursor != nil {
		ws = append(ws, NewMouseEventWatcher(logger, 30*time.Second, 100, cursor))
	}
	return ws
}
