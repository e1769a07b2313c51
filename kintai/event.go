package kintai

import (
	"fmt"
	"strings"
	"time"
)

type EventKind string

const (
	EventStarted   = EventKind("Started")
	EventOnBreak   = EventKind("OnBreak")
	EventFromBreak = EventKind("FromBreak")
	EventFinished  = EventKind("Finished")
)

var EventKinds = []EventKind{EventStarted, EventOnBreak, EventFromBreak, EventFinished}

func (k EventKind) Validate() error {
	switch k {
	case EventStarted, EventOnBreak, EventFromBreak, EventFinished:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEventKind, string(k))
	}
}

// ParseEventKind accepts the wire names case-insensitively.
func ParseEventKind(s string) (EventKind, error) {
	for _, k := range EventKinds {
		if strings.EqualFold(string(k), strings.TrimSpace(s)) {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEventKind, s)
}

// Apply routes a domain event to the matching transition.
func (s *WorkdaySession) Apply(kind EventKind, t time.Time) error {
	switch kind {
	case EventStarted:
		return s.StartWorking(t)
	case EventOnBreak:
		return s.StartBreak(t)
	case EventFromBreak:
		return s.EndBreak(t)
	case EventFinished:
		return s.StopWorking(t)
	default:
		return kind.Validate()
	}
}
