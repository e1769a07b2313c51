package kintai

import "errors"

var (
	ErrInvalidSubject    = errors.New("subject id must be positive")
	ErrInvalidSession    = errors.New("session is invalid")
	ErrInvalidPolicy     = errors.New("break policy is invalid")
	ErrInvalidWindow     = errors.New("schedule window is invalid")
	ErrInvalidTimestamp  = errors.New("timestamp is invalid")
	ErrInvalidTransition = errors.New("transition not allowed from current state")
	ErrOutOfOrder        = errors.New("timestamp precedes last transition")
	ErrUnknownEventKind  = errors.New("unknown event kind")
)
