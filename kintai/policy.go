package kintai

import (
	"fmt"
	"math"
)

// BreakPolicy caps credited break time relative to credited working time.
// The zero value is invalid and credits no break at all.
type BreakPolicy struct {
	ratio float64
	ok    bool
}

// NewBreakPolicy derives the ratio from a reference pair, e.g. 1 hour of
// break allowed per 8 hours of work.
func NewBreakPolicy(workingHours, allowedBreakHours float64) (BreakPolicy, error) {
	if math.IsNaN(workingHours) || math.IsInf(workingHours, 0) || workingHours <= 0 {
		return BreakPolicy{}, fmt.Errorf("%w: working hours %v", ErrInvalidPolicy, workingHours)
	}
	if math.IsNaN(allowedBreakHours) || math.IsInf(allowedBreakHours, 0) || allowedBreakHours < 0 {
		return BreakPolicy{}, fmt.Errorf("%w: break hours %v", ErrInvalidPolicy, allowedBreakHours)
	}
	return BreakPolicy{ratio: allowedBreakHours / workingHours, ok: true}, nil
}

func (p BreakPolicy) IsValid() bool {
	return p.ok && p.ratio >= 0
}

func (p BreakPolicy) Ratio() float64 {
	return p.ratio
}

// Limit returns the largest break, in seconds, that workingSeconds of work allows.
func (p BreakPolicy) Limit(workingSeconds int64) int64 {
	if !p.IsValid() || workingSeconds <= 0 {
		return 0
	}
	return int64(math.Round(float64(workingSeconds) * p.ratio))
}

// CreditedBreak clamps rawBreakSeconds to Limit(workingSeconds).
func (p BreakPolicy) CreditedBreak(workingSeconds, rawBreakSeconds int64) int64 {
	if !p.IsValid() || rawBreakSeconds <= 0 {
		return 0
	}
	limit := p.Limit(workingSeconds)
	if rawBreakSeconds <= limit {
		return rawBreakSeconds
	}
	return limit
}
