package kintai

import (
	"fmt"
	"time"
)

type SubjectID int64

// WorkdaySession tracks one subject's credited working and break time for a
// single workday. It is not safe for concurrent use; callers serialize access.
type WorkdaySession struct {
	subjectID        SubjectID
	state            State
	lastTransitionAt time.Time

	workingSeconds int64
	breakSeconds   int64
	// window-clipped break time before the policy cap is applied
	rawBreakSeconds int64

	policy  BreakPolicy
	windows []ScheduleWindow
}

func NewWorkdaySession(subjectID SubjectID) *WorkdaySession {
	return &WorkdaySession{
		subjectID: subjectID,
		state:     StateNotWorking,
	}
}

// Snapshot is a point-in-time copy of the stored counters of a session.
type Snapshot struct {
	SubjectID        SubjectID
	State            State
	LastTransitionAt time.Time
	WorkingSeconds   int64
	BreakSeconds     int64
	RawBreakSeconds  int64
}

func (s *WorkdaySession) Snapshot() Snapshot {
	return Snapshot{
		SubjectID:        s.subjectID,
		State:            s.state,
		LastTransitionAt: s.lastTransitionAt,
		WorkingSeconds:   s.workingSeconds,
		BreakSeconds:     s.breakSeconds,
		RawBreakSeconds:  s.rawBreakSeconds,
	}
}

func (s *WorkdaySession) SubjectID() SubjectID { return s.subjectID }
func (s *WorkdaySession) State() State         { return s.state }
func (s *WorkdaySession) Policy() BreakPolicy  { return s.policy }

func (s *WorkdaySession) Windows() []ScheduleWindow {
	return append([]ScheduleWindow(nil), s.windows...)
}

// LastTransitionAt returns the time of the last accepted transition, if any.
func (s *WorkdaySession) LastTransitionAt() (time.Time, bool) {
	return s.lastTransitionAt, !s.lastTransitionAt.IsZero()
}

func (s *WorkdaySession) IsValid() bool {
	return s.validate() == nil
}

func (s *WorkdaySession) validate() error {
	if s.subjectID < 1 {
		return fmt.Errorf("%w: %w: subject %d", ErrInvalidSession, ErrInvalidSubject, s.subjectID)
	}
	if s.workingSeconds < 0 || s.breakSeconds < 0 || s.rawBreakSeconds < 0 {
		return fmt.Errorf("%w: negative counter", ErrInvalidSession)
	}
	if s.state.Active() && s.lastTransitionAt.IsZero() {
		return fmt.Errorf("%w: %s without last transition", ErrInvalidSession, s.state)
	}
	return nil
}

// StartWorkday re-arms the session with a new policy and schedule. Counters
// and state are reset. On error the session is left untouched.
func (s *WorkdaySession) StartWorkday(policy BreakPolicy, windows []ScheduleWindow) error {
	if s.subjectID < 1 {
		return fmt.Errorf("%w: %w: subject %d", ErrInvalidSession, ErrInvalidSubject, s.subjectID)
	}
	if !policy.IsValid() {
		return ErrInvalidPolicy
	}
	for i, w := range windows {
		if !w.IsValid() {
			return fmt.Errorf("%w: window %d", ErrInvalidWindow, i)
		}
	}

	s.state = StateNotWorking
	s.lastTransitionAt = time.Time{}
	s.workingSeconds = 0
	s.breakSeconds = 0
	s.rawBreakSeconds = 0
	s.policy = policy
	s.windows = append([]ScheduleWindow(nil), windows...)
	return nil
}

func (s *WorkdaySession) StartWorking(t time.Time) error {
	t, err := s.guard(StateNotWorking, t)
	if err != nil {
		return err
	}
	s.state = StateWorking
	s.lastTransitionAt = t
	return nil
}

func (s *WorkdaySession) StartBreak(t time.Time) error {
	t, err := s.guard(StateWorking, t)
	if err != nil {
		return err
	}
	s.workingSeconds += CreditedSeconds(s.lastTransitionAt, t, s.windows)
	s.state = StateOnBreak
	s.lastTransitionAt = t
	return nil
}

// EndBreak closes the current break. The policy is applied to the running
// break total, so a long break is clamped against all work done so far.
func (s *WorkdaySession) EndBreak(t time.Time) error {
	t, err := s.guard(StateOnBreak, t)
	if err != nil {
		return err
	}
	s.rawBreakSeconds += CreditedSeconds(s.lastTransitionAt, t, s.windows)
	s.breakSeconds = s.policy.CreditedBreak(s.workingSeconds, s.rawBreakSeconds)
	s.state = StateWorking
	s.lastTransitionAt = t
	return nil
}

func (s *WorkdaySession) StopWorking(t time.Time) error {
	t, err := s.guard(StateWorking, t)
	if err != nil {
		return err
	}
	s.workingSeconds += CreditedSeconds(s.lastTransitionAt, t, s.windows)
	s.state = StateNotWorking
	s.lastTransitionAt = t
	return nil
}

// guard checks a transition out of from at t and returns t in UTC.
func (s *WorkdaySession) guard(from State, t time.Time) (time.Time, error) {
	if err := s.validate(); err != nil {
		return time.Time{}, err
	}
	if s.state != from {
		return time.Time{}, fmt.Errorf("%w: %s, want %s", ErrInvalidTransition, s.state, from)
	}
	if t.IsZero() {
		return time.Time{}, ErrInvalidTimestamp
	}
	t = t.UTC()
	if !s.lastTransitionAt.IsZero() && t.Before(s.lastTransitionAt) {
		return time.Time{}, fmt.Errorf("%w: %s < %s", ErrOutOfOrder, t.Format(time.RFC3339), s.lastTransitionAt.Format(time.RFC3339))
	}
	return t, nil
}

// CreditedWorkingTime returns credited working seconds as of asOf, including
// the open working interval if the subject is working.
func (s *WorkdaySession) CreditedWorkingTime(asOf time.Time) (int64, error) {
	open, err := s.openInterval(StateWorking, asOf)
	if err != nil {
		return 0, err
	}
	return s.workingSeconds + open, nil
}

// CreditedBreakTime returns credited break seconds as of asOf. An open break
// is clamped by the policy against the working total.
func (s *WorkdaySession) CreditedBreakTime(asOf time.Time) (int64, error) {
	open, err := s.openInterval(StateOnBreak, asOf)
	if err != nil {
		return 0, err
	}
	if s.state != StateOnBreak {
		return s.breakSeconds, nil
	}
	return s.policy.CreditedBreak(s.workingSeconds, s.rawBreakSeconds+open), nil
}

func (s *WorkdaySession) TotalCreditedTime(asOf time.Time) (int64, error) {
	working, err := s.CreditedWorkingTime(asOf)
	if err != nil {
		return 0, err
	}
	breaking, err := s.CreditedBreakTime(asOf)
	if err != nil {
		return 0, err
	}
	return working + breaking, nil
}

// openInterval returns the credited part of [lastTransitionAt, asOf) when the
// session is in state, and 0 otherwise.
func (s *WorkdaySession) openInterval(state State, asOf time.Time) (int64, error) {
	if err := s.validate(); err != nil {
		return 0, err
	}
	if !s.state.Active() {
		return 0, nil
	}
	if asOf.IsZero() {
		return 0, ErrInvalidTimestamp
	}
	if asOf.Before(s.lastTransitionAt) {
		return 0, fmt.Errorf("%w: %s < %s", ErrOutOfOrder, asOf.UTC().Format(time.RFC3339), s.lastTransitionAt.Format(time.RFC3339))
	}
	if s.state != state {
		return 0, nil
	}
	return CreditedSeconds(s.lastTransitionAt, asOf.UTC(), s.windows), nil
}
