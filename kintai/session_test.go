package kintai

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T, policy BreakPolicy, windows ...ScheduleWindow) *WorkdaySession {
	t.Helper()
	s := NewWorkdaySession(1)
	require.NoError(t, s.StartWorkday(policy, windows))
	return s
}

func mustPolicy(t *testing.T, working, allowed float64) BreakPolicy {
	t.Helper()
	p, err := NewBreakPolicy(working, allowed)
	require.NoError(t, err)
	return p
}

func TestWorkdaySession_SimpleDay(t *testing.T) {
	s := newTestSession(t, mustPolicy(t, 15, 1), mustWindow(t, at(8, 0), at(16, 0)))

	require.NoError(t, s.StartWorking(at(7, 0)))
	require.NoError(t, s.StartBreak(at(9, 0)))
	assert.Equal(t, int64(3600), s.Snapshot().WorkingSeconds)

	require.NoError(t, s.EndBreak(at(9, 15)))
	assert.Equal(t, int64(240), s.Snapshot().BreakSeconds)
	assert.Equal(t, int64(900), s.Snapshot().RawBreakSeconds)

	require.NoError(t, s.StopWorking(at(16, 30)))

	snap := s.Snapshot()
	assert.Equal(t, StateNotWorking, snap.State)
	assert.Equal(t, int64(27900), snap.WorkingSeconds)
	assert.Equal(t, int64(240), snap.BreakSeconds)
	assert.Equal(t, at(16, 30), snap.LastTransitionAt)

	total, err := s.TotalCreditedTime(at(18, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(28140), total)
}

func TestWorkdaySession_OutOfOrderRejected(t *testing.T) {
	s := newTestSession(t, mustPolicy(t, 8, 1))
	require.NoError(t, s.StartWorking(at(10, 0)))

	err := s.StartBreak(at(9, 59))
	assert.ErrorIs(t, err, ErrOutOfOrder)
	assert.Equal(t, StateWorking, s.State())
	last, ok := s.LastTransitionAt()
	assert.True(t, ok)
	assert.Equal(t, at(10, 0), last)
}

func TestWorkdaySession_WrongStateRejected(t *testing.T) {
	s := newTestSession(t, mustPolicy(t, 8, 1))
	before := s.Snapshot()

	err := s.EndBreak(at(9, 0))
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, before, s.Snapshot())
}

func TestWorkdaySession_RejectionNeverMutates(t *testing.T) {
	setups := map[string][]EventKind{
		"not working after stop": {EventStarted, EventFinished},
		"working":                {EventStarted},
		"on break":               {EventStarted, EventOnBreak},
		"working after break":    {EventStarted, EventOnBreak, EventFromBreak},
	}
	for name, kinds := range setups {
		t.Run(name, func(t *testing.T) {
			s := newTestSession(t, mustPolicy(t, 8, 1))
			for i, k := range kinds {
				// the last setup event lands on 10:00
				require.NoError(t, s.Apply(k, at(10, 0).Add(time.Duration(i-len(kinds)+1)*time.Hour)))
			}
			before := s.Snapshot()
			require.Equal(t, at(10, 0), before.LastTransitionAt)

			for _, k := range EventKinds {
				err := s.Apply(k, at(9, 59))
				assert.Error(t, err, "%s should be rejected", k)
				assert.Equal(t, before, s.Snapshot(), "%s mutated the session", k)
			}
		})
	}
}

func TestWorkdaySession_ZeroTimestampRejected(t *testing.T) {
	s := newTestSession(t, mustPolicy(t, 8, 1))
	assert.ErrorIs(t, s.StartWorking(time.Time{}), ErrInvalidTimestamp)
	assert.Equal(t, StateNotWorking, s.State())
}

func TestWorkdaySession_EqualTimestampAccepted(t *testing.T) {
	s := newTestSession(t, mustPolicy(t, 8, 1))
	require.NoError(t, s.StartWorking(at(9, 0)))
	require.NoError(t, s.StartBreak(at(9, 0)))
	require.NoError(t, s.EndBreak(at(9, 0)))
	require.NoError(t, s.StopWorking(at(9, 0)))
	assert.Equal(t, int64(0), s.Snapshot().WorkingSeconds)
	assert.Equal(t, int64(0), s.Snapshot().BreakSeconds)
}

func TestWorkdaySession_BreakClampedAgainstRunningTotal(t *testing.T) {
	s := newTestSession(t, mustPolicy(t, 8, 1))

	require.NoError(t, s.StartWorking(at(8, 0)))
	require.NoError(t, s.StartBreak(at(9, 0)))
	require.NoError(t, s.EndBreak(at(10, 0)))
	// 3600s of work allows 450s of break
	assert.Equal(t, int64(450), s.Snapshot().BreakSeconds)

	require.NoError(t, s.StartBreak(at(17, 0)))
	require.NoError(t, s.EndBreak(at(17, 10)))
	// 8h of work now allows 3600s; raw total is 4200s
	snap := s.Snapshot()
	assert.Equal(t, int64(8*3600), snap.WorkingSeconds)
	assert.Equal(t, int64(4200), snap.RawBreakSeconds)
	assert.Equal(t, int64(3600), snap.BreakSeconds)
}

func TestWorkdaySession_BreakOutsideWindowNotCredited(t *testing.T) {
	s := newTestSession(t, mustPolicy(t, 1, 1), mustWindow(t, at(8, 0), at(12, 0)))

	require.NoError(t, s.StartWorking(at(8, 0)))
	require.NoError(t, s.StartBreak(at(11, 30)))
	require.NoError(t, s.EndBreak(at(13, 0)))
	snap := s.Snapshot()
	assert.Equal(t, int64(3*3600+1800), snap.WorkingSeconds)
	assert.Equal(t, int64(1800), snap.BreakSeconds)
}

func TestWorkdaySession_Queries(t *testing.T) {
	s := newTestSession(t, mustPolicy(t, 8, 1))

	w, err := s.CreditedWorkingTime(at(7, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(0), w)

	require.NoError(t, s.StartWorking(at(8, 0)))
	w, err = s.CreditedWorkingTime(at(9, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(3600), w)

	require.NoError(t, s.StartBreak(at(9, 0)))
	b, err := s.CreditedBreakTime(at(9, 30))
	require.NoError(t, err)
	assert.Equal(t, int64(450), b)
	b, err = s.CreditedBreakTime(at(9, 5))
	require.NoError(t, err)
	assert.Equal(t, int64(300), b)

	w, err = s.CreditedWorkingTime(at(9, 30))
	require.NoError(t, err)
	assert.Equal(t, int64(3600), w, "working time does not grow on break")

	total, err := s.TotalCreditedTime(at(9, 30))
	require.NoError(t, err)
	assert.Equal(t, int64(4050), total)

	_, err = s.CreditedWorkingTime(at(8, 59))
	assert.ErrorIs(t, err, ErrOutOfOrder)
	_, err = s.CreditedBreakTime(at(8, 59))
	assert.ErrorIs(t, err, ErrOutOfOrder)
	_, err = s.TotalCreditedTime(time.Time{})
	assert.ErrorIs(t, err, ErrInvalidTimestamp)
}

func TestWorkdaySession_QueriesDoNotMutate(t *testing.T) {
	s := newTestSession(t, mustPolicy(t, 8, 1))
	require.NoError(t, s.StartWorking(at(8, 0)))
	before := s.Snapshot()

	_, err := s.TotalCreditedTime(at(12, 0))
	require.NoError(t, err)
	assert.Equal(t, before, s.Snapshot())
}

func TestWorkdaySession_InvalidSubject(t *testing.T) {
	for _, id := range []SubjectID{0, -1} {
		s := NewWorkdaySession(id)
		assert.False(t, s.IsValid())
		assert.ErrorIs(t, s.StartWorkday(mustPolicy(t, 8, 1), nil), ErrInvalidSession)
		assert.ErrorIs(t, s.StartWorking(at(8, 0)), ErrInvalidSession)
		_, err := s.CreditedWorkingTime(at(8, 0))
		assert.ErrorIs(t, err, ErrInvalidSession)
		_, err = s.TotalCreditedTime(at(8, 0))
		assert.ErrorIs(t, err, ErrInvalidSubject)
	}
}

func TestWorkdaySession_StartWorkdayFailureLeavesSessionUnchanged(t *testing.T) {
	s := newTestSession(t, mustPolicy(t, 8, 1), mustWindow(t, at(8, 0), at(16, 0)))
	require.NoError(t, s.StartWorking(at(9, 0)))
	before := s.Snapshot()

	assert.ErrorIs(t, s.StartWorkday(BreakPolicy{}, nil), ErrInvalidPolicy)
	assert.ErrorIs(t, s.StartWorkday(mustPolicy(t, 8, 1), []ScheduleWindow{{}}), ErrInvalidWindow)
	assert.Equal(t, before, s.Snapshot())
	assert.Len(t, s.Windows(), 1)
}

func TestWorkdaySession_StartWorkdayResets(t *testing.T) {
	s := newTestSession(t, mustPolicy(t, 8, 1))
	require.NoError(t, s.StartWorking(at(8, 0)))
	require.NoError(t, s.StopWorking(at(12, 0)))

	next := mustPolicy(t, 4, 1)
	require.NoError(t, s.StartWorkday(next, []ScheduleWindow{mustWindow(t, at(9, 0), at(10, 0))}))
	snap := s.Snapshot()
	assert.Equal(t, StateNotWorking, snap.State)
	assert.True(t, snap.LastTransitionAt.IsZero())
	assert.Zero(t, snap.WorkingSeconds)
	assert.Zero(t, snap.BreakSeconds)
	assert.Equal(t, next, s.Policy())

	// earlier timestamps are fine again after a reset
	require.NoError(t, s.StartWorking(at(8, 0)))
}

func TestWorkdaySession_WindowsAreCopied(t *testing.T) {
	windows := []ScheduleWindow{mustWindow(t, at(8, 0), at(9, 0))}
	s := newTestSession(t, mustPolicy(t, 8, 1), windows...)
	windows[0] = mustWindow(t, at(0, 0), at(23, 0))

	require.NoError(t, s.StartWorking(at(7, 0)))
	require.NoError(t, s.StopWorking(at(12, 0)))
	assert.Equal(t, int64(3600), s.Snapshot().WorkingSeconds)
}

func TestWorkdaySession_MonotonicCountersAndPolicyCap(t *testing.T) {
	policy := mustPolicy(t, 15, 1)
	s := newTestSession(t, policy,
		mustWindow(t, at(8, 0), at(12, 0)),
		mustWindow(t, at(11, 0), at(18, 0)),
	)
	rnd := rand.New(rand.NewSource(1))
	now := at(6, 0)

	prev := s.Snapshot()
	for i := 0; i < 2000; i++ {
		now = now.Add(time.Duration(rnd.Intn(1800)) * time.Second)
		kind := EventKinds[rnd.Intn(len(EventKinds))]
		ts := now
		if rnd.Intn(10) == 0 {
			ts = now.Add(-time.Minute)
		}
		_ = s.Apply(kind, ts)

		snap := s.Snapshot()
		assert.GreaterOrEqual(t, snap.WorkingSeconds, prev.WorkingSeconds)
		assert.GreaterOrEqual(t, snap.BreakSeconds, prev.BreakSeconds)
		assert.LessOrEqual(t, snap.BreakSeconds, policy.Limit(snap.WorkingSeconds))
		if snap.LastTransitionAt.After(now) {
			t.Fatalf("last transition %s is after %s", snap.LastTransitionAt, now)
		}
		prev = snap
	}
}

func TestWorkdaySession_Apply(t *testing.T) {
	s := newTestSession(t, mustPolicy(t, 8, 1))
	require.NoError(t, s.Apply(EventStarted, at(8, 0)))
	assert.Equal(t, StateWorking, s.State())
	require.NoError(t, s.Apply(EventOnBreak, at(9, 0)))
	assert.Equal(t, StateOnBreak, s.State())
	require.NoError(t, s.Apply(EventFromBreak, at(9, 10)))
	assert.Equal(t, StateWorking, s.State())
	require.NoError(t, s.Apply(EventFinished, at(12, 0)))
	assert.Equal(t, StateNotWorking, s.State())

	assert.ErrorIs(t, s.Apply(EventKind("Lunch"), at(13, 0)), ErrUnknownEventKind)
}

func TestParseEventKind(t *testing.T) {
	k, err := ParseEventKind("frombreak")
	require.NoError(t, err)
	assert.Equal(t, EventFromBreak, k)

	_, err = ParseEventKind("resume")
	assert.ErrorIs(t, err, ErrUnknownEventKind)
}
