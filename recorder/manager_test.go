package recorder

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kintai/kintai"
)

type notification struct {
	title, message string
}

type fakeNotificator struct {
	sent []notification
}

func (n *fakeNotificator) Notify(title, message string) error {
	n.sent = append(n.sent, notification{title: title, message: message})
	return nil
}

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Set(s string) { c.now = ts(s) }

func newTestManager(t *testing.T, opts MonitorOptions) (*Manager, Recorder, *testClock, *fakeNotificator) {
	t.Helper()
	r, _ := newTestRecorder(t)
	n := &fakeNotificator{}
	m := NewManager(r, nil, n, discardLogger(), 1, opts)
	clock := &testClock{}
	m.now = clock.Now
	return m, r, clock, n
}

func TestManager_ActivityAndInactivity(t *testing.T) {
	ctx := context.Background()
	m, r, clock, n := newTestManager(t, MonitorOptions{
		PollingInterval:    time.Minute,
		StartBreakAfter:    5 * time.Minute,
		FinishWorkingAfter: time.Hour,
	})

	status := func() DayReport {
		st, err := r.Status(ctx, 1, clock.Now())
		require.NoError(t, err)
		return st
	}

	clock.Set("2024-03-01T09:00:00Z")
	require.NoError(t, m.HandleActivity(ctx))
	assert.Equal(t, kintai.StateWorking, status().State)

	clock.Set("2024-03-01T09:30:00Z")
	require.NoError(t, m.HandleActivity(ctx))

	clock.Set("2024-03-01T09:33:00Z")
	require.NoError(t, m.Poll(ctx))
	assert.Equal(t, kintai.StateWorking, status().State)

	clock.Set("2024-03-01T09:40:00Z")
	require.NoError(t, m.Poll(ctx))
	st := status()
	assert.Equal(t, kintai.StateOnBreak, st.State)
	assert.True(t, st.LastTransitionAt.Equal(ts("2024-03-01T09:30:00Z")), "the break starts at the last activity")
	assert.Equal(t, int64(1800), st.WorkingSeconds)

	clock.Set("2024-03-01T09:50:00Z")
	require.NoError(t, m.HandleActivity(ctx))
	st = status()
	assert.Equal(t, kintai.StateWorking, st.State)
	// 20 minutes of break against 30 minutes of work at 1/8
	assert.Equal(t, int64(225), st.BreakSeconds)

	clock.Set("2024-03-01T11:00:00Z")
	require.NoError(t, m.Poll(ctx))
	assert.Equal(t, kintai.StateOnBreak, status().State)

	require.NoError(t, m.Poll(ctx))
	st = status()
	assert.Equal(t, kintai.StateNotWorking, st.State)
	// both idle periods are backdated to 09:50, so nothing after it is credited
	assert.Equal(t, int64(1800), st.WorkingSeconds)
	assert.Equal(t, int64(225), st.BreakSeconds)
	assert.True(t, st.LastTransitionAt.Equal(ts("2024-03-01T09:50:00Z")))

	titles := make([]string, 0, len(n.sent))
	for _, s := range n.sent {
		titles = append(titles, s.title)
	}
	assert.Equal(t, []string{"労働開始", "休憩開始", "休憩終了", "休憩開始", "労働終了"}, titles)
}

func TestManager_FinishesOvernight(t *testing.T) {
	ctx := context.Background()
	m, r, clock, _ := newTestManager(t, MonitorOptions{
		PollingInterval:    time.Minute,
		StartBreakAfter:    24 * time.Hour,
		FinishWorkingAfter: 24 * time.Hour,
	})

	clock.Set("2024-03-01T23:00:00Z")
	require.NoError(t, m.HandleActivity(ctx))
	clock.Set("2024-03-02T03:59:00Z")
	require.NoError(t, m.HandleActivity(ctx))

	// still before the next day start
	clock.Set("2024-03-02T03:59:59Z")
	require.NoError(t, m.Poll(ctx))
	st, err := r.Status(ctx, 1, clock.Now())
	require.NoError(t, err)
	assert.Equal(t, kintai.StateWorking, st.State)

	clock.Set("2024-03-02T04:01:00Z")
	require.NoError(t, m.Poll(ctx))

	rep, err := r.Report(ctx, 1, "2024-03-01", clock.Now())
	require.NoError(t, err)
	assert.Equal(t, kintai.StateNotWorking, rep.State)
	assert.Equal(t, int64(4*3600+59*60), rep.WorkingSeconds)
}

func TestManager_PollWithoutActivity(t *testing.T) {
	ctx := context.Background()
	m, r, clock, n := newTestManager(t, MonitorOptions{
		PollingInterval:    time.Minute,
		StartBreakAfter:    5 * time.Minute,
		FinishWorkingAfter: time.Hour,
	})

	clock.Set("2024-03-01T09:00:00Z")
	require.NoError(t, m.Poll(ctx))
	assert.Empty(t, n.sent)

	// a day started by another process is measured from its last transition
	_, err := r.Record(ctx, 1, kintai.EventStarted, ts("2024-03-01T09:00:00Z"))
	require.NoError(t, err)
	clock.Set("2024-03-01T09:10:00Z")
	require.NoError(t, m.Poll(ctx))

	st, err := r.Status(ctx, 1, clock.Now())
	require.NoError(t, err)
	assert.Equal(t, kintai.StateOnBreak, st.State)
	assert.Zero(t, st.WorkingSeconds)
}

func TestManager_KansiStopsOnCancel(t *testing.T) {
	m, _, clock, _ := newTestManager(t, MonitorOptions{
		PollingInterval:    time.Millisecond,
		StartBreakAfter:    time.Hour,
		FinishWorkingAfter: time.Hour,
	})
	clock.Set("2024-03-01T09:00:00Z")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.NoError(t, m.Kansi(ctx))
}
