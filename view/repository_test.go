package view

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/buntdb"

	"kintai/kintai"
	"kintai/recorder"
)

type nopLocker struct{}

func (nopLocker) Lock() error   { return nil }
func (nopLocker) Unlock() error { return nil }

func newTestRecorder(t *testing.T) recorder.Recorder {
	t.Helper()
	db, err := buntdb.Open(":memory:")
	require.NoError(t, err)
	repo, err := recorder.NewBuntRepository(db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	require.NoError(t, repo.SaveSubject(context.Background(), recorder.Subject{ID: 1, Name: "tanaka"}))

	rec, err := recorder.NewRecorder(repo, slog.New(slog.NewTextHandler(io.Discard, nil)), nopLocker{}, recorder.Options{
		ShiftDuration: 5 * time.Hour,
		Location:      time.UTC,
		WorkingHours:  8,
		BreakHours:    1,
	})
	require.NoError(t, err)
	return rec
}

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func recordAll(t *testing.T, rec recorder.Recorder, events ...string) {
	t.Helper()
	for i := 0; i+1 < len(events); i += 2 {
		_, err := rec.Record(context.Background(), 1, kintai.EventKind(events[i]), ts(events[i+1]))
		require.NoError(t, err)
	}
}

func newTestViewRepository(rec recorder.Recorder, now string) *viewRepository {
	return &viewRepository{recorder: rec, loc: time.UTC, now: func() time.Time { return ts(now) }}
}

func TestViewRepository_ListReports(t *testing.T) {
	rec := newTestRecorder(t)
	recordAll(t, rec,
		"Started", "2024-03-01T09:00:00Z",
		"OnBreak", "2024-03-01T12:00:00Z",
		"FromBreak", "2024-03-01T13:00:00Z",
		"Finished", "2024-03-01T18:00:00Z",
		"Started", "2024-03-04T22:00:00Z",
		"Finished", "2024-03-05T02:00:00Z",
		"Started", "2024-03-29T09:00:00Z",
	)

	days, err := newTestViewRepository(rec, "2024-03-29T10:30:00Z").ListReports(context.Background(), 1, "2024-03")
	require.NoError(t, err)
	require.Len(t, days, 31)

	d := days.FindByDate("2024-03-01")
	require.NotNil(t, d)
	assert.Equal(t, int64(8*3600), d.Report.WorkingSeconds)
	// the hour of break is capped against the 3h worked before it
	assert.Equal(t, int64(1350), d.Report.BreakSeconds)
	require.Len(t, d.Spans, 1)
	require.Len(t, d.Spans[0].Breaks, 1)
	assert.Equal(t, "18:00", ptrTimeToString(d.Spans[0].EndAt))
	assert.Equal(t, "13:00", ptrTimeToString(d.Spans[0].Breaks[0].EndAt))

	overnight := days.FindByDate("2024-03-04")
	require.NotNil(t, overnight)
	assert.Equal(t, int64(4*3600), overnight.Report.WorkingSeconds)
	assert.Empty(t, days.FindByDate("2024-03-05").Spans)

	open := days.FindByDate("2024-03-29")
	assert.Equal(t, kintai.StateWorking, open.Report.State)
	assert.Equal(t, int64(5400), open.Report.WorkingSeconds)
	assert.Nil(t, open.Spans[0].EndAt)

	working, breaking := days.Totals()
	assert.Equal(t, int64(8*3600+4*3600+5400), working)
	assert.Equal(t, int64(1350), breaking)
}

func TestViewRepository_OpenPastDayEndsAtDayBoundary(t *testing.T) {
	rec := newTestRecorder(t)
	recordAll(t, rec, "Started", "2024-03-01T09:00:00Z")

	days, err := newTestViewRepository(rec, "2024-04-10T00:00:00Z").ListReports(context.Background(), 1, "2024-03")
	require.NoError(t, err)
	// the workday of 03-01 ends at 05:00 on 03-02
	assert.Equal(t, int64(20*3600), days.FindByDate("2024-03-01").Report.WorkingSeconds)
}

func TestViewRepository_InvalidMonth(t *testing.T) {
	_, err := NewViewRepository(newTestRecorder(t), nil).ListReports(context.Background(), 1, "March")
	assert.ErrorIs(t, err, ErrInvalidMonth)
}

func TestMonthView_Flatten(t *testing.T) {
	end := ts("2024-03-01T18:00:00Z")
	m := MonthView{
		{Date: "2024-03-01", Spans: []Span{{
			StartAt: ts("2024-03-01T09:00:00Z"),
			EndAt:   &end,
			Breaks: []Break{
				{StartAt: ts("2024-03-01T12:00:00Z")},
				{StartAt: ts("2024-03-01T15:00:00Z")},
			},
		}}},
		{Date: "2024-03-02"},
		{Date: "2024-03-03", Spans: []Span{{StartAt: ts("2024-03-03T09:00:00Z")}}},
	}

	rows := m.Flatten()
	require.Len(t, rows, 4)
	assert.NotNil(t, rows[0].Break)
	assert.Equal(t, rows[0].Span, rows[1].Span)
	assert.Nil(t, rows[2].Span)
	assert.Equal(t, kintai.Date("2024-03-02"), rows[2].Date)
	assert.NotNil(t, rows[3].Span)
	assert.Nil(t, rows[3].Break)
}

func TestBuildSpans(t *testing.T) {
	jst := time.FixedZone("JST", 9*3600)
	events := []recorder.Event{
		{Kind: kintai.EventStarted, At: ts("2024-03-01T00:00:00Z")},
		{Kind: kintai.EventOnBreak, At: ts("2024-03-01T03:00:00Z")},
		{Kind: kintai.EventFromBreak, At: ts("2024-03-01T04:00:00Z")},
		{Kind: kintai.EventFinished, At: ts("2024-03-01T09:00:00Z")},
		{Kind: kintai.EventStarted, At: ts("2024-03-01T10:00:00Z")},
	}

	spans := buildSpans(events, jst)
	require.Len(t, spans, 2)
	assert.Equal(t, "09:00", spans[0].StartAt.Format("15:04"))
	assert.Equal(t, "18:00", ptrTimeToString(spans[0].EndAt))
	require.Len(t, spans[0].Breaks, 1)
	assert.Equal(t, "13:00", ptrTimeToString(spans[0].Breaks[0].EndAt))
	assert.Nil(t, spans[1].EndAt)
}
