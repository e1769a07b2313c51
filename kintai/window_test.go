package kintai

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func at(hour, min int) time.Time {
	return day.Add(time.Duration(hour)*time.Hour + time.Duration(min)*time.Minute)
}

func sec(n int) time.Time {
	return day.Add(time.Duration(n) * time.Second)
}

func mustWindow(t *testing.T, start, end time.Time) ScheduleWindow {
	t.Helper()
	w, err := NewScheduleWindow(start, end)
	require.NoError(t, err)
	return w
}

func TestNewScheduleWindow(t *testing.T) {
	w := mustWindow(t, at(8, 0), at(16, 0))
	assert.True(t, w.IsValid())
	assert.Equal(t, at(8, 0), w.Start())
	assert.Equal(t, at(16, 0), w.End())
}

func TestNewScheduleWindow_Invalid(t *testing.T) {
	_, err := NewScheduleWindow(at(16, 0), at(8, 0))
	assert.ErrorIs(t, err, ErrInvalidWindow)

	_, err = NewScheduleWindow(at(8, 0), at(8, 0))
	assert.ErrorIs(t, err, ErrInvalidWindow)

	_, err = NewScheduleWindow(time.Time{}, at(8, 0))
	assert.ErrorIs(t, err, ErrInvalidWindow)

	assert.False(t, ScheduleWindow{}.IsValid())
}

func TestNewScheduleWindow_NormalizesToUTC(t *testing.T) {
	jst := time.FixedZone("JST", 9*60*60)
	w := mustWindow(t, time.Date(2024, 3, 1, 17, 0, 0, 0, jst), time.Date(2024, 3, 1, 18, 0, 0, 0, jst))
	assert.Equal(t, time.UTC, w.Start().Location())
	assert.Equal(t, at(8, 0), w.Start())
}

func TestScheduleWindow_Overlap(t *testing.T) {
	w := mustWindow(t, at(8, 0), at(16, 0))

	s, e, ok := w.Overlap(at(7, 0), at(9, 0))
	require.True(t, ok)
	assert.Equal(t, at(8, 0), s)
	assert.Equal(t, at(9, 0), e)

	s, e, ok = w.Overlap(at(9, 0), at(10, 0))
	require.True(t, ok)
	assert.Equal(t, at(9, 0), s)
	assert.Equal(t, at(10, 0), e)

	s, e, ok = w.Overlap(at(6, 0), at(17, 0))
	require.True(t, ok)
	assert.Equal(t, at(8, 0), s)
	assert.Equal(t, at(16, 0), e)

	_, _, ok = w.Overlap(at(16, 0), at(17, 0))
	assert.False(t, ok, "end is exclusive")

	_, _, ok = w.Overlap(at(6, 0), at(8, 0))
	assert.False(t, ok)
}
