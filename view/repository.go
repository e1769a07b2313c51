package view

import (
	"context"
	"errors"
	"time"

	"kintai/kintai"
	"kintai/recorder"
)

var ErrInvalidMonth = errors.New("月の指定が不正です ex: 2024-03")

type ViewRepository interface {
	ListReports(ctx context.Context, subject kintai.SubjectID, yearMonth string) (MonthView, error)
}

type viewRepository struct {
	recorder recorder.Recorder
	loc      *time.Location
	now      func() time.Time
}

func NewViewRepository(rec recorder.Recorder, loc *time.Location) ViewRepository {
	if loc == nil {
		loc = time.UTC
	}
	return &viewRepository{recorder: rec, loc: loc, now: time.Now}
}

// ListReports replays every workday of the month. Days still open are
// evaluated up to now, or to the end of the day for past dates.
func (r *viewRepository) ListReports(ctx context.Context, subject kintai.SubjectID, yearMonth string) (MonthView, error) {
	monthStart, monthEnd, err := getMonthStartEnd(yearMonth)
	if err != nil {
		return nil, err
	}

	now := r.now()
	var days MonthView
	for d := monthStart; !d.After(monthEnd); d = d.AddDate(0, 0, 1) {
		date := kintai.Date(d.Format(kintai.DateLayout))
		_, end, err := r.recorder.Bounds(date)
		if err != nil {
			return nil, err
		}
		asOf := end
		if now.Before(end) {
			asOf = now
		}
		rep, err := r.recorder.Report(ctx, subject, date, asOf)
		if err != nil {
			return nil, err
		}
		days = append(days, DayView{
			Date:   date,
			Report: rep,
			Spans:  buildSpans(rep.Events, r.loc),
		})
	}
	return days, nil
}

func getMonthStartEnd(yearMonth string) (time.Time, time.Time, error) {
	monthStart, err := time.Parse("2006-01", yearMonth)
	if err != nil {
		return time.Time{}, time.Time{}, ErrInvalidMonth
	}
	monthEnd := monthStart.AddDate(0, 1, 0).AddDate(0, 0, -1)
	return monthStart, monthEnd, nil
}
