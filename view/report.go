package view

import (
	"time"

	"kintai/kintai"
	"kintai/recorder"
)

// Span is one stretch of work between Started and Finished as recorded,
// before any window clipping or break cap.
type Span struct {
	StartAt time.Time
	EndAt   *time.Time
	Breaks  []Break
}

type Break struct {
	StartAt time.Time
	EndAt   *time.Time
}

// DayView pairs the credited totals of a workday with its recorded spans.
type DayView struct {
	Date   kintai.Date
	Report recorder.DayReport
	Spans  []Span
}

// buildSpans folds an accepted event sequence into spans. Events come from a
// successful replay, so each kind only appears in the state that allows it.
func buildSpans(events []recorder.Event, loc *time.Location) []Span {
	var spans []Span
	for _, e := range events {
		at := e.At.In(loc)
		switch e.Kind {
		case kintai.EventStarted:
			spans = append(spans, Span{StartAt: at})
		case kintai.EventOnBreak:
			if len(spans) == 0 {
				continue
			}
			s := &spans[len(spans)-1]
			s.Breaks = append(s.Breaks, Break{StartAt: at})
		case kintai.EventFromBreak:
			if len(spans) == 0 || len(spans[len(spans)-1].Breaks) == 0 {
				continue
			}
			bs := spans[len(spans)-1].Breaks
			bs[len(bs)-1].EndAt = timePtr(at)
		case kintai.EventFinished:
			if len(spans) == 0 {
				continue
			}
			spans[len(spans)-1].EndAt = timePtr(at)
		}
	}
	return spans
}

type MonthView []DayView

func (m MonthView) FindByDate(date kintai.Date) *DayView {
	for i := range m {
		if m[i].Date == date {
			return &m[i]
		}
	}
	return nil
}

// Totals sums the credited working and break seconds of the month.
func (m MonthView) Totals() (working, breaking int64) {
	for _, d := range m {
		working += d.Report.WorkingSeconds
		breaking += d.Report.BreakSeconds
	}
	return working, breaking
}

type flatRow struct {
	Date  kintai.Date
	Span  *Span
	Break *Break
}

// Flatten lists one row per break, one per span without breaks and one per empty day.
func (m MonthView) Flatten() []flatRow {
	rows := make([]flatRow, 0, len(m))
	for _, d := range m {
		if len(d.Spans) == 0 {
			rows = append(rows, flatRow{Date: d.Date})
		}
		for i := range d.Spans {
			s := &d.Spans[i]
			if len(s.Breaks) == 0 {
				rows = append(rows, flatRow{Date: d.Date, Span: s})
			}
			for j := range s.Breaks {
				rows = append(rows, flatRow{Date: d.Date, Span: s, Break: &s.Breaks[j]})
			}
		}
	}
	return rows
}

func timePtr(t time.Time) *time.Time {
	return &t
}
