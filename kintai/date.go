package kintai

import "time"

// WorkdayTime is an instant viewed through a workday boundary that is shifted
// past midnight, so that late-night work still belongs to the previous day.
type WorkdayTime struct {
	t             time.Time
	shiftDuration time.Duration
	loc           *time.Location
}

func NewWorkdayTime(t time.Time, shiftDuration time.Duration, loc *time.Location) WorkdayTime {
	if loc == nil {
		loc = time.UTC
	}
	return WorkdayTime{t: t, shiftDuration: shiftDuration, loc: loc}
}

func (wt WorkdayTime) ShiftedDate() Date {
	return Date(wt.t.In(wt.loc).Add(-wt.shiftDuration).Format(DateLayout))
}

// DayStart returns the instant the workday containing t begins.
func (wt WorkdayTime) DayStart() time.Time {
	d, _ := wt.ShiftedDate().Midnight(wt.loc)
	return d.Add(wt.shiftDuration)
}

func (wt WorkdayTime) IsOvernight(before WorkdayTime) bool {
	return wt.ShiftedDate() != before.ShiftedDate()
}

const DateLayout = "2006-01-02"

type Date string

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return "", err
	}
	return Date(t.Format(DateLayout)), nil
}

// Midnight returns 00:00 of the date in loc.
func (d Date) Midnight(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	return time.ParseInLocation(DateLayout, string(d), loc)
}
