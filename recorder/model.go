package recorder

import (
	"fmt"
	"time"

	"kintai/kintai"
)

type Subject struct {
	ID        kintai.SubjectID `json:"id"`
	Name      string           `json:"name"`
	CreatedAt time.Time        `json:"created_at"`
}

type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Workday is the schedule and break policy configured for one subject on one date.
type Workday struct {
	SubjectID    kintai.SubjectID `json:"subject_id"`
	Date         kintai.Date      `json:"date"`
	WorkingHours float64          `json:"working_hours"`
	BreakHours   float64          `json:"break_hours"`
	Windows      []Window         `json:"windows"`
}

func (w Workday) Policy() (kintai.BreakPolicy, error) {
	return kintai.NewBreakPolicy(w.WorkingHours, w.BreakHours)
}

func (w Workday) ScheduleWindows() ([]kintai.ScheduleWindow, error) {
	windows := make([]kintai.ScheduleWindow, 0, len(w.Windows))
	for _, win := range w.Windows {
		sw, err := kintai.NewScheduleWindow(win.Start, win.End)
		if err != nil {
			return nil, err
		}
		windows = append(windows, sw)
	}
	return windows, nil
}

func (w Workday) Validate() error {
	if w.SubjectID < 1 {
		return kintai.ErrInvalidSubject
	}
	if _, err := kintai.ParseDate(string(w.Date)); err != nil {
		return fmt.Errorf("invalid date %q: %w", w.Date, err)
	}
	if _, err := w.Policy(); err != nil {
		return err
	}
	_, err := w.ScheduleWindows()
	return err
}

type Event struct {
	ID         string           `json:"id"`
	SubjectID  kintai.SubjectID `json:"subject_id"`
	Date       kintai.Date      `json:"date"`
	Kind       kintai.EventKind `json:"kind"`
	At         time.Time        `json:"at"`
	RecordedAt time.Time        `json:"recorded_at"`
}

// DayReport is the replayed state of one subject's workday.
type DayReport struct {
	SubjectID         kintai.SubjectID
	Date              kintai.Date
	Workday           *Workday
	Events            []Event
	AsOf              time.Time
	State             kintai.State
	LastTransitionAt  time.Time
	WorkingSeconds    int64
	BreakSeconds      int64
	RawBreakSeconds   int64
	BreakLimitSeconds int64
}

func (d DayReport) TotalSeconds() int64 {
	return d.WorkingSeconds + d.BreakSeconds
}
