package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"kintai/kintai"
)

// Locker is satisfied by *filemutex.FileMutex.
type Locker interface {
	Lock() error
	Unlock() error
}

type Recorder interface {
	RegisterSubject(ctx context.Context, s Subject) error
	RemoveSubject(ctx context.Context, id kintai.SubjectID) error
	Subject(ctx context.Context, id kintai.SubjectID) (Subject, error)
	Subjects(ctx context.Context) ([]Subject, error)

	// SetWorkday and Record fail with ErrNotFound for unregistered subjects.
	SetWorkday(ctx context.Context, w Workday) error
	Record(ctx context.Context, id kintai.SubjectID, kind kintai.EventKind, at time.Time) (kintai.Snapshot, error)
	// RemoveEvent deletes one event if the remaining events of its workday still replay.
	RemoveEvent(ctx context.Context, id kintai.SubjectID, date kintai.Date, eventID string) (kintai.Snapshot, error)

	// Report replays a workday and evaluates it as of asOf.
	Report(ctx context.Context, id kintai.SubjectID, date kintai.Date, asOf time.Time) (DayReport, error)
	// Status reports the workday that t belongs to, or the previous one if it is still open.
	Status(ctx context.Context, id kintai.SubjectID, t time.Time) (DayReport, error)

	WorkdayTime(t time.Time) kintai.WorkdayTime
	DateOf(t time.Time) kintai.Date
	Bounds(date kintai.Date) (time.Time, time.Time, error)
	// ClockOn resolves a wall clock "HH:MM" within the workday of date.
	ClockOn(date kintai.Date, clock string) (time.Time, error)
}

type Options struct {
	ShiftDuration time.Duration
	Location      *time.Location
	WorkingHours  float64
	BreakHours    float64
}

func NewRecorder(repo Repository, logger *slog.Logger, fm Locker, opts Options) (Recorder, error) {
	policy, err := kintai.NewBreakPolicy(opts.WorkingHours, opts.BreakHours)
	if err != nil {
		return nil, fmt.Errorf("default policy: %w", err)
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &recorder{
		repo:          repo,
		fm:            fm,
		logger:        logger,
		shiftDuration: opts.ShiftDuration,
		loc:           opts.Location,
		defaultPolicy: policy,
	}, nil
}

type recorder struct {
	repo          Repository
	fm            Locker
	logger        *slog.Logger
	shiftDuration time.Duration
	loc           *time.Location
	defaultPolicy kintai.BreakPolicy

	// mu is held for as long as fm, so one goroutine at a time owns the file lock.
	mu sync.Mutex
}

// lock serializes every store access within the process and across processes.
func (r *recorder) lock() (func(), error) {
	r.mu.Lock()
	if err := r.fm.Lock(); err != nil {
		r.mu.Unlock()
		return nil, fmt.Errorf("lock: %w", err)
	}
	return func() {
		if err := r.fm.Unlock(); err != nil {
			r.logger.Error("unlock", slog.Any("err", err))
		}
		r.mu.Unlock()
	}, nil
}

func (r *recorder) WorkdayTime(t time.Time) kintai.WorkdayTime {
	return kintai.NewWorkdayTime(t, r.shiftDuration, r.loc)
}

func (r *recorder) DateOf(t time.Time) kintai.Date {
	return r.WorkdayTime(t).ShiftedDate()
}

func (r *recorder) Bounds(date kintai.Date) (time.Time, time.Time, error) {
	midnight, err := date.Midnight(r.loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start := r.WorkdayTime(midnight.Add(r.shiftDuration)).DayStart()
	end := r.WorkdayTime(start.AddDate(0, 0, 1)).DayStart()
	return start, end, nil
}

// ClockOn places clock on the calendar day of date, or on the following day
// when the clock falls before the shifted start of the workday.
func (r *recorder) ClockOn(date kintai.Date, clock string) (time.Time, error) {
	c, err := time.Parse("15:04", clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("時刻の形式が不正です ex: 09:30: %w", err)
	}
	start, _, err := r.Bounds(date)
	if err != nil {
		return time.Time{}, err
	}
	midnight, _ := date.Midnight(r.loc)
	t := time.Date(midnight.Year(), midnight.Month(), midnight.Day(), c.Hour(), c.Minute(), 0, 0, r.loc)
	if t.Before(start) {
		t = t.AddDate(0, 0, 1)
	}
	return t, nil
}

func (r *recorder) RegisterSubject(ctx context.Context, s Subject) error {
	unlock, err := r.lock()
	if err != nil {
		return err
	}
	defer unlock()

	if err := r.repo.SaveSubject(ctx, s); err != nil {
		return err
	}
	r.logger.Debug("register subject", slog.Int64("subject", int64(s.ID)), slog.String("name", s.Name))
	return nil
}

func (r *recorder) RemoveSubject(ctx context.Context, id kintai.SubjectID) error {
	unlock, err := r.lock()
	if err != nil {
		return err
	}
	defer unlock()

	if err := r.repo.DeleteSubject(ctx, id); err != nil {
		return err
	}
	r.logger.Debug("remove subject", slog.Int64("subject", int64(id)))
	return nil
}

func (r *recorder) Subject(ctx context.Context, id kintai.SubjectID) (Subject, error) {
	unlock, err := r.lock()
	if err != nil {
		return Subject{}, err
	}
	defer unlock()

	return r.repo.GetSubject(ctx, id)
}

func (r *recorder) Subjects(ctx context.Context) ([]Subject, error) {
	unlock, err := r.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	return r.repo.ListSubjects(ctx)
}

// ensureSubject must be called with the lock held.
func (r *recorder) ensureSubject(ctx context.Context, id kintai.SubjectID) error {
	if id < 1 {
		return fmt.Errorf("%w: subject %d", kintai.ErrInvalidSubject, id)
	}
	_, err := r.repo.GetSubject(ctx, id)
	return err
}

func (r *recorder) SetWorkday(ctx context.Context, w Workday) error {
	if err := w.Validate(); err != nil {
		return err
	}
	unlock, err := r.lock()
	if err != nil {
		return err
	}
	defer unlock()

	if err := r.ensureSubject(ctx, w.SubjectID); err != nil {
		return err
	}

	// stored events must still replay under the new configuration
	if _, _, err := r.replayWith(ctx, w.SubjectID, w.Date, &w); err != nil {
		return err
	}
	if err := r.repo.SaveWorkday(ctx, w); err != nil {
		return err
	}
	r.logger.Debug("set workday",
		slog.Int64("subject", int64(w.SubjectID)),
		slog.String("date", string(w.Date)),
		slog.Float64("working_hours", w.WorkingHours),
		slog.Float64("break_hours", w.BreakHours),
		slog.Int("windows", len(w.Windows)),
	)
	return nil
}

func (r *recorder) Record(ctx context.Context, id kintai.SubjectID, kind kintai.EventKind, at time.Time) (kintai.Snapshot, error) {
	if err := kind.Validate(); err != nil {
		return kintai.Snapshot{}, err
	}
	unlock, err := r.lock()
	if err != nil {
		return kintai.Snapshot{}, err
	}
	defer unlock()

	if err := r.ensureSubject(ctx, id); err != nil {
		return kintai.Snapshot{}, err
	}
	date, err := r.resolveDate(ctx, id, kind, at)
	if err != nil {
		return kintai.Snapshot{}, err
	}
	s, _, err := r.replay(ctx, id, date)
	if err != nil {
		return kintai.Snapshot{}, err
	}
	if err := s.Apply(kind, at); err != nil {
		r.logger.Warn("reject event",
			slog.Int64("subject", int64(id)),
			slog.String("kind", string(kind)),
			slog.Time("at", at),
			slog.Any("err", err),
		)
		return kintai.Snapshot{}, fmt.Errorf("record %s for subject %d: %w", kind, id, err)
	}

	e := Event{SubjectID: id, Date: date, Kind: kind, At: at}
	if err := r.repo.AppendEvent(ctx, &e); err != nil {
		return kintai.Snapshot{}, err
	}

	snap := s.Snapshot()
	r.logger.Debug("record event",
		slog.Int64("subject", int64(id)),
		slog.String("date", string(date)),
		slog.String("kind", string(kind)),
		slog.Time("at", e.At),
		slog.String("state", string(snap.State)),
		slog.Int64("working_seconds", snap.WorkingSeconds),
		slog.Int64("break_seconds", snap.BreakSeconds),
	)
	return snap, nil
}

func (r *recorder) RemoveEvent(ctx context.Context, id kintai.SubjectID, date kintai.Date, eventID string) (kintai.Snapshot, error) {
	unlock, err := r.lock()
	if err != nil {
		return kintai.Snapshot{}, err
	}
	defer unlock()

	w, err := r.repo.GetWorkday(ctx, id, date)
	if err != nil {
		return kintai.Snapshot{}, err
	}
	policy, windows, err := r.configOf(w)
	if err != nil {
		return kintai.Snapshot{}, err
	}
	events, err := r.repo.ListEvents(ctx, id, date)
	if err != nil {
		return kintai.Snapshot{}, err
	}

	s := kintai.NewWorkdaySession(id)
	if err := s.StartWorkday(policy, windows); err != nil {
		return kintai.Snapshot{}, err
	}
	var removed *Event
	for i := range events {
		e := events[i]
		if e.ID == eventID {
			removed = &e
			continue
		}
		if err := s.Apply(e.Kind, e.At); err != nil {
			r.logger.Warn("reject event removal",
				slog.Int64("subject", int64(id)),
				slog.String("date", string(date)),
				slog.String("event", eventID),
				slog.Any("err", err),
			)
			return kintai.Snapshot{}, fmt.Errorf("remove event %s: %s at %s no longer applies: %w", eventID, e.Kind, e.At.Format(time.RFC3339), err)
		}
	}
	if removed == nil {
		return kintai.Snapshot{}, fmt.Errorf("event %s: %w", eventID, ErrNotFound)
	}

	if err := r.repo.DeleteEvent(ctx, id, date, eventID); err != nil {
		return kintai.Snapshot{}, err
	}
	snap := s.Snapshot()
	r.logger.Debug("remove event",
		slog.Int64("subject", int64(id)),
		slog.String("date", string(date)),
		slog.String("kind", string(removed.Kind)),
		slog.Time("at", removed.At),
		slog.String("state", string(snap.State)),
	)
	return snap, nil
}

// resolveDate picks the workday an event belongs to. Anything but Started
// continues the previous workday while that one is still open.
func (r *recorder) resolveDate(ctx context.Context, id kintai.SubjectID, kind kintai.EventKind, at time.Time) (kintai.Date, error) {
	date := r.DateOf(at)
	if kind == kintai.EventStarted {
		return date, nil
	}
	return r.openDate(ctx, id, date)
}

func (r *recorder) openDate(ctx context.Context, id kintai.SubjectID, date kintai.Date) (kintai.Date, error) {
	s, events, err := r.replay(ctx, id, date)
	if err != nil {
		return "", err
	}
	if s.State().Active() || len(events) > 0 {
		return date, nil
	}

	midnight, err := date.Midnight(r.loc)
	if err != nil {
		return "", err
	}
	prev := kintai.Date(midnight.AddDate(0, 0, -1).Format(kintai.DateLayout))
	ps, _, err := r.replay(ctx, id, prev)
	if err != nil {
		return "", err
	}
	if ps.State().Active() {
		return prev, nil
	}
	return date, nil
}

func (r *recorder) replay(ctx context.Context, id kintai.SubjectID, date kintai.Date) (*kintai.WorkdaySession, []Event, error) {
	w, err := r.repo.GetWorkday(ctx, id, date)
	if err != nil {
		return nil, nil, err
	}
	return r.replayWith(ctx, id, date, w)
}

// configOf returns the policy and windows of w, or the default policy without windows.
func (r *recorder) configOf(w *Workday) (kintai.BreakPolicy, []kintai.ScheduleWindow, error) {
	if w == nil {
		return r.defaultPolicy, nil, nil
	}
	policy, err := w.Policy()
	if err != nil {
		return kintai.BreakPolicy{}, nil, err
	}
	windows, err := w.ScheduleWindows()
	if err != nil {
		return kintai.BreakPolicy{}, nil, err
	}
	return policy, windows, nil
}

func (r *recorder) replayWith(ctx context.Context, id kintai.SubjectID, date kintai.Date, w *Workday) (*kintai.WorkdaySession, []Event, error) {
	policy, windows, err := r.configOf(w)
	if err != nil {
		return nil, nil, err
	}

	s := kintai.NewWorkdaySession(id)
	if err := s.StartWorkday(policy, windows); err != nil {
		return nil, nil, err
	}

	events, err := r.repo.ListEvents(ctx, id, date)
	if err != nil {
		return nil, nil, err
	}
	for _, e := range events {
		if err := s.Apply(e.Kind, e.At); err != nil {
			return nil, nil, fmt.Errorf("replay event %s of %s: %w", e.ID, date, err)
		}
	}
	return s, events, nil
}

func (r *recorder) Report(ctx context.Context, id kintai.SubjectID, date kintai.Date, asOf time.Time) (DayReport, error) {
	unlock, err := r.lock()
	if err != nil {
		return DayReport{}, err
	}
	defer unlock()

	return r.report(ctx, id, date, asOf)
}

func (r *recorder) Status(ctx context.Context, id kintai.SubjectID, t time.Time) (DayReport, error) {
	unlock, err := r.lock()
	if err != nil {
		return DayReport{}, err
	}
	defer unlock()

	date, err := r.openDate(ctx, id, r.DateOf(t))
	if err != nil {
		return DayReport{}, err
	}
	return r.report(ctx, id, date, t)
}

func (r *recorder) report(ctx context.Context, id kintai.SubjectID, date kintai.Date, asOf time.Time) (DayReport, error) {
	w, err := r.repo.GetWorkday(ctx, id, date)
	if err != nil {
		return DayReport{}, err
	}
	s, events, err := r.replayWith(ctx, id, date, w)
	if err != nil {
		return DayReport{}, err
	}

	snap := s.Snapshot()
	if snap.State.Active() && asOf.Before(snap.LastTransitionAt) {
		asOf = snap.LastTransitionAt
	}
	working, err := s.CreditedWorkingTime(asOf)
	if err != nil {
		return DayReport{}, err
	}
	breaking, err := s.CreditedBreakTime(asOf)
	if err != nil {
		return DayReport{}, err
	}

	return DayReport{
		SubjectID:         id,
		Date:              date,
		Workday:           w,
		Events:            events,
		AsOf:              asOf,
		State:             snap.State,
		LastTransitionAt:  snap.LastTransitionAt,
		WorkingSeconds:    working,
		BreakSeconds:      breaking,
		RawBreakSeconds:   snap.RawBreakSeconds,
		BreakLimitSeconds: s.Policy().Limit(working),
	}, nil
}

// IsRejected reports whether err is a refused request, by the engine or for an
// unknown subject or event, rather than an I/O failure.
func IsRejected(err error) bool {
	for _, target := range []error{
		ErrNotFound,
		kintai.ErrInvalidTransition,
		kintai.ErrOutOfOrder,
		kintai.ErrInvalidTimestamp,
		kintai.ErrInvalidSession,
		kintai.ErrUnknownEventKind,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
