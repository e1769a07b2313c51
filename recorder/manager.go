package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"kintai/kintai"
	"kintai/kintai_event"
)

type MonitorOptions struct {
	PollingInterval    time.Duration
	StartBreakAfter    time.Duration
	FinishWorkingAfter time.Duration
}

// Manager turns raw activity from watchers into workday events for one subject:
// activity starts work or ends a break, and inactivity starts a break or ends the day.
type Manager struct {
	recorder      Recorder
	eventWatchers []kintai_event.Watcher
	notificator   Notificator
	logger        *slog.Logger
	subject       kintai.SubjectID
	opts          MonitorOptions
	now           func() time.Time

	mu             sync.Mutex
	lastActivityAt time.Time
}

func NewManager(recorder Recorder, eventWatchers []kintai_event.Watcher, notificator Notificator, logger *slog.Logger, subject kintai.SubjectID, opts MonitorOptions) *Manager {
	return &Manager{
		recorder:      recorder,
		eventWatchers: eventWatchers,
		notificator:   notificator,
		logger:        logger,
		subject:       subject,
		opts:          opts,
		now:           time.Now,
	}
}

func (m *Manager) Kansi(ctx context.Context) error {
	exitCh := make(chan error, len(m.eventWatchers))
	for _, watcher := range m.eventWatchers {
		watcher := watcher
		go func() {
			m.logger.Debug("start watching", slog.String("watcher", watcher.Name()))
			if err := watcher.Watch(func() {
				if err := m.HandleActivity(ctx); err != nil {
					m.logger.Error("handle activity", slog.String("watcher", watcher.Name()), slog.Any("err", err))
				}
			}); err != nil {
				exitCh <- fmt.Errorf("failed to start watch. watcher: %s: %w", watcher.Name(), err)
			}
		}()
	}

	m.logger.Debug("start polling", slog.Duration("interval", m.opts.PollingInterval))
	ticker := time.NewTicker(m.opts.PollingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := m.Poll(ctx); err != nil {
				return err
			}
		case err := <-exitCh:
			return err
		case <-ctx.Done():
			return nil
		}
	}
}

// HandleActivity is called on every input event.
func (m *Manager) HandleActivity(ctx context.Context) error {
	now := m.now()
	m.mu.Lock()
	m.lastActivityAt = now
	m.mu.Unlock()

	st, err := m.recorder.Status(ctx, m.subject, now)
	if err != nil {
		return err
	}
	switch st.State {
	case kintai.StateNotWorking:
		return m.record(ctx, kintai.EventStarted, now, "労働開始", "よろしくお願いします")
	case kintai.StateOnBreak:
		return m.record(ctx, kintai.EventFromBreak, now, "休憩終了", "がんばりましょう")
	}
	return nil
}

// Poll checks for inactivity.
func (m *Manager) Poll(ctx context.Context) error {
	now := m.now()
	st, err := m.recorder.Status(ctx, m.subject, now)
	if err != nil {
		return err
	}
	if !st.State.Active() {
		return nil
	}

	lastActivityAt := m.lastActivity(st)
	dayStart, _, err := m.recorder.Bounds(st.Date)
	if err != nil {
		return err
	}
	overnight := m.recorder.WorkdayTime(now).IsOvernight(m.recorder.WorkdayTime(dayStart))
	m.logger.Debug("kansi",
		slog.String("state", string(st.State)),
		slog.Time("last_activity_at", lastActivityAt),
		slog.Bool("overnight", overnight),
	)

	switch st.State {
	case kintai.StateWorking:
		if overnight {
			return m.record(ctx, kintai.EventFinished, lastActivityAt, "労働終了", "お疲れ様でした")
		}
		if now.After(lastActivityAt.Add(m.opts.StartBreakAfter)) {
			return m.record(ctx, kintai.EventOnBreak, lastActivityAt, "休憩開始", "ゆっくり休んでください")
		}
	case kintai.StateOnBreak:
		// the open break is dropped and the day ends when it began
		if overnight || now.After(lastActivityAt.Add(m.opts.FinishWorkingAfter)) {
			if err := m.record(ctx, kintai.EventFromBreak, st.LastTransitionAt, "", ""); err != nil {
				return err
			}
			return m.record(ctx, kintai.EventFinished, st.LastTransitionAt, "労働終了", "お疲れ様でした")
		}
	}
	return nil
}

// lastActivity falls back to the last transition when no input was seen since start-up.
func (m *Manager) lastActivity(st DayReport) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastActivityAt.Before(st.LastTransitionAt) {
		return st.LastTransitionAt
	}
	return m.lastActivityAt
}

func (m *Manager) record(ctx context.Context, kind kintai.EventKind, at time.Time, title, message string) error {
	if _, err := m.recorder.Record(ctx, m.subject, kind, at); err != nil {
		return err
	}
	if title == "" {
		return nil
	}
	if err := m.notificator.Notify(title, message); err != nil {
		m.logger.Warn("notify", slog.String("title", title), slog.Any("err", err))
	}
	return nil
}
