package recorder

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"kintai/kintai"
	"kintai/kintai_event"
)

// IngestResult counts what happened to each line of an ingest run.
type IngestResult struct {
	Subjects int
	Workdays int
	Events   int
	// Rejected counts events the engine refused; they are logged and skipped.
	Rejected int
	Skipped  int
}

func (r IngestResult) Applied() int {
	return r.Subjects + r.Workdays + r.Events
}

// Ingester feeds JSON lines of subject, workday and event packets into a Recorder.
type Ingester struct {
	recorder Recorder
	registry *kintai_event.Registry
	logger   *slog.Logger
}

func NewIngester(recorder Recorder, registry *kintai_event.Registry, logger *slog.Logger) *Ingester {
	return &Ingester{recorder: recorder, registry: registry, logger: logger}
}

// Ingest stops at the first line that cannot be decoded or stored. Events the
// engine rejects do not stop the run.
func (i *Ingester) Ingest(ctx context.Context, in io.Reader) (IngestResult, error) {
	var res IngestResult
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return res, err
		}
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 || raw[0] == '#' {
			res.Skipped++
			continue
		}

		p, err := i.registry.Decode(raw)
		if err != nil {
			return res, fmt.Errorf("line %d: %w", line, err)
		}
		if err := i.apply(ctx, p, &res); err != nil {
			if IsRejected(err) {
				res.Rejected++
				i.logger.Warn("ingest rejected", slog.Int("line", line), slog.Uint64("seq", p.Seq()), slog.Any("err", err))
				continue
			}
			return res, fmt.Errorf("line %d: %w", line, err)
		}
	}
	if err := sc.Err(); err != nil {
		return res, fmt.Errorf("read input: %w", err)
	}
	i.logger.Info("ingest",
		slog.Int("subjects", res.Subjects),
		slog.Int("workdays", res.Workdays),
		slog.Int("events", res.Events),
		slog.Int("rejected", res.Rejected),
	)
	return res, nil
}

func (i *Ingester) apply(ctx context.Context, p kintai_event.Packet, res *IngestResult) error {
	switch p := p.(type) {
	case kintai_event.SubjectPacket:
		if err := i.recorder.RegisterSubject(ctx, Subject{ID: kintai.SubjectID(p.ID), Name: p.Name}); err != nil {
			return err
		}
		res.Subjects++
	case kintai_event.WorkdayPacket:
		w := Workday{
			SubjectID:    kintai.SubjectID(p.Subject),
			Date:         kintai.Date(p.Date),
			WorkingHours: p.WorkingHours,
			BreakHours:   p.BreakHours,
		}
		for _, win := range p.Windows {
			w.Windows = append(w.Windows, Window{Start: win.Start, End: win.End})
		}
		if err := i.recorder.SetWorkday(ctx, w); err != nil {
			return err
		}
		res.Workdays++
	case kintai_event.EventPacket:
		kind, err := kintai.ParseEventKind(p.Kind)
		if err != nil {
			return err
		}
		if _, err := i.recorder.Record(ctx, kintai.SubjectID(p.Subject), kind, p.At); err != nil {
			return err
		}
		res.Events++
	default:
		return fmt.Errorf("%w: %s", kintai_event.ErrUnknownPacket, p.Type())
	}
	return nil
}
