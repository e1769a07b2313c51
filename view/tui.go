package view

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"kintai/kintai"
	"kintai/recorder"
)

func NewTUI(rec recorder.Recorder, repo ViewRepository, subject kintai.SubjectID, loc *time.Location, logger *slog.Logger) Viewer {
	if loc == nil {
		loc = time.UTC
	}
	return &tui{
		recorder: rec,
		repo:     repo,
		subject:  subject,
		loc:      loc,
		now:      time.Now,
		logger:   logger,
	}
}

type tui struct {
	recorder recorder.Recorder
	repo     ViewRepository
	subject  kintai.SubjectID
	loc      *time.Location
	now      func() time.Time

	logger *slog.Logger

	app  *tview.Application
	root *tview.Flex
}

func (t *tui) Do(yearMonth string) error {
	t.app = tview.NewApplication()
	if err := t.render(yearMonth); err != nil {
		return err
	}
	return t.app.Run()
}

// render rebuilds the month table and replaces the application root.
func (t *tui) render(yearMonth string) error {
	reports, err := t.repo.ListReports(context.Background(), t.subject, yearMonth)
	if err != nil {
		return err
	}

	table, rowDates, err := newReportTable(reports)
	if err != nil {
		return err
	}
	flex := tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(table, 0, 1, true)

	table.Select(1, 1).SetFixed(1, 1).SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter {
			table.SetSelectable(true, true)
		}
	}).SetSelectedFunc(func(row int, column int) {
		if row < 1 || row-1 >= len(rowDates) {
			return
		}
		date := rowDates[row-1]
		form := t.newEventForm(date, func(form *tview.Form) {
			t.app.SetFocus(table)
			flex.RemoveItem(form)
		}, func() {
			if err := t.render(yearMonth); err != nil {
				t.logger.Error("reload", slog.Any("err", err))
			}
		})
		flex.AddItem(form, 0, 1, true)
		t.app.SetFocus(form)
	})

	t.root = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(tview.NewTextView().SetText(fmt.Sprintf("%sの勤怠 (subject %d)", yearMonth, t.subject)), 1, 1, false).
		AddItem(flex, 0, 1, true)
	t.app.SetRoot(t.root, true)
	return nil
}

// newReportTable renders one line per flattened row and returns the date of each line.
func newReportTable(reports MonthView) (*tview.Table, []kintai.Date, error) {
	table := tview.NewTable().SetBorders(true)

	for col, h := range []string{"日付", "出退勤", "休憩", "休憩時間", "労働時間"} {
		table.SetCell(0, col, tview.NewTableCell(h).SetAlign(tview.AlignCenter).SetSelectable(false))
	}

	var rowDates []kintai.Date
	var prev kintai.Date
	for i, fr := range reports.Flatten() {
		row := i + 1
		rowDates = append(rowDates, fr.Date)

		dateCell := tview.NewTableCell("").SetSelectable(false)
		breakCell := tview.NewTableCell("").SetSelectable(false)
		workingCell := tview.NewTableCell("").SetSelectable(false)
		if fr.Date != prev {
			c, err := dateToCell(fr.Date)
			if err != nil {
				return nil, nil, err
			}
			dateCell = c.SetSelectable(false)
			rep := reports.FindByDate(fr.Date).Report
			breakCell = tview.NewTableCell(secondsToString(rep.BreakSeconds)).SetAlign(tview.AlignCenter).SetSelectable(false)
			workingCell = tview.NewTableCell(secondsToString(rep.WorkingSeconds)).SetAlign(tview.AlignCenter).SetSelectable(false)
			prev = fr.Date
		}
		table.SetCell(row, 0, dateCell)
		table.SetCell(row, 3, breakCell)
		table.SetCell(row, 4, workingCell)

		table.SetCell(row, 1, newEmptyTimeCell())
		table.SetCell(row, 2, newEmptyTimeCell())
		if fr.Span != nil {
			table.SetCell(row, 1, newTimeCell(&fr.Span.StartAt, fr.Span.EndAt))
		}
		if fr.Break != nil {
			table.SetCell(row, 2, newTimeCell(&fr.Break.StartAt, fr.Break.EndAt))
		}
	}

	working, breaking := reports.Totals()
	last := len(rowDates) + 1
	table.SetCell(last, 2, tview.NewTableCell("合計").SetAlign(tview.AlignCenter).SetSelectable(false))
	table.SetCell(last, 3, tview.NewTableCell(secondsToString(breaking)).SetAlign(tview.AlignCenter).SetSelectable(false))
	table.SetCell(last, 4, tview.NewTableCell(secondsToString(working)).SetAlign(tview.AlignCenter).SetSelectable(false))
	return table, rowDates, nil
}

var kindLabels = []string{"出勤 (Started)", "休憩開始 (OnBreak)", "休憩終了 (FromBreak)", "退勤 (Finished)"}

// newEventForm records one event on date. Rejections are shown in the form
// and nothing is stored.
func (t *tui) newEventForm(date kintai.Date, handleCancel func(form *tview.Form), handleSaved func()) *tview.Form {
	kindIdx := 0
	clock := defaultClock(t.now(), t.loc)

	form := tview.NewForm().
		AddDropDown("種別", kindLabels, kindIdx, func(_ string, idx int) {
			kindIdx = idx
		}).
		AddInputField("時刻(HH:mm)", clock, 0, nil, func(text string) {
			clock = text
		}).
		AddTextView("", "", 0, 0, false, false)
	showError := func(msg string) {
		form.GetFormItem(2).(*tview.TextView).
			SetLabel("エラー").
			SetText(msg)
	}
	form.
		AddButton("保存", func() {
			at, err := t.recorder.ClockOn(date, clock)
			if err != nil {
				showError("時刻の形式が不正です")
				return
			}
			kind := kintai.EventKinds[kindIdx]
			if _, err := t.recorder.Record(context.Background(), t.subject, kind, at); err != nil {
				if recorder.IsRejected(err) {
					showError(rejectionMessage(err))
					return
				}
				t.logger.Error("failed to record event", slog.String("kind", string(kind)), slog.Any("err", err))
				showError(err.Error())
				return
			}
			handleSaved()
		}).
		AddButton("直前の記録を削除", func() {
			if _, err := t.removeLastEvent(context.Background(), date); err != nil {
				if recorder.IsRejected(err) {
					showError(rejectionMessage(err))
					return
				}
				t.logger.Error("failed to remove event", slog.String("date", string(date)), slog.Any("err", err))
				showError(err.Error())
				return
			}
			handleSaved()
		}).
		AddButton("キャンセル", func() {
			handleCancel(form)
		})
	form.SetBorder(true).SetTitle(fmt.Sprintf("勤怠入力 %s", date)).SetTitleAlign(tview.AlignLeft)
	return form
}

// defaultClock is the form's initial "HH:MM", read on the configured clock.
func defaultClock(now time.Time, loc *time.Location) string {
	return now.In(loc).Format("15:04")
}

// removeLastEvent takes back the latest event recorded for date.
func (t *tui) removeLastEvent(ctx context.Context, date kintai.Date) (recorder.Event, error) {
	rep, err := t.recorder.Report(ctx, t.subject, date, t.now())
	if err != nil {
		return recorder.Event{}, err
	}
	if len(rep.Events) == 0 {
		return recorder.Event{}, fmt.Errorf("%s: %w", date, recorder.ErrNotFound)
	}
	last := rep.Events[len(rep.Events)-1]
	if _, err := t.recorder.RemoveEvent(ctx, t.subject, date, last.ID); err != nil {
		return recorder.Event{}, err
	}
	return last, nil
}

var week = []string{"日", "月", "火", "水", "木", "金", "土"}

func dateToCell(d kintai.Date) (*tview.TableCell, error) {
	t, err := time.Parse(kintai.DateLayout, string(d))
	if err != nil {
		return nil, err
	}
	color := tcell.ColorWhite
	switch t.Weekday() {
	case time.Saturday:
		color = tcell.ColorBlue
	case time.Sunday:
		color = tcell.ColorRed
	}

	s := fmt.Sprintf(" %s (%s) ", t.Format("01/02"), week[t.Weekday()])
	return tview.NewTableCell(s).SetTextColor(color).SetAlign(tview.AlignCenter), nil
}

const emptyTimeStr = "--:--"

func newEmptyTimeCell() *tview.TableCell {
	return tview.NewTableCell(fmt.Sprintf("  %s ~ %s  ", emptyTimeStr, emptyTimeStr)).SetAlign(tview.AlignCenter)
}

func newTimeCell(startAt, endAt *time.Time) *tview.TableCell {
	return tview.NewTableCell(fmt.Sprintf("  %s ~ %s  ", timeToString(startAt), timeToString(endAt))).SetAlign(tview.AlignCenter)
}

func timeToString(t *time.Time) string {
	if t == nil {
		return emptyTimeStr
	}
	return t.Format("15:04")
}
