package view

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"kintai/kintai"
)

type tableViewer struct {
	repo    ViewRepository
	subject kintai.SubjectID
	out     io.Writer
}

func NewTableViewer(repo ViewRepository, subject kintai.SubjectID, out io.Writer) Viewer {
	return &tableViewer{repo: repo, subject: subject, out: out}
}

func (t *tableViewer) Do(yearMonth string) error {
	reports, err := t.repo.ListReports(context.Background(), t.subject, yearMonth)
	if err != nil {
		return err
	}

	tb := buildTableWriter(reports)
	tb.SetOutputMirror(t.out)
	tb.Render()
	return nil
}

func buildTableWriter(reports MonthView) table.Writer {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"日付", "労働開始", "労働終了", "休憩開始", "休憩終了", "休憩時間", "労働時間"})

	for _, row := range reports.Flatten() {
		rep := reports.FindByDate(row.Date).Report
		breakStr := secondsToString(rep.BreakSeconds)
		workingStr := secondsToString(rep.WorkingSeconds)

		r := table.Row{row.Date, "", "", "", "", breakStr, workingStr}
		if row.Span != nil {
			r[1] = row.Span.StartAt.Format("15:04")
			r[2] = ptrTimeToString(row.Span.EndAt)
		}
		if row.Break != nil {
			r[3] = row.Break.StartAt.Format("15:04")
			r[4] = ptrTimeToString(row.Break.EndAt)
		}
		t.AppendRow(r)
	}

	working, breaking := reports.Totals()
	t.AppendFooter(table.Row{"", "", "", "", "合計", secondsToString(breaking), secondsToString(working)})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, AutoMerge: true},
		{Number: 2, AutoMerge: true},
		{Number: 3, AutoMerge: true},
		{Number: 6, AutoMerge: true},
		{Number: 7, AutoMerge: true},
	})
	t.SetStyle(table.StyleRounded)
	return t
}

// secondsToString formats credited seconds as HH:MM, dropping the remainder.
func secondsToString(sec int64) string {
	d := time.Duration(sec) * time.Second
	return fmt.Sprintf("%02d:%02d", int(d.Hours()), int(d.Minutes())%60)
}

func ptrTimeToString(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("15:04")
}
