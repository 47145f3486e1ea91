package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"sendwatch/internal/tasklist"

	"github.com/xuri/excelize/v2"
)

const (
	sheetTasks   = "Tasks"
	sheetSummary = "Summary"
	timeLayout   = "2006-01-02 15:04"
)

var headers = []string{
	"Task", "UUID", "Paused",
	"Planned", "Sent", "Succeeded", "Failed", "Triggered",
	"Today planned", "Today sent", "Today succeeded", "Today unsent", "Today state",
	"Last planned send", "Expired",
}

// Options tune the workbook.
type Options struct {
	Filter      tasklist.Filter
	Highlighted []string
	Now         time.Time
}

// Build renders the snapshot as a workbook. The caller closes the file.
func Build(snap *tasklist.Snapshot, opts Options) (*excelize.File, error) {
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	if opts.Filter.Now.IsZero() {
		opts.Filter.Now = opts.Now
	}

	f := excelize.NewFile()
	index, err := f.NewSheet(sheetTasks)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)

	if err := writeTasks(f, snap, opts); err != nil {
		f.Close()
		return nil, err
	}
	if err := writeSummary(f, snap, opts.Now); err != nil {
		f.Close()
		return nil, err
	}

	_ = f.DeleteSheet("Sheet1")
	return f, nil
}

func writeTasks(f *excelize.File, snap *tasklist.Snapshot, opts Options) error {
	headerStyle, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("error creating style: %w", err)
	}
	warnStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#F8CBAD"}, Pattern: 1},
	})
	changedStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#FFF2CC"}, Pattern: 1},
	})

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheetTasks, cell, h)
	}
	lastCol, _ := excelize.ColumnNumberToName(len(headers))
	_ = f.SetCellStyle(sheetTasks, "A1", lastCol+"1", headerStyle)

	changed := make(map[string]struct{}, len(opts.Highlighted))
	for _, id := range opts.Highlighted {
		changed[id] = struct{}{}
	}

	for i, r := range snap.Rows(opts.Filter) {
		row := i + 2
		values := []interface{}{r.Task.Label, r.Task.UUID, r.Task.Paused}
		if r.Stats != nil {
			st := r.Stats
			last := ""
			if t := st.AllLatestPlan.Time(); !t.IsZero() {
				last = t.Format(timeLayout)
			}
			values = append(values,
				int64(st.TotalPlanned), int64(st.TotalSent), int64(st.TotalSucceeded), r.Failed, int64(st.TotalTriggered),
				int64(st.TodayPlanned), int64(st.TodaySent), int64(st.TodaySucceeded), int64(st.TodayUnsent), string(r.State),
				last, r.Expired,
			)
		} else {
			// unknown statistics stay blank
			values = append(values, "", "", "", "", "", "", "", "", "", "", "", "")
		}

		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(sheetTasks, cell, &values); err != nil {
			return fmt.Errorf("error writing row %d: %w", row, err)
		}

		end, _ := excelize.CoordinatesToCellName(len(headers), row)
		switch {
		case r.Stats != nil && r.Stats.Inconsistent():
			_ = f.SetCellStyle(sheetTasks, cell, end, warnStyle)
		case isChanged(changed, r.Task.UUID):
			_ = f.SetCellStyle(sheetTasks, cell, end, changedStyle)
		}
	}

	_ = f.SetColWidth(sheetTasks, "A", "A", 32)
	_ = f.SetColWidth(sheetTasks, "B", "B", 38)
	_ = f.SetColWidth(sheetTasks, "C", lastCol, 14)
	_ = f.SetPanes(sheetTasks, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
	return nil
}

func isChanged(changed map[string]struct{}, id string) bool {
	_, ok := changed[id]
	return ok
}

func writeSummary(f *excelize.File, snap *tasklist.Snapshot, now time.Time) error {
	if _, err := f.NewSheet(sheetSummary); err != nil {
		return fmt.Errorf("error creating sheet: %w", err)
	}
	sum := snap.Summary()
	rows := [][]interface{}{
		{"Generated", now.Format(timeLayout)},
		{"Tasks", sum.Total},
		{"Scheduled today", sum.Today},
		{"Doing", sum.Doing},
		{"Not yet", sum.NotYet},
		{"Done", sum.Done},
		{"Warning", sum.Warning},
		{"Inconsistent counters", sum.Inconsistent},
	}
	for i, r := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheetSummary, cell, &r); err != nil {
			return fmt.Errorf("error writing summary: %w", err)
		}
	}
	_ = f.SetColWidth(sheetSummary, "A", "A", 24)
	return nil
}

// Write streams the workbook to w.
func Write(w io.Writer, snap *tasklist.Snapshot, opts Options) error {
	f, err := Build(snap, opts)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("error writing workbook: %w", err)
	}
	return nil
}

// SaveFile stores the workbook under dir and returns its path.
func SaveFile(dir string, snap *tasklist.Snapshot, opts Options) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}
	f, err := Build(snap, opts)
	if err != nil {
		return "", err
	}
	defer f.Close()

	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	path := filepath.Join(dir, FileName(now))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}
	return path, nil
}

// FileName is the workbook name for an export taken at t.
func FileName(t time.Time) string {
	return fmt.Sprintf("sendtasks_%s.xlsx", t.Format("2006-01-02_150405"))
}
