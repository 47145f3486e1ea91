package export

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"sendwatch/internal/models"
	"sendwatch/internal/tasklist"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func snapshot() *tasklist.Snapshot {
	return &tasklist.Snapshot{
		Tasks: []models.Task{
			{UUID: "t1", Label: "Spring drill", Paused: true},
			{UUID: "t2", Label: "No stats yet"},
			{UUID: "t3", Label: "Broken counters"},
		},
		Stats: map[string]models.TaskStatistics{
			"t1": {TaskUUID: "t1", TotalPlanned: 10, TotalSent: 8, TotalSucceeded: 6, TodayEarliestPlan: 1700000000, TodayUnsent: 2},
			"t3": {TaskUUID: "t3", TotalSent: 1, TotalSucceeded: 4},
		},
	}
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	now := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	require.NoError(t, Write(&buf, snapshot(), Options{Now: now, Highlighted: []string{"t1"}}))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{sheetTasks, sheetSummary}, f.GetSheetList())

	v, _ := f.GetCellValue(sheetTasks, "A1")
	assert.Equal(t, "Task", v)
	v, _ = f.GetCellValue(sheetTasks, "A2")
	assert.Equal(t, "Spring drill", v)
	v, _ = f.GetCellValue(sheetTasks, "C2")
	assert.Equal(t, "TRUE", v)
	v, _ = f.GetCellValue(sheetTasks, "G2")
	assert.Equal(t, "2", v)
	v, _ = f.GetCellValue(sheetTasks, "M2")
	assert.Equal(t, string(models.TodayNotYet), v)

	// missing statistics are left blank rather than zero
	v, _ = f.GetCellValue(sheetTasks, "D3")
	assert.Empty(t, v)

	v, _ = f.GetCellValue(sheetTasks, "G4")
	assert.Equal(t, "-3", v)

	v, _ = f.GetCellValue(sheetSummary, "B1")
	assert.Equal(t, "2024-03-01 09:30", v)
	v, _ = f.GetCellValue(sheetSummary, "B2")
	assert.Equal(t, "3", v)
	v, _ = f.GetCellValue(sheetSummary, "B3")
	assert.Equal(t, "1", v)
}

func TestWriteAppliesFilter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, snapshot(), Options{Filter: tasklist.Filter{TodayOnly: true}}))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheetTasks)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestSaveFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports")
	now := time.Date(2024, 3, 1, 9, 30, 5, 0, time.UTC)

	path, err := SaveFile(dir, snapshot(), Options{Now: now})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "sendtasks_2024-03-01_093005.xlsx"), path)
	assert.FileExists(t, path)
}
