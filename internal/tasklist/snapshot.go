package tasklist

import (
	"strings"
	"time"

	"sendwatch/internal/models"
)

// Snapshot is one committed result of a task-list refresh. It is never
// modified after it has been published.
type Snapshot struct {
	SessionID   string
	Tasks       []models.Task
	Stats       map[string]models.TaskStatistics
	CommittedAt time.Time
}

var emptySnapshot = &Snapshot{Tasks: []models.Task{}, Stats: map[string]models.TaskStatistics{}}

// Stat returns the statistics of a task. Absent entries report ok == false
// and must be read as unknown/zero.
func (s *Snapshot) Stat(id string) (models.TaskStatistics, bool) {
	st, ok := s.Stats[id]
	return st, ok
}

// IDs lists task identifiers in list order.
func (s *Snapshot) IDs() []string {
	ids := make([]string, 0, len(s.Tasks))
	for _, t := range s.Tasks {
		ids = append(ids, t.UUID)
	}
	return ids
}

// TodayTasks is the tasks with a send planned today, recomputed on every call.
func (s *Snapshot) TodayTasks() []models.Task {
	out := make([]models.Task, 0)
	for _, t := range s.Tasks {
		if st, ok := s.Stats[t.UUID]; ok && st.ScheduledToday() {
			out = append(out, t)
		}
	}
	return out
}

// Row is a task joined with its statistics for display.
type Row struct {
	Task    models.Task            `json:"task"`
	Stats   *models.TaskStatistics `json:"stats,omitempty"`
	State   models.TodayState      `json:"state"`
	Failed  int64                  `json:"failed"`
	Expired bool                   `json:"expired"`
}

// Filter narrows the task table.
type Filter struct {
	Search      string
	TodayOnly   bool
	ExpiredOnly bool
	State       models.TodayState
	Now         time.Time
}

// Rows returns the filtered rows in list order.
func (s *Snapshot) Rows(f Filter) []Row {
	now := f.Now
	if now.IsZero() {
		now = time.Now()
	}
	search := strings.ToLower(strings.TrimSpace(f.Search))
	state := f.State
	if state == "" {
		state = models.TodayAll
	}

	rows := make([]Row, 0, len(s.Tasks))
	for _, t := range s.Tasks {
		st, ok := s.Stats[t.UUID]
		if f.TodayOnly && !(ok && st.ScheduledToday()) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(t.Label), search) {
			continue
		}
		expired := expiredAt(st, now)
		if f.ExpiredOnly && !expired {
			continue
		}
		rowState := st.TodayState()
		if state != models.TodayAll && rowState != state {
			continue
		}

		row := Row{Task: t, State: rowState, Failed: st.Failed(), Expired: expired}
		if ok {
			stCopy := st
			row.Stats = &stCopy
		}
		rows = append(rows, row)
	}
	return rows
}

// expiredAt reports a last planned send that lies in the past.
func expiredAt(st models.TaskStatistics, now time.Time) bool {
	last := st.AllLatestPlan.Millis()
	return last > 0 && last <= now.UnixMilli()
}

// Summary counts today's tasks per state.
type Summary struct {
	Total        int `json:"total"`
	Today        int `json:"today"`
	Doing        int `json:"doing"`
	NotYet       int `json:"notyet"`
	Done         int `json:"done"`
	Warning      int `json:"warning"`
	Inconsistent int `json:"inconsistent"`
}

func (s *Snapshot) Summary() Summary {
	sum := Summary{Total: len(s.Tasks)}
	for _, t := range s.TodayTasks() {
		st := s.Stats[t.UUID]
		sum.Today++
		switch st.TodayState() {
		case models.TodayDoing:
			sum.Doing++
		case models.TodayNotYet:
			sum.NotYet++
		case models.TodayDone:
			sum.Done++
		case models.TodayWarning:
			sum.Warning++
		}
		if st.Inconsistent() {
			sum.Inconsistent++
		}
	}
	return sum
}

// Page is one page of rows; Page is zero-based.
type Page struct {
	Rows     []Row `json:"rows"`
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
	Total    int   `json:"total"`
	Pages    int   `json:"pages"`
}

// Paginate slices rows; out-of-range pages clamp to the last page.
func Paginate(rows []Row, page, size int) Page {
	if size <= 0 {
		size = models.DefaultPageSize
	}
	total := len(rows)
	pages := (total + size - 1) / size
	if page < 0 {
		page = 0
	}
	if pages > 0 && page >= pages {
		page = pages - 1
	}

	start := page * size
	end := start + size
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}
	return Page{Rows: rows[start:end], Page: page, PageSize: size, Total: total, Pages: pages}
}

// RowIDs extracts task identifiers from rows.
func RowIDs(rows []Row) []string {
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.Task.UUID)
	}
	return ids
}
