package models

import "time"

// RefreshKind names the operation a RefreshSession belongs to.
type RefreshKind string

const (
	KindTaskList     RefreshKind = "task_list"
	KindStatsRefresh RefreshKind = "stats_refresh"
	KindCheckTasks   RefreshKind = "check_tasks"
	KindTodayCreated RefreshKind = "today_created"
)

// RefreshState is the lifecycle state of a RefreshSession.
type RefreshState string

const (
	RefreshRunning   RefreshState = "running"
	RefreshCompleted RefreshState = "completed"
	RefreshAborted   RefreshState = "aborted"
	RefreshFailed    RefreshState = "failed"
)

// Terminal reports whether the state is final.
func (s RefreshState) Terminal() bool {
	return s == RefreshCompleted || s == RefreshAborted || s == RefreshFailed
}

// RefreshSession records one logical refresh operation.
type RefreshSession struct {
	ID         string       `json:"id"`
	Kind       RefreshKind  `json:"kind"`
	State      RefreshState `json:"state"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt *time.Time   `json:"finished_at,omitempty"`
	TaskCount  int          `json:"task_count"`
	Error      string       `json:"error,omitempty"`
}

// Finish moves the session into a terminal state.
func (s *RefreshSession) Finish(state RefreshState, err error) {
	now := time.Now()
	s.State = state
	s.FinishedAt = &now
	if err != nil {
		s.Error = err.Error()
	}
}

// Duration is the elapsed time of a finished session, zero otherwise.
func (s RefreshSession) Duration() time.Duration {
	if s.FinishedAt == nil {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}
