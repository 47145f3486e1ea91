package models

import (
	"strings"
)

// Customer is an end-customer account created by an operator. A customer
// sees only the send tasks assigned to it.
type Customer struct {
	ID        string   `json:"id,omitempty"`
	Name      string   `json:"customer_name"`
	FullName  string   `json:"customer_full_name"`
	TaskUUIDs []string `json:"sendtask_uuids"`
}

// NewCustomer is the input of a customer account creation.
type NewCustomer struct {
	Name     string `json:"customer_name"`
	FullName string `json:"customer_full_name"`
	Password string `json:"password"`
}

// Normalize trims the name fields.
func (c NewCustomer) Normalize() NewCustomer {
	c.Name = strings.TrimSpace(c.Name)
	c.FullName = strings.TrimSpace(c.FullName)
	return c
}

// TaskProgress is the overall progress of a task as shown to customers.
type TaskProgress string

const (
	ProgressPending   TaskProgress = "pending"
	ProgressActive    TaskProgress = "active"
	ProgressCompleted TaskProgress = "completed"
)

// Progress classifies overall sending progress: nothing sent yet, everything
// planned sent, or in between.
func (s TaskStatistics) Progress() TaskProgress {
	switch {
	case s.TotalSent == 0:
		return ProgressPending
	case s.TotalPlanned == s.TotalSent:
		return ProgressCompleted
	default:
		return ProgressActive
	}
}

// EffectiveEnd is the stop time when the task was stopped early, otherwise
// the planned end.
func (t Task) EffectiveEnd() Timestamp {
	if t.StopAt > 0 {
		return t.StopAt
	}
	return t.EndAt
}

// CustomerTask is a task joined with its statistics for the customer view.
type CustomerTask struct {
	Task        Task            `json:"task"`
	Stats       *TaskStatistics `json:"stats,omitempty"`
	End         Timestamp       `json:"end"`
	Failed      int64           `json:"failed"`
	TodayFailed int64           `json:"today_failed"`
	Progress    TaskProgress    `json:"progress"`
}
