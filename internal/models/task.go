package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Task is a read-only snapshot of one send task as reported by the backend.
type Task struct {
	UUID      string    `json:"sendtask_uuid"`
	Label     string    `json:"sendtask_id"`
	CreatedAt Timestamp `json:"sendtask_create_ut"`
	StartAt   Timestamp `json:"test_start_ut"`
	EndAt     Timestamp `json:"test_end_ut"`
	Paused    bool      `json:"is_pause"`
	StopAt    Timestamp `json:"stop_time_new"`
}

// TaskStatistics holds aggregated send/engagement counters for one task.
type TaskStatistics struct {
	TaskUUID string `json:"sendtask_uuid"`

	TotalPlanned   Count `json:"totalplanned"`
	TotalSent      Count `json:"totalsend"`
	TotalSucceeded Count `json:"totalsuccess"`
	TotalTriggered Count `json:"totaltriggered"`

	TodayPlanned   Count `json:"todayplanned"`
	TodaySent      Count `json:"todaysend"`
	TodaySucceeded Count `json:"todaysuccess"`
	TodayUnsent    Count `json:"todayunsend"`
	TodayTriggered Count `json:"todaytriggered"`

	TodayEarliestPlan Timestamp `json:"today_earliest_plan_time"`
	TodayLatestPlan   Timestamp `json:"today_latest_plan_time"`
	AllEarliestPlan   Timestamp `json:"all_earliest_plan_time"`
	AllLatestPlan     Timestamp `json:"all_latest_plan_time"`
}

// Failed is sent minus succeeded. It may be negative when upstream data is
// inconsistent.
func (s TaskStatistics) Failed() int64 {
	return int64(s.TotalSent) - int64(s.TotalSucceeded)
}

// TodayFailed is the today-scoped variant of Failed.
func (s TaskStatistics) TodayFailed() int64 {
	return int64(s.TodaySent) - int64(s.TodaySucceeded)
}

// Inconsistent reports a negative derived failure count.
func (s TaskStatistics) Inconsistent() bool {
	return s.Failed() < 0 || s.TodayFailed() < 0
}

// ScheduledToday reports whether the task has a send planned for today.
func (s TaskStatistics) ScheduledToday() bool {
	return s.TodayEarliestPlan > 0
}

// TodayState classifies today's progress of a task.
func (s TaskStatistics) TodayState() TodayState {
	unsent := int64(s.TodayUnsent)
	success := int64(s.TodaySucceeded)
	failed := s.TodayFailed()

	switch {
	case failed != 0:
		return TodayWarning
	case unsent > 0 && success > 0:
		return TodayDoing
	case unsent > 0 && success == 0:
		return TodayNotYet
	default:
		return TodayDone
	}
}

// Count is a counter that tolerates numeric strings and null in JSON.
type Count int64

func (c *Count) UnmarshalJSON(data []byte) error {
	v, err := parseFlexInt(data)
	if err != nil {
		return fmt.Errorf("count: %w", err)
	}
	*c = Count(v)
	return nil
}

// Timestamp is a unix time in either seconds or milliseconds; zero means unset.
type Timestamp int64

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	v, err := parseFlexInt(data)
	if err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	*t = Timestamp(v)
	return nil
}

// Millis normalises the value to milliseconds. Values above 1e12 are treated
// as already being milliseconds.
func (t Timestamp) Millis() int64 {
	if t <= 0 {
		return 0
	}
	if t > 1e12 {
		return int64(t)
	}
	return int64(t) * 1000
}

// Time converts the timestamp, returning the zero time when unset.
func (t Timestamp) Time() time.Time {
	ms := t.Millis()
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func parseFlexInt(data []byte) (int64, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return 0, nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return 0, err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return 0, nil
		}
		data = []byte(s)
	}
	if v, err := strconv.ParseInt(string(data), 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return 0, err
	}
	return int64(f), nil
}

// TaskDiff lists tasks that appeared or disappeared upstream.
type TaskDiff struct {
	Added   []Task `json:"added"`
	Removed []Task `json:"removed"`
}
