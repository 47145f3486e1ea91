package models

import (
	"fmt"
	"strings"
)

// SendLog is one recipient row of a send task.
type SendLog struct {
	ID           int64     `json:"id,omitempty"`
	UUID         string    `json:"uuid"`
	PersonInfo   string    `json:"person_info"`
	TargetEmail  string    `json:"target_email"`
	TemplateUUID string    `json:"template_uuid"`
	PlanTime     Timestamp `json:"plan_time"`
	SendTime     Timestamp `json:"send_time"`
	SendResult   string    `json:"send_res"`

	AccessTime   Timestamp `json:"access_time"`
	AccessSource string    `json:"access_src"`
	AccessDevice string    `json:"access_dev"`
	ClickTime    Timestamp `json:"click_time"`
	ClickSource  string    `json:"click_src"`
	ClickDevice  string    `json:"click_dev"`
	FileTime     Timestamp `json:"file_time"`
	FileSource   string    `json:"file_src"`
	FileDevice   string    `json:"file_dev"`
}

// SendOutcome is the delivery state of a single recipient.
type SendOutcome string

const (
	OutcomeNotYet    SendOutcome = "notyet"
	OutcomeSent      SendOutcome = "send"
	OutcomeFailed    SendOutcome = "failed"
	OutcomeTriggered SendOutcome = "triggered"
)

// Outcome derives the delivery state. A recorded access device wins over the
// send result.
func (l SendLog) Outcome() SendOutcome {
	switch {
	case l.AccessDevice != "":
		return OutcomeTriggered
	case l.SendTime > 0 && strings.Contains(l.SendResult, "True"):
		return OutcomeSent
	case l.SendTime > 0 && strings.Contains(l.SendResult, "False"):
		return OutcomeFailed
	default:
		return OutcomeNotYet
	}
}

// Result type filters accepted by the send-log query.
const (
	ResultAll          = "ALL"
	ResultNotYet       = "notyet"
	ResultSent         = "send"
	ResultFailed       = "failed"
	ResultNotTriggered = "not_triggered"
	ResultTriggered    = "triggered"
)

// Sort keys accepted by the send-log query.
const (
	SortTargetEmail = "target_email"
	SortPlanTime    = "plan_time"
	SortSendTime    = "send_time"
	SortPersonInfo  = "person_info"
)

// DefaultLogRows is the page size of a send-log query.
const DefaultLogRows = 20

var logRowChoices = []int{20, 50, 100, 200}

// LogQuery filters, sorts and pages the send log of one task. Dates are
// YYYY-MM-DD and inclusive.
type LogQuery struct {
	Page         int    `json:"page"`
	SearchText   string `json:"searchText"`
	DateFrom     string `json:"dateFrom"`
	DateTo       string `json:"dateTo"`
	ResultType   string `json:"resultType"`
	OnlyAccessed bool   `json:"showAccessed"`
	OnlyClicked  bool   `json:"showClicked"`
	OnlyFiled    bool   `json:"showFiled"`
	SortBy       string `json:"sortBy"`
	RowsPerPage  int    `json:"rowsPerPage"`
	Sort         string `json:"sort"`
}

// Normalize fills defaults and rejects values the backend does not accept.
// Page is 1-based.
func (q LogQuery) Normalize() (LogQuery, error) {
	q.SearchText = strings.TrimSpace(q.SearchText)
	if q.Page < 1 {
		q.Page = 1
	}
	if q.ResultType == "" {
		q.ResultType = ResultAll
	}
	switch q.ResultType {
	case ResultAll, ResultNotYet, ResultSent, ResultFailed, ResultNotTriggered, ResultTriggered:
	default:
		return q, fmt.Errorf("unknown result type %q", q.ResultType)
	}
	if q.SortBy == "" {
		q.SortBy = SortTargetEmail
	}
	switch q.SortBy {
	case SortTargetEmail, SortPlanTime, SortSendTime, SortPersonInfo:
	default:
		return q, fmt.Errorf("unknown sort key %q", q.SortBy)
	}
	if q.Sort == "" {
		q.Sort = "asc"
	}
	if q.Sort != "asc" && q.Sort != "desc" {
		return q, fmt.Errorf("sort must be asc or desc, got %q", q.Sort)
	}
	if q.RowsPerPage == 0 {
		q.RowsPerPage = DefaultLogRows
	}
	if !validRows(q.RowsPerPage) {
		return q, fmt.Errorf("rows per page must be one of %v", logRowChoices)
	}
	if q.DateFrom != "" && q.DateTo != "" && q.DateFrom > q.DateTo {
		return q, fmt.Errorf("date range is reversed: %s > %s", q.DateFrom, q.DateTo)
	}
	return q, nil
}

func validRows(n int) bool {
	for _, v := range logRowChoices {
		if v == n {
			return true
		}
	}
	return false
}

// LogPage is one page of a task's send log.
type LogPage struct {
	Logs  []SendLog `json:"logs"`
	Total int       `json:"total_count"`
	Page  int       `json:"page"`
	Rows  int       `json:"rows_per_page"`
}

// MailTemplate names a message template referenced by send logs.
type MailTemplate struct {
	UUID  string `json:"mtmpl_uuid"`
	Title string `json:"mtmpl_title"`
}

// TaskDetail is the header of the per-task drill-down.
type TaskDetail struct {
	TaskUUID    string          `json:"sendtask_uuid"`
	Stats       *TaskStatistics `json:"stats,omitempty"`
	TriggerRate float64         `json:"trigger_rate"`
	Templates   []MailTemplate  `json:"templates"`
}

// TriggerRate is triggered over sent as a percentage, 0 when nothing was sent.
func (s TaskStatistics) TriggerRate() float64 {
	if s.TotalSent <= 0 {
		return 0
	}
	return float64(s.TotalTriggered) / float64(s.TotalSent) * 100
}
