package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgress(t *testing.T) {
	assert.Equal(t, ProgressPending, TaskStatistics{}.Progress())
	assert.Equal(t, ProgressPending, TaskStatistics{TotalPlanned: 5}.Progress())
	assert.Equal(t, ProgressActive, TaskStatistics{TotalPlanned: 5, TotalSent: 3}.Progress())
	assert.Equal(t, ProgressCompleted, TaskStatistics{TotalPlanned: 5, TotalSent: 5}.Progress())
}

func TestEffectiveEnd(t *testing.T) {
	assert.Equal(t, Timestamp(200), Task{EndAt: 200, StopAt: -1}.EffectiveEnd())
	assert.Equal(t, Timestamp(200), Task{EndAt: 200}.EffectiveEnd())
	assert.Equal(t, Timestamp(150), Task{EndAt: 200, StopAt: 150}.EffectiveEnd())
}

func TestSendLogOutcome(t *testing.T) {
	tests := []struct {
		name string
		log  SendLog
		want SendOutcome
	}{
		{"pending", SendLog{}, OutcomeNotYet},
		{"sent", SendLog{SendTime: 1, SendResult: "(True, 'ok')"}, OutcomeSent},
		{"failed", SendLog{SendTime: 1, SendResult: "(False, 'bounce')"}, OutcomeFailed},
		{"result without send time", SendLog{SendResult: "True"}, OutcomeNotYet},
		{"triggered wins", SendLog{SendTime: 1, SendResult: "False", AccessDevice: "iPhone"}, OutcomeTriggered},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.log.Outcome())
		})
	}
}

func TestLogQueryNormalize(t *testing.T) {
	q, err := LogQuery{SearchText: "  bob "}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, LogQuery{
		Page:        1,
		SearchText:  "bob",
		ResultType:  ResultAll,
		SortBy:      SortTargetEmail,
		Sort:        "asc",
		RowsPerPage: DefaultLogRows,
	}, q)

	bad := []LogQuery{
		{ResultType: "bounced"},
		{SortBy: "subject"},
		{Sort: "up"},
		{RowsPerPage: 30},
		{DateFrom: "2024-05-02", DateTo: "2024-05-01"},
	}
	for _, b := range bad {
		_, err := b.Normalize()
		assert.Error(t, err, "%+v", b)
	}
}

func TestLogQueryWireNames(t *testing.T) {
	raw, err := json.Marshal(LogQuery{Page: 2, ResultType: ResultFailed, OnlyClicked: true, RowsPerPage: 50})
	require.NoError(t, err)
	s := string(raw)
	assert.Contains(t, s, `"resultType":"failed"`)
	assert.Contains(t, s, `"showClicked":true`)
	assert.Contains(t, s, `"rowsPerPage":50`)
}

func TestTriggerRate(t *testing.T) {
	assert.Zero(t, TaskStatistics{TotalTriggered: 3}.TriggerRate())
	assert.InDelta(t, 25.0, TaskStatistics{TotalSent: 8, TotalTriggered: 2}.TriggerRate(), 0.001)
}
