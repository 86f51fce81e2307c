package project

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_UnmarshalDefaultsStatus(t *testing.T) {
	var s State
	require.NoError(t, json.Unmarshal([]byte(`{"tasks":[]}`), &s))
	assert.Equal(t, StatusInit, s.Status)
	assert.NotNil(t, s.Reports)
}

func TestState_UnknownFieldsRoundTrip(t *testing.T) {
	doc := `{
  "status": "in_progress",
  "blockers": ["waiting on api keys"],
  "owner": {"name": "ops"},
  "tasks": [{"agent": "uiux", "description": "d", "status": "pending", "estimate": 3}],
  "reports": [{"type": "qa_functional", "severity": "high", "content": "boom", "source": "ci"}]
}`
	var s State
	require.NoError(t, json.Unmarshal([]byte(doc), &s))

	out, err := json.Marshal(s)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(out, &got))
	assert.Equal(t, []any{"waiting on api keys"}, got["blockers"])
	assert.Equal(t, map[string]any{"name": "ops"}, got["owner"])

	task := got["tasks"].([]any)[0].(map[string]any)
	assert.Equal(t, float64(3), task["estimate"])
	report := got["reports"].([]any)[0].(map[string]any)
	assert.Equal(t, "ci", report["source"])
}

func TestState_FlattensLegacySubtasks(t *testing.T) {
	doc := `{
  "status": "in_progress",
  "tasks": [
    {"id": "42", "agent": "backend-dev", "description": "feature", "status": "pending",
     "subtasks": [
       {"id": "test_42", "description": "tests", "status": "pending", "assigned_to": "test_generator"},
       {"description": "audit", "status": "pending", "assigned_to": "security_auditor"}
     ]},
    {"agent": "lead-qa", "description": "qa", "status": "pending"}
  ]
}`
	var s State
	require.NoError(t, json.Unmarshal([]byte(doc), &s))

	require.Len(t, s.Tasks, 4)
	assert.Equal(t, "42", s.Tasks[0].ID)
	assert.Equal(t, []string{"test_42", "42-sub-2"}, s.Tasks[0].Subtasks)
	assert.Equal(t, "test_42", s.Tasks[1].ID)
	assert.Equal(t, "42", s.Tasks[1].ParentID)
	assert.Equal(t, "test_generator", s.Tasks[1].Agent)
	assert.Equal(t, "42-sub-2", s.Tasks[2].ID)
	assert.Equal(t, "lead-qa", s.Tasks[3].Agent)

	out, err := json.Marshal(s)
	require.NoError(t, err)
	var again State
	require.NoError(t, json.Unmarshal(out, &again))
	assert.Len(t, again.Tasks, 4)
	assert.Equal(t, []string{"test_42", "42-sub-2"}, again.Tasks[0].Subtasks)
}

func TestTask_SetStatus(t *testing.T) {
	tests := []struct {
		from, to TaskStatus
		wantErr  bool
	}{
		{TaskPending, TaskInProgress, false},
		{TaskPending, TaskSkipped, false},
		{TaskInProgress, TaskDone, false},
		{TaskInProgress, TaskFailed, false},
		{TaskInProgress, TaskSkipped, false},
		{TaskDone, TaskPending, true},
		{TaskDone, TaskInProgress, true},
		{TaskFailed, TaskDone, true},
		{TaskPending, TaskDone, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			task := &Task{Agent: "uiux", Status: tt.from}
			err := task.SetStatus(tt.to)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Equal(t, tt.from, task.Status)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.to, task.Status)
			}
		})
	}
}

func TestReport_Fixable(t *testing.T) {
	assert.True(t, (&Report{Type: ReportQAFunctional}).Fixable())
	assert.True(t, (&Report{Type: ReportSecurityAudit}).Fixable())
	assert.False(t, (&Report{Type: ReportUserFeedback}).Fixable())
	assert.False(t, (&Report{Type: ReportQAFunctional, Status: ReportStatusFixed}).Fixable())
}
