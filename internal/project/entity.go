package project

import (
	"encoding/json"
	"fmt"
)

type Status string

const (
	StatusInit                      Status = "init"
	StatusInProgress                Status = "in_progress"
	StatusCompleted                 Status = "completed"
	StatusFailed                    Status = "failed"
	StatusLLMCostLimitExceeded      Status = "llm_cost_limit_exceeded"
	StatusTestsFailed               Status = "tests_failed"
	StatusVulnerabilitiesFound      Status = "vulnerabilities_found"
	StatusHumanInterventionRequired Status = "human_intervention_required"
)

// IsTerminal reports whether no automatic action may touch the project anymore.
func (s Status) IsTerminal() bool {
	return s == StatusHumanInterventionRequired
}

// NeedsCorrection reports whether the status itself triggers a correction cycle.
func (s Status) NeedsCorrection() bool {
	return s == StatusTestsFailed || s == StatusVulnerabilitiesFound
}

type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskDone       TaskStatus = "done"
	TaskFailed     TaskStatus = "failed"
	TaskSkipped    TaskStatus = "skipped"
)

type ReportType string

const (
	ReportQAFunctional  ReportType = "qa_functional"
	ReportSecurityAudit ReportType = "security_audit"
	ReportUserFeedback  ReportType = "user_feedback"
)

func (t ReportType) Valid() bool {
	switch t {
	case ReportQAFunctional, ReportSecurityAudit, ReportUserFeedback:
		return true
	}
	return false
}

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	}
	return false
}

const ReportStatusFixed = "fixed"

// State is the persisted project document. Fields the model does not know
// are kept in Extra and written back unchanged.
type State struct {
	Status          Status    `json:"status"`
	IterationCount  int       `json:"iteration_count"`
	CurrentLLMCost  float64   `json:"current_llm_cost"`
	CorrectionCycle int       `json:"correction_cycle"`
	LastAgent       string    `json:"last_agent,omitempty"`
	Tasks           []*Task   `json:"tasks"`
	Reports         []*Report `json:"reports"`

	Extra map[string]json.RawMessage `json:"-"`
}

// Task is one row of the flat task table. Children point at their parent
// through ParentID and the parent lists child ids in Subtasks.
type Task struct {
	ID                string     `json:"id,omitempty"`
	Type              string     `json:"type,omitempty"`
	Agent             string     `json:"agent"`
	Description       string     `json:"description"`
	Status            TaskStatus `json:"status"`
	Priority          int        `json:"priority,omitempty"`
	Dependencies      []string   `json:"dependencies,omitempty"`
	AssignedTo        string     `json:"assigned_to,omitempty"`
	ArtifactsProduced []string   `json:"artifacts_produced,omitempty"`
	Subtasks          []string   `json:"subtasks,omitempty"`
	ParentID          string     `json:"parent_id,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`

	// nested holds legacy inline subtask objects until State flattens them.
	nested []*Task
}

type Report struct {
	ID          string     `json:"id,omitempty"`
	Type        ReportType `json:"type"`
	Severity    Severity   `json:"severity"`
	Content     string     `json:"content"`
	CreatedAt   string     `json:"created_at,omitempty"`
	RelatedTask string     `json:"related_task,omitempty"`
	Status      string     `json:"status,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

func NewState() *State {
	return &State{
		Status:  StatusInit,
		Tasks:   []*Task{},
		Reports: []*Report{},
	}
}

// Label identifies a task in logs and API responses even when it has no id.
func (t *Task) Label() string {
	if t.ID != "" {
		return t.ID
	}
	return t.Agent
}

var taskTransitions = map[TaskStatus][]TaskStatus{
	TaskPending:    {TaskInProgress, TaskSkipped},
	TaskInProgress: {TaskDone, TaskFailed, TaskSkipped},
}

// SetStatus moves the task forward. Finished tasks are never reopened.
func (t *Task) SetStatus(to TaskStatus) error {
	for _, allowed := range taskTransitions[t.Status] {
		if allowed == to {
			t.Status = to
			return nil
		}
	}
	return fmt.Errorf("task %s: illegal transition %s -> %s", t.Label(), t.Status, to)
}

func (r *Report) Fixed() bool {
	return r.Status == ReportStatusFixed
}

// Fixable reports whether the correction cycle should turn the report into a
// remedial task.
func (r *Report) Fixable() bool {
	return (r.Type == ReportQAFunctional || r.Type == ReportSecurityAudit) && !r.Fixed()
}

type stateAlias State

var stateFields = []string{"status", "iteration_count", "current_llm_cost", "correction_cycle", "last_agent", "tasks", "reports"}

func (s *State) UnmarshalJSON(data []byte) error {
	var a stateAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	extra, err := splitExtra(data, stateFields)
	if err != nil {
		return err
	}
	*s = State(a)
	s.Extra = extra
	if s.Status == "" {
		s.Status = StatusInit
	}
	if s.Tasks == nil {
		s.Tasks = []*Task{}
	}
	if s.Reports == nil {
		s.Reports = []*Report{}
	}
	s.flatten()
	return nil
}

func (s State) MarshalJSON() ([]byte, error) {
	a := stateAlias(s)
	if a.Tasks == nil {
		a.Tasks = []*Task{}
	}
	if a.Reports == nil {
		a.Reports = []*Report{}
	}
	return mergeExtra(a, s.Extra)
}

type taskAlias struct {
	ID                string          `json:"id,omitempty"`
	Type              string          `json:"type,omitempty"`
	Agent             string          `json:"agent"`
	Description       string          `json:"description"`
	Status            TaskStatus      `json:"status"`
	Priority          int             `json:"priority,omitempty"`
	Dependencies      []string        `json:"dependencies,omitempty"`
	AssignedTo        string          `json:"assigned_to,omitempty"`
	ArtifactsProduced []string        `json:"artifacts_produced,omitempty"`
	Subtasks          json.RawMessage `json:"subtasks,omitempty"`
	ParentID          string          `json:"parent_id,omitempty"`
}

var taskFields = []string{"id", "type", "agent", "description", "status", "priority", "dependencies", "assigned_to", "artifacts_produced", "subtasks", "parent_id"}

func (t *Task) UnmarshalJSON(data []byte) error {
	var a taskAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	extra, err := splitExtra(data, taskFields)
	if err != nil {
		return err
	}
	*t = Task{
		ID:                a.ID,
		Type:              a.Type,
		Agent:             a.Agent,
		Description:       a.Description,
		Status:            a.Status,
		Priority:          a.Priority,
		Dependencies:      a.Dependencies,
		AssignedTo:        a.AssignedTo,
		ArtifactsProduced: a.ArtifactsProduced,
		ParentID:          a.ParentID,
		Extra:             extra,
	}
	if t.Status == "" {
		t.Status = TaskPending
	}
	return t.decodeSubtasks(a.Subtasks)
}

// decodeSubtasks accepts both child ids and legacy inline task objects.
func (t *Task) decodeSubtasks(raw json.RawMessage) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return fmt.Errorf("task %s: subtasks: %w", t.Label(), err)
	}
	for _, item := range items {
		var id string
		if err := json.Unmarshal(item, &id); err == nil {
			t.Subtasks = append(t.Subtasks, id)
			continue
		}
		var child Task
		if err := json.Unmarshal(item, &child); err != nil {
			return fmt.Errorf("task %s: subtask: %w", t.Label(), err)
		}
		t.nested = append(t.nested, &child)
	}
	return nil
}

func (t Task) MarshalJSON() ([]byte, error) {
	type plain Task
	p := plain(t)
	p.Extra = nil
	p.nested = nil
	return mergeExtra(p, t.Extra)
}

type reportAlias Report

var reportFields = []string{"id", "type", "severity", "content", "created_at", "related_task", "status"}

func (r *Report) UnmarshalJSON(data []byte) error {
	var a reportAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	extra, err := splitExtra(data, reportFields)
	if err != nil {
		return err
	}
	*r = Report(a)
	r.Extra = extra
	return nil
}

func (r Report) MarshalJSON() ([]byte, error) {
	return mergeExtra(reportAlias(r), r.Extra)
}

// flatten moves legacy inline subtasks into the task table right after
// their parent, assigning ids where the document had none.
func (s *State) flatten() {
	flat := make([]*Task, 0, len(s.Tasks))
	var walk func(t *Task, index string)
	walk = func(t *Task, index string) {
		flat = append(flat, t)
		if len(t.nested) > 0 && t.ID == "" {
			t.ID = "task-" + index
		}
		for i, child := range t.nested {
			if child.ID == "" {
				child.ID = fmt.Sprintf("%s-sub-%d", t.ID, i+1)
			}
			if child.Agent == "" {
				child.Agent = child.AssignedTo
			}
			child.ParentID = t.ID
			t.Subtasks = append(t.Subtasks, child.ID)
		}
		nested := t.nested
		t.nested = nil
		for i, child := range nested {
			walk(child, fmt.Sprintf("%s-%d", index, i+1))
		}
	}
	for i, t := range s.Tasks {
		walk(t, fmt.Sprint(i+1))
	}
	s.Tasks = flat
}

func splitExtra(data []byte, known []string) (map[string]json.RawMessage, error) {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	for _, k := range known {
		delete(all, k)
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all, nil
}

func mergeExtra(v any, extra map[string]json.RawMessage) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if len(extra) == 0 {
		return data, nil
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	for k, raw := range extra {
		if _, ok := all[k]; !ok {
			all[k] = raw
		}
	}
	return json.Marshal(all)
}
