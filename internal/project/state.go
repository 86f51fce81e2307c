package project

import (
	"fmt"
	"slices"

	"github.com/oklog/ulid/v2"
)

// NextPendingTask returns the active task for agent: the first pending one in
// table order.
func (s *State) NextPendingTask(agent string) *Task {
	for _, t := range s.Tasks {
		if t.Agent == agent && t.Status == TaskPending {
			return t
		}
	}
	return nil
}

func (s *State) FindTask(id string) *Task {
	if id == "" {
		return nil
	}
	for _, t := range s.Tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// UniqueTaskID returns base, or base with a -<n> suffix when the id is taken.
func (s *State) UniqueTaskID(base string) string {
	if s.FindTask(base) == nil {
		return base
	}
	for n := 2; ; n++ {
		id := fmt.Sprintf("%s-%d", base, n)
		if s.FindTask(id) == nil {
			return id
		}
	}
}

// ResetStuckTasks returns tasks left in_progress by an interrupted activation
// to pending and reports their labels.
func (s *State) ResetStuckTasks() []string {
	var reset []string
	for _, t := range s.Tasks {
		if t.Status == TaskInProgress {
			t.Status = TaskPending
			reset = append(reset, t.Label())
		}
	}
	return reset
}

// AddTask appends t to the table. Feature and bugfix tasks get a test and an
// audit subtask.
func (s *State) AddTask(t *Task) error {
	if t.Agent == "" {
		return fmt.Errorf("task agent is required")
	}
	if t.Status == "" {
		t.Status = TaskPending
	}
	if t.AssignedTo == "" {
		t.AssignedTo = t.Agent
	}
	needsChildren := t.Type == "feature" || t.Type == "bugfix"
	if t.ID == "" && needsChildren {
		t.ID = ulid.Make().String()
	}
	if t.ID != "" && s.FindTask(t.ID) != nil {
		return fmt.Errorf("task %s already exists", t.ID)
	}
	s.Tasks = append(s.Tasks, t)
	if !needsChildren {
		return nil
	}
	children := []*Task{
		{
			ID:          "test_" + t.ID,
			Type:        string(ReportQAFunctional),
			Agent:       "test_generator",
			AssignedTo:  "test_generator",
			Description: "Generate and run tests for " + t.ID,
		},
		{
			ID:          "audit_" + t.ID,
			Type:        string(ReportSecurityAudit),
			Agent:       "security_auditor",
			AssignedTo:  "security_auditor",
			Description: "Security audit for " + t.ID,
		},
	}
	for _, c := range children {
		c.ID = s.UniqueTaskID(c.ID)
		c.Status = TaskPending
		c.ParentID = t.ID
		t.Subtasks = append(t.Subtasks, c.ID)
		s.Tasks = append(s.Tasks, c)
	}
	return nil
}

func (s *State) AddReport(r *Report) {
	if r.ID == "" {
		r.ID = ulid.Make().String()
	}
	s.Reports = append(s.Reports, r)
}

// AddCost adds a non-negative amount to the spend ledger; anything else is
// ignored so the ledger never decreases.
func (s *State) AddCost(cost float64) {
	if !(cost > 0) {
		return
	}
	s.CurrentLLMCost += cost
}

// Filter selects tasks and reports for status queries. Empty fields match all.
type Filter struct {
	TaskStatus TaskStatus
	AssignedTo string
	ReportType ReportType
	Severity   Severity
}

func (s *State) FilterTasks(f Filter) []*Task {
	out := []*Task{}
	for _, t := range s.Tasks {
		if f.TaskStatus != "" && t.Status != f.TaskStatus {
			continue
		}
		if f.AssignedTo != "" && t.AssignedTo != f.AssignedTo && t.Agent != f.AssignedTo {
			continue
		}
		out = append(out, t)
	}
	return out
}

func (s *State) FilterReports(f Filter) []*Report {
	out := []*Report{}
	for _, r := range s.Reports {
		if f.ReportType != "" && r.Type != f.ReportType {
			continue
		}
		if f.Severity != "" && r.Severity != f.Severity {
			continue
		}
		out = append(out, r)
	}
	return out
}

// TaskCounts tallies tasks per status.
func (s *State) TaskCounts() map[TaskStatus]int {
	counts := map[TaskStatus]int{}
	for _, t := range s.Tasks {
		counts[t.Status]++
	}
	return counts
}

// Agents returns the distinct agent names in table order.
func (s *State) Agents() []string {
	var agents []string
	for _, t := range s.Tasks {
		if !slices.Contains(agents, t.Agent) {
			agents = append(agents, t.Agent)
		}
	}
	return agents
}
