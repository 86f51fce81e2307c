package project

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_NextPendingTask(t *testing.T) {
	s := NewState()
	s.Tasks = []*Task{
		{ID: "a", Agent: "backend-dev", Status: TaskDone},
		{ID: "b", Agent: "backend-dev", Status: TaskPending},
		{ID: "c", Agent: "backend-dev", Status: TaskPending},
	}
	assert.Equal(t, "b", s.NextPendingTask("backend-dev").ID)
	assert.Nil(t, s.NextPendingTask("lead-qa"))
}

func TestState_UniqueTaskID(t *testing.T) {
	s := NewState()
	s.Tasks = []*Task{{ID: "fix-t1-1"}, {ID: "fix-t1-1-2"}}
	assert.Equal(t, "fix-t1-2", s.UniqueTaskID("fix-t1-2"))
	assert.Equal(t, "fix-t1-1-3", s.UniqueTaskID("fix-t1-1"))
}

func TestState_ResetStuckTasks(t *testing.T) {
	s := NewState()
	s.Tasks = []*Task{
		{Agent: "uiux", Status: TaskDone},
		{Agent: "backend-dev", Status: TaskInProgress},
		{ID: "fix-1", Agent: "auto-fixer", Status: TaskInProgress},
	}
	assert.Equal(t, []string{"backend-dev", "fix-1"}, s.ResetStuckTasks())
	assert.Equal(t, TaskPending, s.Tasks[1].Status)
	assert.Equal(t, TaskDone, s.Tasks[0].Status)
	assert.Empty(t, s.ResetStuckTasks())
}

func TestState_AddTask(t *testing.T) {
	t.Run("feature gets test and audit subtasks", func(t *testing.T) {
		s := NewState()
		require.NoError(t, s.AddTask(&Task{ID: "login", Type: "feature", Agent: "backend-dev", Description: "login"}))

		require.Len(t, s.Tasks, 3)
		parent := s.Tasks[0]
		assert.Equal(t, []string{"test_login", "audit_login"}, parent.Subtasks)
		assert.Equal(t, TaskPending, parent.Status)

		test := s.FindTask("test_login")
		require.NotNil(t, test)
		assert.Equal(t, "qa_functional", test.Type)
		assert.Equal(t, "test_generator", test.AssignedTo)
		assert.Equal(t, "login", test.ParentID)

		audit := s.FindTask("audit_login")
		require.NotNil(t, audit)
		assert.Equal(t, "security_audit", audit.Type)
		assert.Equal(t, "security_auditor", audit.AssignedTo)
	})

	t.Run("plain task", func(t *testing.T) {
		s := NewState()
		require.NoError(t, s.AddTask(&Task{Agent: "doc-agent", Description: "readme"}))
		require.Len(t, s.Tasks, 1)
		assert.Empty(t, s.Tasks[0].Subtasks)
		assert.Equal(t, "doc-agent", s.Tasks[0].AssignedTo)
	})

	t.Run("bugfix without id gets one", func(t *testing.T) {
		s := NewState()
		require.NoError(t, s.AddTask(&Task{Type: "bugfix", Agent: "backend-dev"}))
		require.Len(t, s.Tasks, 3)
		assert.NotEmpty(t, s.Tasks[0].ID)
	})

	t.Run("rejects missing agent and duplicate id", func(t *testing.T) {
		s := NewState()
		assert.Error(t, s.AddTask(&Task{Description: "orphan"}))
		require.NoError(t, s.AddTask(&Task{ID: "x", Agent: "uiux"}))
		assert.Error(t, s.AddTask(&Task{ID: "x", Agent: "uiux"}))
	})
}

func TestState_AddCostNeverDecreases(t *testing.T) {
	s := NewState()
	for _, c := range []float64{0.5, -3, math.NaN(), 0, 1.25} {
		before := s.CurrentLLMCost
		s.AddCost(c)
		assert.GreaterOrEqual(t, s.CurrentLLMCost, before)
	}
	assert.InDelta(t, 1.75, s.CurrentLLMCost, 1e-9)
}

func TestState_Filters(t *testing.T) {
	s := NewState()
	s.Tasks = []*Task{
		{Agent: "uiux", AssignedTo: "uiux", Status: TaskDone},
		{Agent: "auto-fixer", AssignedTo: "auto-fixer", Status: TaskPending},
	}
	s.Reports = []*Report{
		{Type: ReportQAFunctional, Severity: SeverityHigh},
		{Type: ReportUserFeedback, Severity: SeverityMedium},
	}
	assert.Len(t, s.FilterTasks(Filter{TaskStatus: TaskPending}), 1)
	assert.Len(t, s.FilterTasks(Filter{AssignedTo: "uiux"}), 1)
	assert.Len(t, s.FilterTasks(Filter{}), 2)
	assert.Len(t, s.FilterReports(Filter{Severity: SeverityHigh}), 1)
	assert.Len(t, s.FilterReports(Filter{ReportType: ReportUserFeedback}), 1)
}

func TestLocker_SerializesSameProject(t *testing.T) {
	l := NewLocker()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		active  int
		maxSeen int
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.Lock("p1")
			defer unlock()
			mu.Lock()
			active++
			maxSeen = max(maxSeen, active)
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}

func TestLocker_DistinctProjectsDoNotBlock(t *testing.T) {
	l := NewLocker()
	unlock := l.Lock("p1")
	defer unlock()

	done := make(chan struct{})
	go func() {
		l.Lock("p2")()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on p2 blocked behind p1")
	}
}
