package docgen

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/appbuilder/internal/project"
	"github.com/kazz187/appbuilder/pkg/cerr"
	"github.com/kazz187/appbuilder/pkg/storage"
)

func sampleState() *project.State {
	st := project.NewState()
	st.Status = project.StatusCompleted
	st.IterationCount = 2
	st.Tasks = []*project.Task{
		{ID: "42", Agent: "backend-dev", Description: "login\nflow", Status: project.TaskDone, Subtasks: []string{"test_42"}},
		{ID: "test_42", Agent: "test_generator", Description: "tests", Status: project.TaskPending, ParentID: "42"},
		{Agent: "uiux", Description: "design", Status: project.TaskDone},
	}
	st.Reports = []*project.Report{
		{Type: project.ReportQAFunctional, Severity: project.SeverityHigh, Content: "2 failures", Status: project.ReportStatusFixed},
	}
	return st
}

func TestGenerate(t *testing.T) {
	doc := Generate("p1", sampleState())

	assert.True(t, strings.HasPrefix(doc, "# Project documentation p1\n"))
	assert.Contains(t, doc, "- status: completed\n")
	assert.Contains(t, doc, "- [done] login flow (id: 42, agent: backend-dev)\n    - [pending] tests (id: test_42, agent: test_generator)\n")
	assert.Contains(t, doc, "- [done] design (id: , agent: uiux)\n")
	assert.Contains(t, doc, "- [qa_functional] 2 failures (severity: high, created_at: , fixed)\n")
	assert.Equal(t, 1, strings.Count(doc, "(id: test_42"))
}

func TestWriteRead(t *testing.T) {
	ctx := context.Background()
	s, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = Read(ctx, s, "p1")
	assert.True(t, cerr.IsCode(err, cerr.NotFound))

	path, err := Write(ctx, s, "p1", sampleState())
	require.NoError(t, err)
	assert.Equal(t, "projects/p1/generated_docs.md", path)

	doc, err := Read(ctx, s, "p1")
	require.NoError(t, err)
	assert.Contains(t, doc, "## Reports")
}
