// Package docgen renders project documentation as markdown from the project
// state document.
package docgen

import (
	"context"
	"fmt"
	"strings"

	"github.com/kazz187/appbuilder/internal/project"
	"github.com/kazz187/appbuilder/pkg/cerr"
	"github.com/kazz187/appbuilder/pkg/storage"
)

const File = "generated_docs.md"

func Title(projectID string) string {
	return "Project documentation " + projectID
}

// Generate renders the documentation for one project.
func Generate(projectID string, st *project.State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", Title(projectID))

	b.WriteString("## Contents\n")
	b.WriteString("1. [Status](#status)\n")
	b.WriteString("2. [Workflow](#workflow)\n")
	b.WriteString("3. [Data model](#data-model)\n")
	b.WriteString("4. [Tasks](#tasks)\n")
	b.WriteString("5. [Reports](#reports)\n")
	b.WriteString("6. [API](#api)\n\n")

	b.WriteString("## Status\n")
	fmt.Fprintf(&b, "- status: %s\n", st.Status)
	fmt.Fprintf(&b, "- iteration_count: %d\n", st.IterationCount)
	fmt.Fprintf(&b, "- correction_cycle: %d\n", st.CorrectionCycle)
	fmt.Fprintf(&b, "- current_llm_cost: %.2f\n", st.CurrentLLMCost)
	if st.LastAgent != "" {
		fmt.Fprintf(&b, "- last_agent: %s\n", st.LastAgent)
	}
	b.WriteString("\n")

	b.WriteString("## Workflow\n")
	b.WriteString("- Pipeline: uiux, project-manager, solution-architect, database-architect, backend-dev, frontend-dev, lead-qa, security-auditor, senior-devops, doc-agent\n")
	b.WriteString("- Self-correction cycle: QA / audit report, auto-fixer, backend-dev, lead-qa\n")
	b.WriteString("- Every LLM call is checked against the project cost ceiling\n\n")

	b.WriteString("## Data model\n")
	b.WriteString("### Project\n- status\n- iteration_count\n- current_llm_cost\n- correction_cycle\n- last_agent\n- tasks\n- reports\n\n")
	b.WriteString("### Task\n- id\n- agent\n- description\n- status\n- priority\n- dependencies\n- assigned_to\n- artifacts_produced\n- subtasks\n- parent_id\n\n")
	b.WriteString("### Report\n- id\n- type\n- severity\n- content\n- created_at\n- related_task\n- status\n\n")

	b.WriteString("## Tasks\n")
	children := map[string][]*project.Task{}
	for _, t := range st.Tasks {
		if t.ParentID != "" {
			children[t.ParentID] = append(children[t.ParentID], t)
		}
	}
	for _, t := range st.Tasks {
		if t.ParentID != "" && st.FindTask(t.ParentID) != nil {
			continue
		}
		writeTask(&b, t, "")
		for _, c := range children[t.ID] {
			writeTask(&b, c, "    ")
		}
	}
	b.WriteString("\n")

	b.WriteString("## Reports\n")
	for _, r := range st.Reports {
		fmt.Fprintf(&b, "- [%s] %s (severity: %s, created_at: %s", r.Type, oneLine(r.Content), r.Severity, r.CreatedAt)
		if r.Fixed() {
			b.WriteString(", fixed")
		}
		b.WriteString(")\n")
	}
	b.WriteString("\n")

	b.WriteString("## API\n")
	b.WriteString("| Method | URL | Description |\n")
	b.WriteString("|--------|-----|-------------|\n")
	b.WriteString("| POST | /api/projects | Create a project from a core mandate |\n")
	b.WriteString("| POST | /api/projects/{id}/run | Start the workflow |\n")
	b.WriteString("| GET | /api/projects/{id}/status | Status, tasks and reports |\n")
	b.WriteString("| GET | /api/projects/{id}/context | Full project state |\n")
	b.WriteString("| POST | /api/projects/{id}/feedback | Submit feedback and start a correction cycle |\n")
	b.WriteString("\n(generated)\n")
	return b.String()
}

func writeTask(b *strings.Builder, t *project.Task, indent string) {
	fmt.Fprintf(b, "%s- [%s] %s (id: %s, agent: %s)\n", indent, t.Status, oneLine(t.Description), t.ID, t.Agent)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Write renders the documentation into the project workspace and returns
// the storage path.
func Write(ctx context.Context, s storage.Storage, projectID string, st *project.State) (string, error) {
	path := project.FilePath(projectID, File)
	if err := s.Write(ctx, path, []byte(Generate(projectID, st))); err != nil {
		return "", cerr.WrapStorageWriteError("documentation", err)
	}
	return path, nil
}

// Read returns previously generated documentation.
func Read(ctx context.Context, s storage.Storage, projectID string) (string, error) {
	data, err := s.Read(ctx, project.FilePath(projectID, File))
	if err != nil {
		return "", cerr.WrapStorageReadError("documentation", err)
	}
	return string(data), nil
}
