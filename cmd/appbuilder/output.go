package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/kazz187/appbuilder/internal/orchestrator"
	"github.com/kazz187/appbuilder/internal/project"
	"github.com/kazz187/appbuilder/pkg/color"
)

func printActivation(a orchestrator.Activation) {
	line := color.Status(string(a.Status))
	if a.TaskID != "" {
		line += " task=" + a.TaskID
	}
	if a.Reason != "" {
		line += " reason=" + a.Reason
	}
	if a.Cost > 0 {
		line += fmt.Sprintf(" cost=%.4f", a.Cost)
	}
	if len(a.Artifacts) > 0 {
		line += " artifacts=" + strings.Join(a.Artifacts, ",")
	}
	color.Fprintln(os.Stdout, a.Agent, line)
}

func printSummary(id string, st *project.State) {
	fmt.Printf("%s: %s iteration=%d cost=%.4f correction_cycle=%d\n",
		id, color.Status(string(st.Status)), st.IterationCount, st.CurrentLLMCost, st.CorrectionCycle)
}

func printCorrection(id string, res *orchestrator.CorrectionResult) {
	switch {
	case res.Skipped:
		fmt.Println("Correction skipped")
	case res.Escalated:
		fmt.Printf("Escalated after cycle %d\n", res.Cycle)
	default:
		fmt.Printf("Cycle %d created %d fix task(s)\n", res.Cycle, len(res.FixTasks))
		for _, a := range res.Activations {
			printActivation(a)
		}
	}
	printSummary(id, res.State)
}

func printRunnerResult(id, output, runErr string, r *project.Report, st *project.State) {
	if output != "" {
		fmt.Println(output)
	}
	if runErr != "" {
		fmt.Fprintf(os.Stderr, "runner: %s\n", runErr)
	}
	fmt.Printf("Filed %s report (%s)\n", r.Type, color.Status(string(r.Severity)))
	printSummary(id, st)
}

// printStatus prints tasks grouped by agent, then reports.
func printStatus(id string, st *project.State, f project.Filter) {
	printSummary(id, st)

	counts := st.TaskCounts()
	for _, s := range []project.TaskStatus{
		project.TaskPending, project.TaskInProgress, project.TaskDone, project.TaskFailed, project.TaskSkipped,
	} {
		if counts[s] > 0 {
			fmt.Printf("  %s: %d\n", color.Status(string(s)), counts[s])
		}
	}

	tasks := st.FilterTasks(f)
	if len(tasks) > 0 {
		fmt.Println("\nTasks:")
	}
	for _, agent := range st.Agents() {
		for _, t := range tasks {
			if t.Agent != agent {
				continue
			}
			desc := t.Description
			if t.ID != "" {
				desc = t.ID + " " + desc
			}
			color.Fprintln(os.Stdout, agent, padStatus(string(t.Status), 12)+desc)
		}
	}

	reports := st.FilterReports(f)
	if len(reports) > 0 {
		fmt.Println("\nReports:")
	}
	for _, r := range reports {
		fixed := ""
		if r.Fixed() {
			fixed = " (fixed)"
		}
		fmt.Printf("  %-15s %s%s%s\n", r.Type, padStatus(string(r.Severity), 8), firstLine(r.Content), fixed)
	}
}

// padStatus pads before coloring so escape codes do not break alignment.
func padStatus(s string, width int) string {
	pad := 1
	if len(s) < width {
		pad = width - len(s)
	}
	return color.Status(s) + strings.Repeat(" ", pad)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}
