package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/kazz187/appbuilder/internal/eventbus"
	"github.com/kazz187/appbuilder/internal/project"
)

type Trigger string

const (
	TriggerFeedback Trigger = "feedback"
	TriggerReport   Trigger = "report"
	// TriggerStatus only acts when the project status asks for a correction.
	TriggerStatus Trigger = "status"
)

// RecoverySequence is the agent order of a correction cycle.
var RecoverySequence = []string{"auto-fixer", "backend-dev", "lead-qa"}

const fixerAgent = "auto-fixer"

type CorrectionResult struct {
	State       *project.State `json:"state"`
	Cycle       int            `json:"cycle"`
	FixTasks    []string       `json:"fix_tasks"`
	Activations []Activation   `json:"activations"`
	Escalated   bool           `json:"escalated"`
	// Skipped is set when the controller did nothing: terminal project, or
	// a status trigger on a healthy project.
	Skipped bool `json:"skipped"`
}

// HandleCorrectionCycle turns unresolved QA and security reports into fix
// tasks and re-runs the recovery sequence. Past the cycle ceiling the project
// is escalated to human intervention and nothing runs again.
func (o *Orchestrator) HandleCorrectionCycle(ctx context.Context, projectID string, trigger Trigger) (*CorrectionResult, error) {
	ctx, s, unlock, err := o.open(ctx, projectID)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return o.correct(ctx, s, trigger), nil
}

func (o *Orchestrator) correct(ctx context.Context, s *session, trigger Trigger) *CorrectionResult {
	st := s.state
	res := &CorrectionResult{State: st, Cycle: st.CorrectionCycle, FixTasks: []string{}}

	if st.Status.IsTerminal() {
		slog.InfoContext(ctx, "correction ignored, project awaits human intervention")
		res.Skipped = true
		return res
	}
	if trigger == TriggerStatus && !st.Status.NeedsCorrection() {
		res.Skipped = true
		return res
	}

	st.CorrectionCycle++
	res.Cycle = st.CorrectionCycle
	o.metrics.corrections.WithLabelValues(string(trigger)).Inc()

	if st.CorrectionCycle > o.cfg.MaxCorrectionCycles {
		st.Status = project.StatusHumanInterventionRequired
		res.Escalated = true
		o.persist(ctx, s)
		o.metrics.escalations.Inc()
		o.publish(eventbus.EscalationRequired, s.projectID,
			fmt.Sprintf("correction cycle %d exceeded the limit of %d", st.CorrectionCycle, o.cfg.MaxCorrectionCycles),
			map[string]string{"cycle": strconv.Itoa(st.CorrectionCycle)})
		slog.WarnContext(ctx, "correction limit exceeded, human intervention required", "cycle", st.CorrectionCycle)
		return res
	}

	for _, r := range st.Reports {
		if !r.Fixable() {
			continue
		}
		related := r.RelatedTask
		if related == "" {
			related = "unknown"
		}
		deps := []string{}
		if r.RelatedTask != "" {
			deps = append(deps, r.RelatedTask)
		}
		task := &project.Task{
			ID:           st.UniqueTaskID(fmt.Sprintf("fix-%s-%d", related, st.CorrectionCycle)),
			Agent:        fixerAgent,
			AssignedTo:   fixerAgent,
			Description:  "Fix: " + r.Content,
			Status:       project.TaskPending,
			Priority:     1,
			Dependencies: deps,
		}
		st.Tasks = append(st.Tasks, task)
		r.Status = project.ReportStatusFixed
		res.FixTasks = append(res.FixTasks, task.ID)
	}

	st.Status = project.StatusInProgress
	o.persist(ctx, s)
	o.publish(eventbus.CorrectionStarted, s.projectID, string(trigger),
		map[string]string{"cycle": strconv.Itoa(st.CorrectionCycle), "fix_tasks": strconv.Itoa(len(res.FixTasks))})
	slog.InfoContext(ctx, "correction cycle started", "cycle", st.CorrectionCycle, "trigger", trigger, "fix_tasks", len(res.FixTasks))

	for _, name := range RecoverySequence {
		res.Activations = append(res.Activations, o.activate(ctx, s, name))
	}

	if st.Status == project.StatusInProgress {
		st.Status = project.StatusCompleted
	}
	o.persist(ctx, s)
	return res
}
