package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kazz187/appbuilder/internal/eventbus"
	"github.com/kazz187/appbuilder/internal/project"
	"github.com/kazz187/appbuilder/pkg/cerr"
)

// IngestReport appends an externally produced report. Type and severity are
// taken as given. A high severity QA or security report flags the project so
// that a status triggered correction picks it up, unless the budget is
// exhausted: that status holds until the ledger is reset.
func (o *Orchestrator) IngestReport(ctx context.Context, projectID string, r *project.Report) (*project.State, error) {
	if !r.Type.Valid() {
		return nil, cerr.NewError(cerr.InvalidArgument, fmt.Sprintf("unknown report type %q", r.Type), nil)
	}
	if !r.Severity.Valid() {
		return nil, cerr.NewError(cerr.InvalidArgument, fmt.Sprintf("unknown severity %q", r.Severity), nil)
	}

	ctx, s, unlock, err := o.open(ctx, projectID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	st := s.state
	if r.CreatedAt == "" {
		r.CreatedAt = o.now().UTC().Format(time.RFC3339)
	}
	st.AddReport(r)
	if r.Severity == project.SeverityHigh && !st.Status.IsTerminal() && st.Status != project.StatusLLMCostLimitExceeded {
		switch r.Type {
		case project.ReportQAFunctional:
			st.Status = project.StatusTestsFailed
		case project.ReportSecurityAudit:
			st.Status = project.StatusVulnerabilitiesFound
		}
	}
	if err := o.repo.Save(ctx, projectID, st); err != nil {
		return nil, err
	}
	o.publish(eventbus.ReportIngested, projectID, r.Content, map[string]string{
		"type":     string(r.Type),
		"severity": string(r.Severity),
	})
	slog.InfoContext(ctx, "report ingested", "report_id", r.ID, "type", r.Type, "severity", r.Severity, "status", st.Status)
	return st, nil
}

// SubmitFeedback records user feedback as a report and runs a correction
// cycle in the same locked span.
func (o *Orchestrator) SubmitFeedback(ctx context.Context, projectID, feedback string) (*project.Report, *CorrectionResult, error) {
	if feedback == "" {
		return nil, nil, cerr.NewError(cerr.InvalidArgument, "feedback is required", nil)
	}
	ctx, s, unlock, err := o.open(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}
	defer unlock()

	r := &project.Report{
		Type:      project.ReportUserFeedback,
		Severity:  project.SeverityMedium,
		Content:   feedback,
		CreatedAt: o.now().UTC().Format(time.RFC3339),
	}
	s.state.AddReport(r)
	o.persist(ctx, s)
	o.publish(eventbus.ReportIngested, projectID, feedback, map[string]string{"type": string(r.Type)})
	return r, o.correct(ctx, s, TriggerFeedback), nil
}
