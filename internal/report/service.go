// Package report runs the containerized test suite and security scanner of a
// project and files their output as reports.
package report

import (
	"context"
	"log/slog"
	"time"

	"github.com/kazz187/appbuilder/internal/project"
	"github.com/kazz187/appbuilder/pkg/panicerr"
)

const noOutput = "No output"

type Ingestor interface {
	IngestReport(ctx context.Context, projectID string, r *project.Report) (*project.State, error)
}

type Commands struct {
	Test  string
	Audit string
}

type Service struct {
	runner   Runner
	ingestor Ingestor
	commands Commands
	now      func() time.Time
}

func NewService(runner Runner, ingestor Ingestor, commands Commands) *Service {
	return &Service{runner: runner, ingestor: ingestor, commands: commands, now: time.Now}
}

// Result is the outcome of one runner invocation. Error carries a runner
// failure; the report is filed regardless.
type Result struct {
	Output   string          `json:"result"`
	ExitCode int             `json:"exit_code"`
	Error    string          `json:"error,omitempty"`
	Report   *project.Report `json:"report"`
	State    *project.State  `json:"state"`
}

// RunTests runs the test command and files a qa_functional report.
func (s *Service) RunTests(ctx context.Context, projectID string) (*Result, error) {
	return s.run(ctx, projectID, "run tests", s.commands.Test, project.ReportQAFunctional, ClassifyTestOutput)
}

// SecurityAudit runs the scanner and files a security_audit report.
func (s *Service) SecurityAudit(ctx context.Context, projectID string) (*Result, error) {
	return s.run(ctx, projectID, "security audit", s.commands.Audit, project.ReportSecurityAudit, ClassifyAuditOutput)
}

func (s *Service) run(
	ctx context.Context,
	projectID, step, command string,
	reportType project.ReportType,
	classify func(string) project.Severity,
) (*Result, error) {
	if err := project.ValidateID(projectID); err != nil {
		return nil, err
	}

	res := &Result{}
	err := panicerr.Isolate(ctx, step, func(ctx context.Context) error {
		out, err := s.runner.Run(ctx, projectID, command)
		res.Output, res.ExitCode = out.Text, out.ExitCode
		return err
	})
	if err != nil {
		res.Error = err.Error()
	}

	content := res.Output
	severity := project.SeverityLow
	if content == "" {
		content = noOutput
	} else {
		severity = classify(content)
	}
	res.Report = &project.Report{
		Type:      reportType,
		Severity:  severity,
		Content:   content,
		CreatedAt: s.now().UTC().Format(time.RFC3339),
	}

	st, err := s.ingestor.IngestReport(ctx, projectID, res.Report)
	if err != nil {
		return nil, err
	}
	res.State = st
	slog.InfoContext(ctx, "runner report filed", "step", step, "severity", severity, "exit_code", res.ExitCode)
	return res, nil
}
