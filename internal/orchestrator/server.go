package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sourcegraph/conc"

	"github.com/kazz187/appbuilder/internal/config"
	"github.com/kazz187/appbuilder/internal/docgen"
	"github.com/kazz187/appbuilder/internal/export"
	"github.com/kazz187/appbuilder/internal/project"
	"github.com/kazz187/appbuilder/internal/report"
	"github.com/kazz187/appbuilder/pkg/cerr"
	"github.com/kazz187/appbuilder/pkg/clog"
	"github.com/kazz187/appbuilder/pkg/panicerr"
	"github.com/kazz187/appbuilder/pkg/storage"
)

type ReportRunner interface {
	RunTests(ctx context.Context, projectID string) (*report.Result, error)
	SecurityAudit(ctx context.Context, projectID string) (*report.Result, error)
}

// Server exposes projects over a JSON API. Workflow runs started through it
// continue in the background after the request returns.
type Server struct {
	orch      *Orchestrator
	repo      project.Repository
	storage   storage.Storage
	reports   ReportRunner
	exportEnv *config.ExportEnv
	runs      conc.WaitGroup
}

func NewServer(orch *Orchestrator, repo project.Repository, s storage.Storage, reports ReportRunner, exportEnv *config.ExportEnv) *Server {
	return &Server{
		orch:      orch,
		repo:      repo,
		storage:   s,
		reports:   reports,
		exportEnv: exportEnv,
	}
}

func (s *Server) Routes(r chi.Router) {
	r.Route("/projects", func(r chi.Router) {
		r.Post("/", s.createProject)
		r.Route("/{projectID}", func(r chi.Router) {
			r.Use(s.projectMiddleware)
			r.Post("/run", s.run)
			r.Post("/feedback", s.feedback)
			r.Post("/reports", s.ingestReport)
			r.Post("/run_tests", s.runTests)
			r.Post("/security_audit", s.securityAudit)
			r.Post("/correct", s.correct)
			r.Post("/repair", s.repair)
			r.Post("/tasks", s.addTask)
			r.Get("/status", s.status)
			r.Get("/context", s.getContext)
			r.Post("/docs", s.generateDocs)
			r.Post("/export_docs", s.exportDocs)
			r.Post("/export_notion", s.exportNotion)
		})
	})
}

// Wait blocks until background workflow runs have finished.
func (s *Server) Wait() {
	s.runs.Wait()
}

// WaitContext is Wait bounded by ctx. Runs still active when ctx is done
// keep going; their state is whatever the last completed step saved.
func (s *Server) WaitContext(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.runs.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// projectMiddleware rejects malformed and unknown project ids before any
// handler touches storage.
func (s *Server) projectMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id := chi.URLParam(r, "projectID")
		if err := project.ValidateID(id); err != nil {
			cerr.SetJSONError(ctx, err)
			return
		}
		ok, err := s.repo.Exists(ctx, id)
		if err != nil {
			cerr.SetJSONError(ctx, err)
			return
		}
		if !ok {
			cerr.SetNewJSONError(ctx, cerr.NotFound, "project not found", nil)
			return
		}
		clog.AddAttribute(ctx, clog.ProjectAttributeKey, id)
		next.ServeHTTP(w, r)
	})
}

type createProjectRequest struct {
	CoreMandate string `json:"core_mandate"`
}

func (s *Server) createProject(_ http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createProjectRequest
	if err := cerr.DecodeJSONBody(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if req.CoreMandate == "" {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "core_mandate is required", nil)
		return
	}
	id, err := s.repo.Init(ctx, req.CoreMandate)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	slog.InfoContext(ctx, "project created", clog.ProjectAttributeKey, id)
	cerr.SetJSONResponseWithStatus(ctx, http.StatusCreated, map[string]string{"project_id": id})
}

func (s *Server) run(_ http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "projectID")
	st, err := s.orch.State(ctx, id)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if st.Status.IsTerminal() {
		cerr.SetJSONError(ctx, ErrTerminal)
		return
	}

	runCtx := context.WithoutCancel(ctx)
	s.runs.Go(func() {
		err := panicerr.Isolate(runCtx, "workflow run", func(ctx context.Context) error {
			_, err := s.orch.RunWorkflow(ctx, id)
			return err
		})
		if err != nil {
			slog.ErrorContext(runCtx, "background workflow failed", "error", err)
		}
	})
	cerr.SetJSONResponseWithStatus(ctx, http.StatusAccepted, map[string]string{
		"status":     "workflow_started",
		"project_id": id,
	})
}

type feedbackRequest struct {
	Feedback string `json:"feedback"`
}

type feedbackResponse struct {
	Report     *project.Report   `json:"report"`
	Correction *CorrectionResult `json:"correction"`
}

func (s *Server) feedback(_ http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req feedbackRequest
	if err := cerr.DecodeJSONBody(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	rep, res, err := s.orch.SubmitFeedback(ctx, chi.URLParam(r, "projectID"), req.Feedback)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, feedbackResponse{Report: rep, Correction: res})
}

func (s *Server) ingestReport(_ http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var rep project.Report
	if err := cerr.DecodeJSONBody(r, &rep); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	st, err := s.orch.IngestReport(ctx, chi.URLParam(r, "projectID"), &rep)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, st)
}

func (s *Server) runTests(_ http.ResponseWriter, r *http.Request) {
	s.runReport(r, s.reports.RunTests)
}

func (s *Server) securityAudit(_ http.ResponseWriter, r *http.Request) {
	s.runReport(r, s.reports.SecurityAudit)
}

func (s *Server) runReport(r *http.Request, fn func(context.Context, string) (*report.Result, error)) {
	ctx := r.Context()
	res, err := fn(ctx, chi.URLParam(r, "projectID"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, res)
}

type correctRequest struct {
	Trigger Trigger `json:"trigger"`
}

func (s *Server) correct(_ http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req := correctRequest{Trigger: TriggerReport}
	if err := cerr.DecodeJSONBody(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	switch req.Trigger {
	case TriggerFeedback, TriggerReport, TriggerStatus:
	default:
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "unknown trigger "+string(req.Trigger), nil)
		return
	}
	res, err := s.orch.HandleCorrectionCycle(ctx, chi.URLParam(r, "projectID"), req.Trigger)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, res)
}

func (s *Server) repair(_ http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reset, _, err := s.orch.RepairStuckTasks(ctx, chi.URLParam(r, "projectID"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, map[string][]string{"reset": reset})
}

func (s *Server) addTask(_ http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var task project.Task
	if err := cerr.DecodeJSONBody(r, &task); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	st, err := s.orch.AddTask(ctx, chi.URLParam(r, "projectID"), &task)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, st)
}

type statusResponse struct {
	ProjectID       string                     `json:"project_id"`
	Status          project.Status             `json:"status"`
	IterationCount  int                        `json:"iteration_count"`
	CurrentLLMCost  float64                    `json:"current_llm_cost"`
	CorrectionCycle int                        `json:"correction_cycle"`
	LastAgent       string                     `json:"last_agent,omitempty"`
	TaskCounts      map[project.TaskStatus]int `json:"task_counts"`
	Tasks           []*project.Task            `json:"tasks"`
	Reports         []*project.Report          `json:"reports"`
}

func (s *Server) status(_ http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "projectID")
	st, err := s.orch.State(ctx, id)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	q := r.URL.Query()
	f := project.Filter{
		TaskStatus: project.TaskStatus(q.Get("task_status")),
		AssignedTo: q.Get("assigned_to"),
		ReportType: project.ReportType(q.Get("report_type")),
		Severity:   project.Severity(q.Get("severity")),
	}
	cerr.SetJSONResponse(ctx, statusResponse{
		ProjectID:       id,
		Status:          st.Status,
		IterationCount:  st.IterationCount,
		CurrentLLMCost:  st.CurrentLLMCost,
		CorrectionCycle: st.CorrectionCycle,
		LastAgent:       st.LastAgent,
		TaskCounts:      st.TaskCounts(),
		Tasks:           st.FilterTasks(f),
		Reports:         st.FilterReports(f),
	})
}

func (s *Server) getContext(_ http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	st, err := s.orch.State(ctx, chi.URLParam(r, "projectID"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, st)
}

func (s *Server) generateDocs(_ http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "projectID")
	st, err := s.orch.State(ctx, id)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	path, err := docgen.Write(ctx, s.storage, id, st)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, map[string]string{"status": "docs_generated", "path": path})
}

type exportDocsRequest struct {
	PageID        string `json:"page_id"`
	PlaneAPIToken string `json:"plane_api_token"`
}

func (s *Server) exportDocs(_ http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "projectID")
	var req exportDocsRequest
	if err := cerr.DecodeJSONBody(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if _, err := docgen.Read(ctx, s.storage, id); err != nil {
		if cerr.IsCode(err, cerr.NotFound) {
			err = cerr.NewError(cerr.NotFound, "docs not found, generate them first", err)
		}
		cerr.SetJSONError(ctx, err)
		return
	}
	token := req.PlaneAPIToken
	if token == "" {
		token = s.exportEnv.PlaneAPIKey
	}
	if token == "" {
		cerr.SetNewJSONError(ctx, cerr.FailedPrecondition, "plane api token is not configured", nil)
		return
	}
	exporter := export.NewDocsExporter(s.storage, export.NewPlaneClient(s.exportEnv.PlaneURL(), token), s.exportEnv.PlanePageID)
	res := exporter.PublishDocs(ctx, id, req.PageID)
	res.Log(ctx)
	if res.Error != "" {
		cerr.SetJSONError(ctx, cerr.NewError(cerr.Unavailable, "plane export failed", errors.New(res.Error)))
		return
	}
	cerr.SetJSONResponse(ctx, map[string]string{"status": "exported", "url": res.URL})
}

type exportNotionRequest struct {
	APIToken   string             `json:"api_token"`
	DatabaseID string             `json:"database_id"`
	Export     export.NotionScope `json:"export"`
}

func (s *Server) exportNotion(_ http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "projectID")
	req := exportNotionRequest{Export: export.NotionAll}
	if err := cerr.DecodeJSONBody(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if req.APIToken == "" || req.DatabaseID == "" {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "api_token and database_id are required", nil)
		return
	}
	if !req.Export.Valid() {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "unknown export scope "+string(req.Export), nil)
		return
	}
	st, err := s.orch.State(ctx, id)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	spec, err := s.storage.Read(ctx, project.FilePath(id, project.SpecificationFile))
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		cerr.SetJSONError(ctx, cerr.WrapStorageReadError("specification", err))
		return
	}
	client := export.NewNotionClient(s.exportEnv.NotionBaseURL, req.APIToken, req.DatabaseID)
	results := export.NewNotionExporter(client).Export(ctx, id, string(spec), st, req.Export)
	cerr.SetJSONResponse(ctx, map[string]any{"status": "exported", "results": results})
}
