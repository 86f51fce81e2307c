package orchestrator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/appbuilder/internal/config"
	"github.com/kazz187/appbuilder/internal/project"
	"github.com/kazz187/appbuilder/internal/report"
	"github.com/kazz187/appbuilder/pkg/cerr"
)

type cannedRunner struct {
	out string
}

func (c cannedRunner) Run(context.Context, string, string) (report.Output, error) {
	return report.Output{Text: c.out, ExitCode: 1}, nil
}

type apiFixture struct {
	*fixture
	server  *Server
	handler http.Handler
}

func newAPIFixture(t *testing.T, exportEnv *config.ExportEnv) *apiFixture {
	t.Helper()
	f := newFixture(t)
	reports := report.NewService(cannedRunner{out: "2 examples, 1 failure"}, f.orch, report.Commands{Test: "rspec", Audit: "brakeman"})
	if exportEnv == nil {
		exportEnv = &config.ExportEnv{}
	}
	srv := NewServer(f.orch, f.repo, f.storage, reports, exportEnv)
	r := chi.NewRouter()
	r.Use(cerr.NewJSONResponseChiMiddleware())
	srv.Routes(r)
	return &apiFixture{fixture: f, server: srv, handler: r}
}

func (a *apiFixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rec
}

func (a *apiFixture) createProject(t *testing.T) string {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/projects", `{"core_mandate":"A todo app"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["project_id"])
	return resp["project_id"]
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestServer_CreateAndRun(t *testing.T) {
	a := newAPIFixture(t, nil)
	id := a.createProject(t)

	mandate, err := a.storage.Read(context.Background(), project.FilePath(id, project.MandateFile))
	require.NoError(t, err)
	assert.Equal(t, "A todo app", string(mandate))

	rec := a.do(t, http.MethodPost, "/projects/"+id+"/run", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), "workflow_started")
	a.server.Wait()

	rec = a.do(t, http.MethodGet, "/projects/"+id+"/status?assigned_to=uiux", "")
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[statusResponse](t, rec)
	assert.Equal(t, project.StatusCompleted, status.Status)
	assert.Equal(t, 10, status.TaskCounts[project.TaskDone])
	require.Len(t, status.Tasks, 1)
	assert.Equal(t, "uiux", status.Tasks[0].Agent)

	rec = a.do(t, http.MethodGet, "/projects/"+id+"/context", "")
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[project.State](t, rec)
	assert.Len(t, st.Tasks, 10)
}

func TestServer_StatusDuringRun(t *testing.T) {
	a := newAPIFixture(t, nil)
	id := a.createProject(t)
	entered, release := a.inv.hold(t)

	rec := a.do(t, http.MethodPost, "/projects/"+id+"/run", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("workflow never reached the first agent")
	}

	polled := make(chan *httptest.ResponseRecorder, 1)
	go func() { polled <- a.do(t, http.MethodGet, "/projects/"+id+"/status", "") }()
	select {
	case rec = <-polled:
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, project.StatusInProgress, decode[statusResponse](t, rec).Status)
	case <-time.After(2 * time.Second):
		t.Fatal("status polling blocked while the workflow was running")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, a.server.WaitContext(ctx), context.DeadlineExceeded)

	release()
	require.NoError(t, a.server.WaitContext(context.Background()))
	rec = a.do(t, http.MethodGet, "/projects/"+id+"/status", "")
	assert.Equal(t, project.StatusCompleted, decode[statusResponse](t, rec).Status)
}

func TestServer_CreateProjectRequiresMandate(t *testing.T) {
	a := newAPIFixture(t, nil)
	rec := a.do(t, http.MethodPost, "/projects", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = a.do(t, http.MethodPost, "/projects", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_UnknownProject(t *testing.T) {
	a := newAPIFixture(t, nil)
	rec := a.do(t, http.MethodGet, "/projects/nope/status", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = a.do(t, http.MethodPost, "/projects/bad.id/run", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, a.inv.total())
}

func TestServer_RunTerminalProject(t *testing.T) {
	a := newAPIFixture(t, nil)
	id := a.createProject(t)
	st := project.NewState()
	st.Status = project.StatusHumanInterventionRequired
	a.save(t, id, st)

	rec := a.do(t, http.MethodPost, "/projects/"+id+"/run", "")
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
	a.server.Wait()
	assert.Zero(t, a.inv.total())
}

func TestServer_ReportsAndCorrection(t *testing.T) {
	a := newAPIFixture(t, nil)
	id := a.createProject(t)

	rec := a.do(t, http.MethodPost, "/projects/"+id+"/run_tests", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[report.Result](t, rec)
	assert.Equal(t, project.SeverityHigh, res.Report.Severity)
	assert.Equal(t, project.StatusTestsFailed, res.State.Status)

	rec = a.do(t, http.MethodPost, "/projects/"+id+"/reports", `{"type":"nonsense","severity":"low","content":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodPost, "/projects/"+id+"/correct", `{"trigger":"status"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	corr := decode[CorrectionResult](t, rec)
	assert.Equal(t, 1, corr.Cycle)
	assert.Len(t, corr.FixTasks, 1)

	rec = a.do(t, http.MethodPost, "/projects/"+id+"/correct", `{"trigger":"whenever"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodPost, "/projects/"+id+"/feedback", `{"feedback":"make it blue"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	fb := decode[feedbackResponse](t, rec)
	assert.Equal(t, project.ReportUserFeedback, fb.Report.Type)
	assert.Equal(t, 2, fb.Correction.Cycle)

	rec = a.do(t, http.MethodGet, "/projects/"+id+"/status?report_type=user_feedback", "")
	status := decode[statusResponse](t, rec)
	require.Len(t, status.Reports, 1)
	assert.Equal(t, "make it blue", status.Reports[0].Content)
}

func TestServer_TasksAndRepair(t *testing.T) {
	a := newAPIFixture(t, nil)
	id := a.createProject(t)

	rec := a.do(t, http.MethodPost, "/projects/"+id+"/tasks", `{"id":"search","type":"feature","agent":"backend-dev","description":"search"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, decode[project.State](t, rec).Tasks, 3)

	rec = a.do(t, http.MethodPost, "/projects/"+id+"/tasks", `{"description":"no agent"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodPost, "/projects/"+id+"/repair", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"reset":[]}`, rec.Body.String())
}

func TestServer_Docs(t *testing.T) {
	plane := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer plane-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pg-1","url":"https://plane.example/pg-1"}`))
	}))
	defer plane.Close()

	a := newAPIFixture(t, &config.ExportEnv{PlaneBaseURL: plane.URL})
	id := a.createProject(t)

	rec := a.do(t, http.MethodPost, "/projects/"+id+"/export_docs", `{"plane_api_token":"plane-token"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(t, http.MethodPost, "/projects/"+id+"/docs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "docs_generated")

	rec = a.do(t, http.MethodPost, "/projects/"+id+"/export_docs", `{}`)
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)

	rec = a.do(t, http.MethodPost, "/projects/"+id+"/export_docs", `{"plane_api_token":"plane-token"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "https://plane.example/pg-1")
}

func TestServer_ExportNotionValidation(t *testing.T) {
	a := newAPIFixture(t, nil)
	id := a.createProject(t)

	rec := a.do(t, http.MethodPost, "/projects/"+id+"/export_notion", `{"api_token":"t"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = a.do(t, http.MethodPost, "/projects/"+id+"/export_notion", `{"api_token":"t","database_id":"d","export":"everything"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
