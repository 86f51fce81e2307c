package internal

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/appbuilder/internal/agent"
	"github.com/kazz187/appbuilder/internal/artifact"
	"github.com/kazz187/appbuilder/internal/budget"
	"github.com/kazz187/appbuilder/internal/config"
	"github.com/kazz187/appbuilder/internal/invoker"
	"github.com/kazz187/appbuilder/internal/orchestrator"
	"github.com/kazz187/appbuilder/internal/project"
	"github.com/kazz187/appbuilder/internal/project/repositoryimpl"
	"github.com/kazz187/appbuilder/internal/pushnotification"
	pushsubrepo "github.com/kazz187/appbuilder/internal/pushsubscription/repositoryimpl"
	"github.com/kazz187/appbuilder/internal/report"
	"github.com/kazz187/appbuilder/pkg/storage"
)

func newTestHandler(t *testing.T, apiKey string) http.Handler {
	t.Helper()
	env := &config.Env{BaseEnv: config.BaseEnv{APIKey: apiKey}}
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	repo := repositoryimpl.NewJSONRepository(store)
	orch := orchestrator.New(
		orchestrator.Config{MaxCorrectionCycles: 3},
		repo,
		project.NewLocker(),
		agent.NewRegistry(nil),
		invoker.NewHTTPInvoker("http://127.0.0.1:1", "", time.Second),
		budget.NewGovernor(10, 0.01, budget.NewMetrics(reg)),
		artifact.NewRouter(store),
		orchestrator.WithMetrics(orchestrator.NewMetrics(reg)),
	)
	reports := report.NewService(&report.DockerRunner{}, orch, report.Commands{Test: "true", Audit: "true"})
	pushRepo := pushsubrepo.NewYAMLRepository(store)
	vapid := &config.VAPIDEnv{}

	srv := NewServer(
		env,
		orchestrator.NewServer(orch, repo, store, reports, &env.ExportEnv),
		pushnotification.NewServer(vapid, pushRepo, pushnotification.NewSender(vapid, pushRepo)),
		reg,
	)
	return srv.Handler()
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_APIKey(t *testing.T) {
	h := newTestHandler(t, "secret")

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	body := `{"core_mandate":"shop"}`
	rec = serve(h, httptest.NewRequest(http.MethodPost, "/api/projects", strings.NewReader(body)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/projects", strings.NewReader(body))
	req.Header.Set("X-API-Key", "wrong")
	assert.Equal(t, http.StatusUnauthorized, serve(h, req).Code)

	req = httptest.NewRequest(http.MethodPost, "/api/projects", strings.NewReader(body))
	req.Header.Set("X-API-Key", "secret")
	assert.Equal(t, http.StatusCreated, serve(h, req).Code)

	req = httptest.NewRequest(http.MethodPost, "/api/projects", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer secret")
	assert.Equal(t, http.StatusCreated, serve(h, req).Code)
}

func TestServer_NotFound(t *testing.T) {
	h := newTestHandler(t, "")
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/nothing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"code":"not_found","message":"not found"}`, rec.Body.String())
}

func TestServer_RunTestsWithoutDocker(t *testing.T) {
	h := newTestHandler(t, "")
	rec := serve(h, httptest.NewRequest(http.MethodPost, "/api/projects", strings.NewReader(`{"core_mandate":"blog"}`)))
	require.Equal(t, http.StatusCreated, rec.Code)
	id := strings.Split(rec.Body.String(), `"`)[3]

	rec = serve(h, httptest.NewRequest(http.MethodPost, "/api/projects/"+id+"/run_tests", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "docker not available")
	assert.Contains(t, rec.Body.String(), "No output")
}
