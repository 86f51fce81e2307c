package export

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/appbuilder/internal/project"
	"github.com/kazz187/appbuilder/pkg/storage"
)

type recorded struct {
	method, path, auth string
	body               map[string]any
}

func recordingServer(t *testing.T, status int, response string) (*httptest.Server, func() []recorded) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []recorded
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		reqs = append(reqs, recorded{r.Method, r.URL.Path, r.Header.Get("Authorization"), body})
		mu.Unlock()
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv, func() []recorded {
		mu.Lock()
		defer mu.Unlock()
		return append([]recorded(nil), reqs...)
	}
}

func TestPlaneClient_CreateAndUpdate(t *testing.T) {
	srv, reqs := recordingServer(t, http.StatusCreated, `{"url":"https://plane.so/p/1"}`)
	c := NewPlaneClient(srv.URL+"/v1/", "tok")

	url, err := c.ExportPage(context.Background(), "Docs", "# body", "")
	require.NoError(t, err)
	assert.Equal(t, "https://plane.so/p/1", url)

	_, err = c.ExportPage(context.Background(), "Docs", "# body", "abc")
	require.NoError(t, err)

	got := reqs()
	require.Len(t, got, 2)
	assert.Equal(t, http.MethodPost, got[0].method)
	assert.Equal(t, "/v1/pages/", got[0].path)
	assert.Equal(t, "Bearer tok", got[0].auth)
	assert.Equal(t, "Docs", got[0].body["title"])
	assert.Equal(t, http.MethodPatch, got[1].method)
	assert.Equal(t, "/v1/pages/abc/", got[1].path)
}

func TestPlaneClient_Error(t *testing.T) {
	srv, _ := recordingServer(t, http.StatusUnauthorized, `bad token`)
	_, err := NewPlaneClient(srv.URL, "tok").ExportPage(context.Background(), "Docs", "x", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestDocsExporter(t *testing.T) {
	ctx := context.Background()
	s, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	st := project.NewState()

	t.Run("without plane is skipped but writes docs", func(t *testing.T) {
		res := NewDocsExporter(s, nil, "").ExportDocs(ctx, "p1", st)
		assert.True(t, res.Skipped)
		ok, err := s.Exists(ctx, "projects/p1/generated_docs.md")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("with plane", func(t *testing.T) {
		srv, reqs := recordingServer(t, http.StatusOK, `{"url":"u"}`)
		res := NewDocsExporter(s, NewPlaneClient(srv.URL, "tok"), "page-1").ExportDocs(ctx, "p1", st)
		assert.True(t, res.OK())
		assert.Equal(t, "u", res.URL)
		assert.Equal(t, "/pages/page-1/", reqs()[0].path)
	})

	t.Run("plane failure is a result, not a panic", func(t *testing.T) {
		srv, _ := recordingServer(t, http.StatusInternalServerError, `down`)
		res := NewDocsExporter(s, NewPlaneClient(srv.URL, "tok"), "").ExportDocs(ctx, "p1", st)
		assert.False(t, res.OK())
		assert.NotEmpty(t, res.Error)
	})

	t.Run("publish requires generated docs", func(t *testing.T) {
		srv, _ := recordingServer(t, http.StatusOK, `{"url":"u"}`)
		res := NewDocsExporter(s, NewPlaneClient(srv.URL, "tok"), "").PublishDocs(ctx, "other", "")
		assert.NotEmpty(t, res.Error)
	})
}

func TestNotionExporter(t *testing.T) {
	srv, reqs := recordingServer(t, http.StatusOK, `{"id":"pg","url":"https://notion.so/pg"}`)
	e := NewNotionExporter(NewNotionClient(srv.URL, "tok", "db-1"))

	st := project.NewState()
	st.Tasks = []*project.Task{{Agent: "uiux", Description: "design", Status: project.TaskDone, AssignedTo: "uiux"}}
	st.Reports = []*project.Report{{Type: project.ReportSecurityAudit, Severity: project.SeverityHigh, Content: "xss"}}

	results := e.Export(context.Background(), "p1", "# spec", st, NotionAll)
	assert.Len(t, results["specification"], 1)
	assert.Len(t, results["tasks"], 1)
	assert.Len(t, results["reports"], 1)
	assert.Equal(t, "https://notion.so/pg", results["tasks"][0].URL)

	got := reqs()
	require.Len(t, got, 3)
	for _, r := range got {
		assert.Equal(t, "/pages", r.path)
		assert.Equal(t, map[string]any{"database_id": "db-1"}, r.body["parent"])
	}

	onlyTasks := e.Export(context.Background(), "p1", "# spec", st, NotionTasks)
	assert.NotContains(t, onlyTasks, "specification")
	assert.Len(t, onlyTasks["tasks"], 1)
}

func TestParagraphs_SplitsLongText(t *testing.T) {
	long := make([]rune, notionTextLimit+10)
	for i := range long {
		long[i] = 'ж'
	}
	assert.Len(t, paragraphs(string(long)), 2)
	assert.Empty(t, paragraphs(""))
}
