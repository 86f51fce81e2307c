package invoker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/appbuilder/internal/agent"
)

func newServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPInvoker_SendsRequest(t *testing.T) {
	var got httpRequest
	var auth string
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"result":"# Design","usage":{"cost":0.25}}`))
	})

	inv := NewHTTPInvoker(srv.URL, "secret", time.Second)
	res := inv.Invoke(context.Background(), Request{
		Prompt:          "You are a designer",
		Model:           "m1",
		Tools:           []agent.Capability{agent.WriteDesign},
		TaskDescription: "Create the design",
	})

	assert.Equal(t, "Bearer secret", auth)
	assert.Equal(t, httpRequest{
		Model:           "m1",
		Prompt:          "You are a designer",
		TaskDescription: "Create the design",
		Tools:           []string{"write_design"},
	}, got)
	assert.Equal(t, OutcomeDone, res.Outcome)
	assert.Equal(t, "# Design", res.Output)
	assert.True(t, res.HasCost)
	assert.InDelta(t, 0.25, res.Cost, 1e-9)
}

func TestHTTPInvoker_Outcomes(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantOutcome Outcome
		wantOutput  string
		wantHasCost bool
	}{
		{name: "done without cost", status: 200, body: `{"result":"text"}`, wantOutcome: OutcomeDone, wantOutput: "text"},
		{name: "created counts as success", status: 201, body: `{"result":"x","usage":{"cost":1}}`, wantOutcome: OutcomeDone, wantOutput: "x", wantHasCost: true},
		{name: "no content is a failure", status: 204, wantOutcome: OutcomeFailed},
		{name: "server error", status: 500, body: `{"result":"ignored"}`, wantOutcome: OutcomeFailed},
		{name: "rate limited", status: 429, body: `slow down`, wantOutcome: OutcomeFailed},
		{name: "malformed body", status: 200, body: `not json`, wantOutcome: OutcomeFailed},
		{name: "missing result", status: 200, body: `{"usage":{"cost":1}}`, wantOutcome: OutcomeFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			res := NewHTTPInvoker(srv.URL, "", time.Second).Invoke(context.Background(), Request{})
			assert.Equal(t, tt.wantOutcome, res.Outcome)
			assert.Equal(t, tt.wantOutput, res.Output)
			assert.Equal(t, tt.wantHasCost, res.HasCost)
			if tt.wantOutcome == OutcomeFailed {
				assert.Error(t, res.Err)
				assert.Zero(t, res.Cost)
			}
		})
	}
}

func TestHTTPInvoker_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	start := time.Now()
	res := NewHTTPInvoker(srv.URL, "", 50*time.Millisecond).Invoke(context.Background(), Request{})
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestHTTPInvoker_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	res := NewHTTPInvoker(url, "", time.Second).Invoke(context.Background(), Request{})
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Empty(t, res.Output)
}

func TestSystemPrompt(t *testing.T) {
	assert.Equal(t, "role", systemPrompt(Request{Prompt: "role"}))
	assert.Equal(t, "role\n\nYour output is used for: write_docs.",
		systemPrompt(Request{Prompt: "role", Tools: []agent.Capability{agent.WriteDocs}}))
}
