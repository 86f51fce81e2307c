package cerr_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/appbuilder/pkg/cerr"
	"github.com/kazz187/appbuilder/pkg/storage"
)

func TestWrapStorageErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code cerr.Code
	}{
		{"not found", fmt.Errorf("projects/x/state.json: %w", storage.ErrNotFound), cerr.NotFound},
		{"canceled", context.Canceled, cerr.Canceled},
		{"deadline", context.DeadlineExceeded, cerr.DeadlineExceeded},
		{"other", errors.New("disk full"), cerr.Internal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := cerr.WrapStorageReadError("project state", tt.err)
			assert.True(t, cerr.IsCode(err, tt.code))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func serve(h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	cerr.NewJSONResponseChiMiddleware()(h).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
	return rec
}

func TestJSONResponseMiddleware(t *testing.T) {
	rec := serve(func(_ http.ResponseWriter, r *http.Request) {
		cerr.SetJSONResponseWithStatus(r.Context(), http.StatusAccepted, map[string]string{"status": "workflow_started"})
	}, "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"status":"workflow_started"}`, rec.Body.String())

	rec = serve(func(_ http.ResponseWriter, r *http.Request) {
		cerr.SetNewJSONError(r.Context(), cerr.FailedPrecondition, "project requires human intervention", nil)
	}, "")
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
	assert.Contains(t, rec.Body.String(), `"message":"project requires human intervention"`)

	rec = serve(func(_ http.ResponseWriter, r *http.Request) {
		cerr.SetJSONError(r.Context(), errors.New("boom"))
	}, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestDecodeJSONBody(t *testing.T) {
	var v struct {
		Trigger string `json:"trigger"`
	}
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"trigger":"status"}`))
	require.NoError(t, cerr.DecodeJSONBody(r, &v))
	assert.Equal(t, "status", v.Trigger)

	r = httptest.NewRequest(http.MethodPost, "/", nil)
	assert.NoError(t, cerr.DecodeJSONBody(r, &v))

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
	assert.True(t, cerr.IsCode(cerr.DecodeJSONBody(r, &v), cerr.InvalidArgument))
}
