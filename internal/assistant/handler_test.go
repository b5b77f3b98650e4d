package assistant

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/support-intel/internal/conversation"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	svc, _ := newTestService(t, conversation.NewMemoryStore(), nil)
	h := NewHandler(svc, nil)
	r := chi.NewRouter()
	r.Post("/v1/conversations/{id}/turns", h.PostTurn)
	r.Get("/v1/conversations/{id}", h.GetConversation)
	r.Post("/v1/conversations/{id}/evaluate", h.Evaluate)
	r.Post("/v1/conversations/{id}/complete", h.Complete)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandler_PostTurn(t *testing.T) {
	r := newTestRouter(t)

	rec := do(t, r, http.MethodPost, "/v1/conversations/web-1/turns", `{"role":"user","text":"カフェを経営しています。SEO対策に興味があります"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp TurnResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "web-1", resp.ConversationID)
	assert.Equal(t, conversation.CategoryMarketing, resp.Category)
	assert.True(t, resp.Continue)
	assert.NotEmpty(t, resp.NextQuestion)

	rec = do(t, r, http.MethodGet, "/v1/conversations/web-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var view map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "COLLECTING", view["state"])
	assert.EqualValues(t, 1, view["turn_count"])
}

func TestHandler_Errors(t *testing.T) {
	r := newTestRouter(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{name: "malformed body", method: http.MethodPost, path: "/v1/conversations/x/turns", body: "{", want: http.StatusBadRequest},
		{name: "invalid role", method: http.MethodPost, path: "/v1/conversations/x/turns", body: `{"role":"bot","text":"hi"}`, want: http.StatusBadRequest},
		{name: "missing role", method: http.MethodPost, path: "/v1/conversations/x/turns", body: `{"text":"hi"}`, want: http.StatusBadRequest},
		{name: "unknown conversation", method: http.MethodGet, path: "/v1/conversations/missing", want: http.StatusNotFound},
		{name: "evaluate unknown", method: http.MethodPost, path: "/v1/conversations/missing/evaluate", want: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, r, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestHandler_CompleteAfterEscalationConflicts(t *testing.T) {
	r := newTestRouter(t)

	rec := do(t, r, http.MethodPost, "/v1/conversations/web-2/turns", `{"role":"user","text":"至急対応してください"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, r, http.MethodPost, "/v1/conversations/web-2/evaluate", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var d map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
	assert.Equal(t, true, d["already_escalated"])

	rec = do(t, r, http.MethodPost, "/v1/conversations/web-2/complete", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}
