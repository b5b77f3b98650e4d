package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCORS(t *testing.T) {
	tests := []struct {
		name        string
		allowed     []string
		method      string
		origin      string
		preflight   bool
		wantOrigin  string
		wantStatus  int
		wantHandled bool
	}{
		{name: "listed origin", allowed: []string{"https://example.com/"}, method: http.MethodPost, origin: "https://example.com", wantOrigin: "https://example.com", wantStatus: http.StatusOK, wantHandled: true},
		{name: "unknown origin", allowed: []string{"https://example.com"}, method: http.MethodPost, origin: "https://unknown.example", wantStatus: http.StatusOK, wantHandled: true},
		{name: "wildcard", allowed: []string{"*"}, method: http.MethodGet, origin: "https://random.example", wantOrigin: "https://random.example", wantStatus: http.StatusOK, wantHandled: true},
		{name: "no origin header", allowed: []string{"*"}, method: http.MethodGet, wantStatus: http.StatusOK, wantHandled: true},
		{name: "preflight allowed", allowed: []string{"https://example.com"}, method: http.MethodOptions, origin: "https://example.com", preflight: true, wantOrigin: "https://example.com", wantStatus: http.StatusNoContent},
		{name: "preflight denied", allowed: []string{"https://example.com"}, method: http.MethodOptions, origin: "https://evil.example", preflight: true, wantStatus: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handled := false
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				handled = true
				w.WriteHeader(http.StatusOK)
			})
			req := httptest.NewRequest(tt.method, "/v1/conversations/c1/turns", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			rec := httptest.NewRecorder()

			CORS(tt.allowed)(next).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantHandled, handled)
			assert.Equal(t, tt.wantOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
			if tt.wantOrigin != "" {
				assert.Equal(t, corsAllowMethods, rec.Header().Get("Access-Control-Allow-Methods"))
			}
		})
	}
}
