package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAPIKey(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		configured string
		method     string
		path       string
		header     string
		wantCode   int
		wantError  string
	}{
		{"auth disabled", "", http.MethodPost, "/api/ai/text-to-diagram", "", http.StatusOK, ""},
		{"matching key", "k-42", http.MethodPost, "/api/ai/text-to-diagram", "k-42", http.StatusOK, ""},
		{"no key sent", "k-42", http.MethodPost, "/api/ai/objects", "", http.StatusUnauthorized, "missing API key"},
		{"key mismatch", "k-42", http.MethodPost, "/api/ai/objects", "k-43", http.StatusUnauthorized, "invalid API key"},
		{"key prefix only", "k-42", http.MethodDelete, "/api/models/colors", "k-4", http.StatusUnauthorized, "invalid API key"},
		{"model listing guarded", "k-42", http.MethodGet, "/api/models", "", http.StatusUnauthorized, "missing API key"},
		{"health probe open", "k-42", http.MethodGet, "/api/health", "", http.StatusOK, ""},
		{"metrics scrape open", "k-42", http.MethodGet, "/metrics", "", http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("X-API-Key", tt.header)
			}
			w := httptest.NewRecorder()
			APIKey(tt.configured)(inner).ServeHTTP(w, req)

			if w.Code != tt.wantCode {
				t.Fatalf("status: got %d, want %d", w.Code, tt.wantCode)
			}
			if tt.wantError == "" {
				return
			}

			var body map[string]string
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["error"] != tt.wantError {
				t.Errorf("error: got %q, want %q", body["error"], tt.wantError)
			}
			if body["kind"] != "unauthorized" {
				t.Errorf("kind: got %q, want %q", body["kind"], "unauthorized")
			}
		})
	}
}
