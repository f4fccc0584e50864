package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func corsHandler(config CORSConfig) http.Handler {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return CORS(config)(next)
}

func TestCORS_AllowOrigin(t *testing.T) {
	tests := []struct {
		name           string
		allowedOrigins []string
		origin         string
		expectedHeader string
	}{
		{
			name:           "wildcard allows any origin",
			allowedOrigins: []string{"*"},
			origin:         "https://demo.example.com",
			expectedHeader: "*",
		},
		{
			name:           "exact origin match",
			allowedOrigins: []string{"https://dashboard.example.com"},
			origin:         "https://dashboard.example.com",
			expectedHeader: "https://dashboard.example.com",
		},
		{
			name:           "subdomain wildcard match echoes origin",
			allowedOrigins: []string{"*.example.com"},
			origin:         "https://app.example.com",
			expectedHeader: "https://app.example.com",
		},
		{
			name:           "unmatched origin gets no header",
			allowedOrigins: []string{"https://dashboard.example.com"},
			origin:         "https://evil.example.net",
			expectedHeader: "",
		},
		{
			name:           "no origin header",
			allowedOrigins: []string{"*"},
			origin:         "",
			expectedHeader: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := corsHandler(CORSConfig{
				AllowedOrigins: tt.allowedOrigins,
				AllowedMethods: []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders: []string{"Content-Type"},
			})

			req := httptest.NewRequest("POST", "/collect", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.expectedHeader {
				t.Errorf("Access-Control-Allow-Origin = %q, expected %q", got, tt.expectedHeader)
			}
		})
	}
}

func TestCORS_Preflight(t *testing.T) {
	handler := corsHandler(CORSConfig{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
	})

	req := httptest.NewRequest(http.MethodOptions, "/collect", nil)
	req.Header.Set("Origin", "https://demo.example.com")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, expected 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Methods"); got != "GET, POST, OPTIONS" {
		t.Errorf("Access-Control-Allow-Methods = %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Headers"); got != "Content-Type, X-Request-ID" {
		t.Errorf("Access-Control-Allow-Headers = %q", got)
	}
}
