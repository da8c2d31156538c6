// pkg/http/middleware_test.go
package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/carverauto/modbus-poller/pkg/logger"
)

func okHandler(t *testing.T) http.Handler {
	t.Helper()

	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, err := w.Write([]byte("OK"))
		if err != nil {
			t.Errorf("Error writing response: %v", err)
		}
	})
}

func TestCommonMiddleware_CORS(t *testing.T) {
	log := logger.NewTestLogger()

	handler := CommonMiddleware(okHandler(t), []string{"http://localhost:3000"}, log)

	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.Header.Set("Origin", "http://localhost:3000")

	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if status := rr.Code; status != http.StatusOK {
		t.Errorf("handler returned wrong status code: got %v want %v", status, http.StatusOK)
	}

	if rr.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Errorf("CORS origin not set correctly: got %v", rr.Header().Get("Access-Control-Allow-Origin"))
	}

	// Test unallowed origin
	req = httptest.NewRequest(http.MethodGet, "/", http.NoBody)

	req.Header.Set("Origin", "http://evil.com")

	rr = httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Header().Get("Access-Control-Allow-Origin") == "http://evil.com" {
		t.Errorf("CORS allowed an unpermitted origin")
	}
}

func TestCommonMiddleware_Preflight(t *testing.T) {
	called := false

	handler := CommonMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}), []string{"*"}, logger.NewTestLogger())

	req := httptest.NewRequest(http.MethodOptions, "/api/status", http.NoBody)
	req.Header.Set("Origin", "http://ui.local")

	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("preflight returned %d", rr.Code)
	}

	if called {
		t.Errorf("preflight reached the wrapped handler")
	}

	if rr.Header().Get("Access-Control-Allow-Origin") != "http://ui.local" {
		t.Errorf("wildcard origin not echoed: got %v", rr.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestOriginAllowed(t *testing.T) {
	tests := []struct {
		allowed []string
		origin  string
		want    bool
	}{
		{nil, "", true},
		{nil, "http://a", false},
		{[]string{"*"}, "http://a", true},
		{[]string{"http://a"}, "http://a", true},
		{[]string{"http://a"}, "http://b", false},
	}

	for _, tt := range tests {
		if got := OriginAllowed(tt.allowed, tt.origin); got != tt.want {
			t.Errorf("OriginAllowed(%v, %q) = %v, want %v", tt.allowed, tt.origin, got, tt.want)
		}
	}
}
