package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSanitizePath(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"/documents", "/documents"},
		{"/documents/550e8400-e29b-41d4-a716-446655440000", "/documents/:id"},
		{"/documents/550e8400-e29b-41d4-a716-446655440000/verify", "/documents/:id/verify"},
		{"/verifications/not-a-uuid", "/verifications/not-a-uuid"},
	}
	for _, tc := range cases {
		if got := sanitizePath(tc.in); got != tc.want {
			t.Errorf("sanitizePath(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestMiddleware_CapturesStatus(t *testing.T) {
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusTeapot {
		t.Errorf("middleware must pass through status codes, got %d", rr.Code)
	}
}

func TestHandler_ServesMetrics(t *testing.T) {
	Uploads.WithLabelValues("passport").Inc()
	rr := httptest.NewRecorder()
	Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics endpoint returned %d", rr.Code)
	}
	if rr.Body.Len() == 0 {
		t.Error("metrics endpoint returned empty body")
	}
}
