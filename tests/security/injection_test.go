// injection_test.go — injection prevention integration tests.
// SQL injection and traversal payloads on user-facing endpoints must come
// back as 4xx validation rejections, never 500.
package security_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/uuid"

	"github.com/docverify/docverify/internal/auth"
	"github.com/docverify/docverify/internal/ratelimit"
	"github.com/docverify/docverify/internal/testutil"
	"github.com/docverify/docverify/services/admin"
	"github.com/docverify/docverify/services/documents"
)

var injectionPayloads = []string{
	"' OR 1=1 --",
	"1; DROP TABLE documents;--",
	"1 UNION SELECT email,password_hash FROM users--",
	"../../../etc/passwd",
	"<script>alert(1)</script>",
	"hello\x00world",
}

func securityMux(t *testing.T) (*http.ServeMux, string) {
	t.Helper()
	db := testutil.MustOpenDB(t)
	user := testutil.SeedUser(t, db, 5)
	t.Cleanup(func() { testutil.CleanupUser(db, user.ID) })

	mux := http.NewServeMux()
	documents.NewServer(db, nil, ratelimit.New(nil), nil).RegisterRoutes(mux)
	admin.NewServer(db).RegisterRoutes(mux)

	t.Setenv("AUTH_JWT_SECRET", "test-secret-key-for-security-tests-minimum-32chars")
	uid, err := uuid.Parse(user.ID)
	if err != nil {
		t.Fatalf("parse user id: %v", err)
	}
	token, err := auth.GenerateAccessToken(uid, "user", true)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return mux, token
}

// TestDocumentIDInjection throws payloads at the document lookup path
// segment. All must be rejected as malformed IDs.
func TestDocumentIDInjection(t *testing.T) {
	mux, token := securityMux(t)

	for _, payload := range injectionPayloads {
		req := httptest.NewRequest(http.MethodGet, "/documents/"+url.PathEscape(payload), nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, req)

		if rr.Code >= 500 {
			t.Errorf("payload %q caused %d, want 4xx", payload, rr.Code)
		}
		if rr.Code == http.StatusOK {
			t.Errorf("payload %q was accepted as a document id", payload)
		}
	}
}

// TestListFilterInjection throws payloads at the doc_type and status list
// filters. Results must be empty or rejected, never a server error.
func TestListFilterInjection(t *testing.T) {
	mux, token := securityMux(t)

	for _, payload := range injectionPayloads {
		for _, param := range []string{"doc_type", "status"} {
			req := httptest.NewRequest(http.MethodGet,
				"/documents?"+param+"="+url.QueryEscape(payload), nil)
			req.Header.Set("Authorization", "Bearer "+token)
			rr := httptest.NewRecorder()
			mux.ServeHTTP(rr, req)

			if rr.Code >= 500 {
				t.Errorf("%s=%q caused %d, want 2xx/4xx", param, payload, rr.Code)
			}
		}
	}
}

// TestAdminProbing verifies that a regular user token cannot reach the admin
// surface regardless of the path tried, and that probing returns a uniform 403.
func TestAdminProbing(t *testing.T) {
	mux, token := securityMux(t)

	paths := []string{
		"/admin/users",
		"/admin/stats",
		"/admin/audit?action=" + url.QueryEscape("' OR 1=1 --"),
		"/admin/abuse",
	}
	for _, path := range paths {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, req)

		if rr.Code != http.StatusForbidden {
			t.Errorf("GET %s with user token returned %d, want 403", path, rr.Code)
		}
	}
}
