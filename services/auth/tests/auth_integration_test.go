// auth_integration_test.go — integration tests for the auth endpoints.
// These tests require a running Postgres (docverify_postgres Docker container).
// Run with: TEST_DATABASE_URL=... go test ./services/auth/tests/... -v
package tests

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	_ "github.com/lib/pq"

	"github.com/docverify/docverify/internal/auth"
	"github.com/docverify/docverify/internal/ratelimit"
	"github.com/docverify/docverify/internal/testutil"
	authsvc "github.com/docverify/docverify/services/auth"
)

// setupTestEnv sets required environment variables for auth tests.
func setupTestEnv() {
	os.Setenv("AUTH_JWT_SECRET", "test-jwt-secret-do-not-use-in-production")
	os.Setenv("AUTH_TOTP_KEY", "a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6e7f8a9b0c1d2e3f4a5b6c7d8e9f0a1b2")
	os.Setenv("DOCVERIFY_BASE_URL", "http://localhost:8080")
}

// uniqueEmail generates a unique test email to avoid conflicts between runs.
func uniqueEmail() string {
	return fmt.Sprintf("test_%d@integration-test.example.com", time.Now().UnixNano())
}

// TestRegistration verifies the full registration flow.
func TestRegistration(t *testing.T) {
	setupTestEnv()
	db := testutil.MustOpenDB(t)
	defer db.Close()

	limiter := ratelimit.New(nil) // no Redis in test
	handler := authsvc.HandleRegister(db, limiter)

	t.Run("valid registration returns 201", func(t *testing.T) {
		email := uniqueEmail()
		body := fmt.Sprintf(`{"email":%q,"password":"testpass123","display_name":"Integration Test User"}`, email)

		req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		if w.Code != http.StatusCreated {
			t.Errorf("expected 201, got %d: %s", w.Code, w.Body.String())
		}

		var resp map[string]interface{}
		json.NewDecoder(w.Body).Decode(&resp)

		if resp["email_verified"] != false {
			t.Error("new user should not be email_verified")
		}
		if resp["user_id"] == "" || resp["user_id"] == nil {
			t.Error("user_id should be non-empty")
		}

		// Verify user row was created in the pending state
		var status string
		if err := db.QueryRow("SELECT status FROM users WHERE email = $1", email).Scan(&status); err != nil {
			t.Fatalf("user row not found in DB after registration: %v", err)
		}
		if status != "pending" {
			t.Errorf("new user status should be pending, got %q", status)
		}

		// Verify verification token was created
		var tokenCount int
		db.QueryRow("SELECT COUNT(*) FROM email_verification_tokens WHERE user_id = (SELECT id FROM users WHERE email = $1)", email).Scan(&tokenCount)
		if tokenCount != 1 {
			t.Error("email verification token not created")
		}

		// Verify password is hashed (not plaintext)
		var passwordHash string
		db.QueryRow("SELECT password_hash FROM users WHERE email = $1", email).Scan(&passwordHash)
		if passwordHash == "testpass123" {
			t.Error("password stored as plaintext — must be bcrypt hash")
		}
		if !strings.HasPrefix(passwordHash, "$2a$") {
			t.Errorf("password hash should be bcrypt format, got: %q", passwordHash[:10])
		}

		// Cleanup
		defer db.Exec("DELETE FROM users WHERE email = $1", email)
	})

	t.Run("weak password rejected with 400", func(t *testing.T) {
		body := `{"email":"test@example.com","password":"short","display_name":"Test"}`
		req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for weak password, got %d", w.Code)
		}

		var resp map[string]string
		json.NewDecoder(w.Body).Decode(&resp)
		if resp["error"] != "weak_password" {
			t.Errorf("expected error=weak_password, got: %s", resp["error"])
		}
	})

	t.Run("invalid email format rejected with 400", func(t *testing.T) {
		body := `{"email":"notanemail","password":"testpass123","display_name":"Test"}`
		req := httptest.NewRequest(http.MethodPost, "/auth/register", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for invalid email, got %d", w.Code)
		}
	})

	t.Run("duplicate email returns 409 with generic message", func(t *testing.T) {
		email := uniqueEmail()
		body := fmt.Sprintf(`{"email":%q,"password":"testpass123","display_name":"Test"}`, email)

		// First registration
		req1 := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(body))
		req1.Header.Set("Content-Type", "application/json")
		w1 := httptest.NewRecorder()
		handler.ServeHTTP(w1, req1)

		if w1.Code != http.StatusCreated {
			t.Fatalf("first registration failed: %d %s", w1.Code, w1.Body.String())
		}

		// Duplicate registration
		req2 := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(body))
		req2.Header.Set("Content-Type", "application/json")
		w2 := httptest.NewRecorder()
		handler.ServeHTTP(w2, req2)

		if w2.Code != http.StatusConflict {
			t.Errorf("expected 409 for duplicate email, got %d", w2.Code)
		}

		// Error must NOT say "email already exists" (privacy)
		var resp map[string]string
		json.NewDecoder(w2.Body).Decode(&resp)
		if strings.Contains(resp["message"], "email") && strings.Contains(resp["message"], "exists") {
			t.Error("duplicate email error reveals email existence — privacy violation")
		}

		defer db.Exec("DELETE FROM users WHERE email = $1", email)
	})

	t.Run("invalid JSON returns 400", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader("not json"))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for invalid JSON, got %d", w.Code)
		}
	})
}

// TestLoginErrors verifies login returns generic errors without leaking field names.
func TestLoginErrors(t *testing.T) {
	setupTestEnv()
	db := testutil.MustOpenDB(t)
	defer db.Close()

	limiter := ratelimit.New(nil)
	handler := authsvc.HandleLogin(db, limiter)

	t.Run("wrong password returns 401 with generic message", func(t *testing.T) {
		user := testutil.SeedUser(t, db, 0)
		defer testutil.CleanupUser(db, user.ID)

		body := fmt.Sprintf(`{"email":%q,"password":"wrongpassword"}`, user.Email)
		req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", w.Code)
		}

		var resp map[string]string
		json.NewDecoder(w.Body).Decode(&resp)
		if resp["error"] != "invalid_credentials" {
			t.Errorf("expected error=invalid_credentials, got %q", resp["error"])
		}
	})

	t.Run("unknown email returns same 401 as wrong password", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/auth/login",
			strings.NewReader(`{"email":"nobody_exists_xyz123@example.com","password":"testpass123"}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		// Must be same status and error code as wrong password (timing attack prevention)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("expected 401 for unknown email, got %d", w.Code)
		}

		var resp map[string]string
		json.NewDecoder(w.Body).Decode(&resp)
		if resp["error"] != "invalid_credentials" {
			t.Errorf("expected generic error, got %q — leaks email existence", resp["error"])
		}
	})

	t.Run("valid credentials return token pair and user info", func(t *testing.T) {
		user := testutil.SeedUser(t, db, 5)
		defer testutil.CleanupUser(db, user.ID)

		body := fmt.Sprintf(`{"email":%q,"password":%q}`, user.Email, user.Password)
		req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}

		var resp map[string]interface{}
		json.NewDecoder(w.Body).Decode(&resp)
		if resp["access_token"] == "" || resp["access_token"] == nil {
			t.Error("access_token missing from login response")
		}
		if resp["refresh_token"] == "" || resp["refresh_token"] == nil {
			t.Error("refresh_token missing from login response")
		}
		userInfo, ok := resp["user"].(map[string]interface{})
		if !ok {
			t.Fatal("user object missing from login response")
		}
		if userInfo["credits"] != float64(5) {
			t.Errorf("expected credits=5 in login response, got %v", userInfo["credits"])
		}
	})

	t.Run("suspended account returns 403", func(t *testing.T) {
		user := testutil.SeedUser(t, db, 0)
		defer testutil.CleanupUser(db, user.ID)
		db.Exec("UPDATE users SET status = 'suspended' WHERE id = $1", user.ID)

		body := fmt.Sprintf(`{"email":%q,"password":%q}`, user.Email, user.Password)
		req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		if w.Code != http.StatusForbidden {
			t.Errorf("expected 403 for suspended account, got %d", w.Code)
		}

		var resp map[string]string
		json.NewDecoder(w.Body).Decode(&resp)
		if resp["error"] != "account_suspended" {
			t.Errorf("expected error=account_suspended, got %q", resp["error"])
		}
	})
}

// TestForgotPasswordPrivacy verifies that forgot-password always returns 200.
func TestForgotPasswordPrivacy(t *testing.T) {
	setupTestEnv()
	db := testutil.MustOpenDB(t)
	defer db.Close()

	limiter := ratelimit.New(nil)
	handler := authsvc.HandleForgotPassword(db, limiter)

	t.Run("unknown email returns 200 without error", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/auth/forgot-password",
			strings.NewReader(`{"email":"nobody_xyz@example.com"}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("expected 200 for privacy, got %d", w.Code)
		}
	})
}

// TestVerifyEmailActivatesAccount verifies that redeeming a verification token
// promotes a pending account to active.
func TestVerifyEmailActivatesAccount(t *testing.T) {
	setupTestEnv()
	db := testutil.MustOpenDB(t)
	defer db.Close()

	handler := authsvc.HandleVerifyEmail(db)

	user := testutil.SeedUser(t, db, 0)
	defer testutil.CleanupUser(db, user.ID)
	db.Exec("UPDATE users SET status = 'pending', email_verified = FALSE WHERE id = $1", user.ID)

	rawToken := fmt.Sprintf("verify-token-%d", time.Now().UnixNano())
	_, err := db.Exec(`
		INSERT INTO email_verification_tokens (user_id, token_hash, expires_at)
		VALUES ($1, $2, NOW() + INTERVAL '24 hours')
	`, user.ID, auth.HashToken(rawToken))
	if err != nil {
		t.Fatalf("seed verification token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/auth/verify-email?token="+rawToken, nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var status string
	var verified bool
	db.QueryRow("SELECT status, email_verified FROM users WHERE id = $1", user.ID).Scan(&status, &verified)
	if status != "active" {
		t.Errorf("expected status=active after verification, got %q", status)
	}
	if !verified {
		t.Error("email_verified should be true after verification")
	}
}

// TestRefreshRejects2FATempToken verifies that the short-lived token handed out
// mid-login to TOTP users cannot be redeemed at /auth/refresh for a session.
func TestRefreshRejects2FATempToken(t *testing.T) {
	setupTestEnv()
	db := testutil.MustOpenDB(t)
	defer db.Close()

	limiter := ratelimit.New(nil)
	login := authsvc.HandleLogin(db, limiter)
	refresh := authsvc.HandleRefresh(db)

	user := testutil.SeedUser(t, db, 0)
	defer testutil.CleanupUser(db, user.ID)
	db.Exec("UPDATE users SET totp_enabled = TRUE WHERE id = $1", user.ID)

	// Login stops at the 2FA gate and returns only a temp token.
	body := fmt.Sprintf(`{"email":%q,"password":%q}`, user.Email, user.Password)
	loginReq := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	loginReq.Header.Set("Content-Type", "application/json")
	loginW := httptest.NewRecorder()
	login.ServeHTTP(loginW, loginReq)

	if loginW.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", loginW.Code, loginW.Body.String())
	}

	var loginResp map[string]interface{}
	json.NewDecoder(loginW.Body).Decode(&loginResp)
	if loginResp["requires_2fa"] != true {
		t.Fatal("expected requires_2fa=true for TOTP user")
	}
	tempToken, _ := loginResp["temp_token"].(string)
	if tempToken == "" {
		t.Fatal("temp_token missing from 2FA login response")
	}
	if loginResp["access_token"] != nil && loginResp["access_token"] != "" {
		t.Error("2FA login must not return an access token")
	}

	// The temp token must not pass as a refresh token.
	refreshBody := fmt.Sprintf(`{"refresh_token":%q}`, tempToken)
	refreshReq := httptest.NewRequest(http.MethodPost, "/auth/refresh", strings.NewReader(refreshBody))
	refreshReq.Header.Set("Content-Type", "application/json")
	refreshW := httptest.NewRecorder()
	refresh.ServeHTTP(refreshW, refreshReq)

	if refreshW.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 refreshing with a 2FA temp token, got %d: %s",
			refreshW.Code, refreshW.Body.String())
	}

	var refreshResp map[string]interface{}
	json.NewDecoder(refreshW.Body).Decode(&refreshResp)
	if refreshResp["access_token"] != nil {
		t.Error("refresh with a temp token must not mint an access token")
	}

	// The temp token row must still be intact for /auth/2fa/verify.
	var revoked bool
	db.QueryRow(`
		SELECT revoked_at IS NOT NULL FROM refresh_tokens
		WHERE token_hash = $1
	`, auth.HashToken(tempToken)).Scan(&revoked)
	if revoked {
		t.Error("rejected refresh attempt should not consume the temp token")
	}
}

// TestResendVerificationPrivacy verifies resend always returns 200.
func TestResendVerificationPrivacy(t *testing.T) {
	setupTestEnv()
	db := testutil.MustOpenDB(t)
	defer db.Close()

	limiter := ratelimit.New(nil)
	handler := authsvc.HandleResendVerification(db, limiter)

	t.Run("unknown email returns 200", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/auth/resend-verification",
			strings.NewReader(`{"email":"nobody@example.com"}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("expected 200 for privacy, got %d", w.Code)
		}
	})
}
