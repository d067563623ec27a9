// routes.go — Route registration for the auth service.
// All routes documented here. Actual handler implementations are in handlers_*.go files.
package auth

import (
	"database/sql"
	"net/http"

	"github.com/docverify/docverify/internal/ratelimit"
)

// RegisterRoutes registers all auth routes on the given mux.
func RegisterRoutes(mux *http.ServeMux, db *sql.DB, limiter *ratelimit.Limiter) {
	// ── Registration & email verification ────────────────────────────────────
	mux.HandleFunc("/auth/register", HandleRegister(db, limiter))
	mux.HandleFunc("/auth/verify-email", HandleVerifyEmail(db))
	mux.HandleFunc("/auth/resend-verification", HandleResendVerification(db, limiter))

	// ── Sessions ──────────────────────────────────────────────────────────────
	mux.HandleFunc("/auth/login", HandleLogin(db, limiter))
	mux.HandleFunc("/auth/refresh", HandleRefresh(db))
	mux.HandleFunc("/auth/logout", HandleLogout(db))
	mux.HandleFunc("/auth/me", HandleMe(db))

	// ── Password reset ────────────────────────────────────────────────────────
	mux.HandleFunc("/auth/forgot-password", HandleForgotPassword(db, limiter))
	mux.HandleFunc("/auth/reset-password", HandleResetPassword(db))

	// ── Two-factor authentication ─────────────────────────────────────────────
	mux.HandleFunc("/auth/2fa/setup", HandleSetup2FA(db))
	mux.HandleFunc("/auth/2fa/verify-setup", HandleVerifySetup2FA(db))
	mux.HandleFunc("/auth/2fa/verify", HandleVerify2FA(db, limiter))
	mux.HandleFunc("/auth/2fa/status", Handle2FAStatus(db))
	mux.HandleFunc("/auth/2fa/backup-codes", HandleRegenerateBackupCodes(db))
	mux.HandleFunc("/auth/2fa", HandleDisable2FA(db))
}
