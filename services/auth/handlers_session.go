// handlers_session.go — logout and current-user profile handlers.
// POST /auth/logout, GET /auth/me
package auth

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/docverify/docverify/internal/auth"
	"github.com/docverify/docverify/pkg/audit"
)

// HandleLogout processes POST /auth/logout.
// Revokes the presented refresh token and puts the access token's jti on
// the revocation list until its natural expiry.
func HandleLogout(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			auth.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "POST required")
			return
		}

		claims, err := auth.ValidateJWT(r)
		if err != nil {
			auth.WriteError(w, http.StatusUnauthorized, "invalid_token", "Valid access token required")
			return
		}

		var req struct {
			RefreshToken string `json:"refresh_token"`
		}
		json.NewDecoder(r.Body).Decode(&req)

		// Revoke the refresh token if one was presented.
		if req.RefreshToken != "" {
			tokenHash := auth.HashToken(req.RefreshToken)
			db.ExecContext(r.Context(), `
				UPDATE refresh_tokens SET revoked_at = now()
				WHERE token_hash = $1 AND user_id = $2 AND revoked_at IS NULL
			`, tokenHash, claims.Subject)
		}

		// Revoke the access token jti until it would have expired anyway.
		expiresAt := time.Now().Add(15 * time.Minute)
		if claims.ExpiresAt != nil {
			expiresAt = claims.ExpiresAt.Time
		}
		if err := auth.RevokeToken(r.Context(), db, claims.ID, claims.Subject, expiresAt); err != nil {
			auth.WriteError(w, http.StatusInternalServerError, "server_error", "Logout failed")
			return
		}

		audit.LogActionWithRequest(r, db, "user", claims.Subject, "auth.logout", "user", claims.Subject, nil)

		auth.WriteJSON(w, http.StatusOK, map[string]string{
			"message": "Logged out. All presented tokens are now invalid.",
		})
	}
}

// meResponse is the profile payload for GET /auth/me.
type meResponse struct {
	ID                 string `json:"id"`
	Email              string `json:"email"`
	DisplayName        string `json:"display_name"`
	EmailVerified      bool   `json:"email_verified"`
	Role               string `json:"role"`
	Status             string `json:"status"`
	Credits            int    `json:"credits"`
	TOTPEnabled        bool   `json:"totp_enabled"`
	DocumentCount      int    `json:"document_count"`
	VerificationCounts struct {
		Genuine    int `json:"genuine"`
		Suspicious int `json:"suspicious"`
		Fake       int `json:"fake"`
	} `json:"verification_counts"`
	CreatedAt string `json:"created_at"`
}

// HandleMe processes GET /auth/me.
// Returns the authenticated user's profile, credit balance, and verification counts.
func HandleMe(db *sql.DB) http.HandlerFunc {
	return auth.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			auth.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "GET required")
			return
		}

		userID := auth.UserIDFromContext(r.Context()).String()

		var resp meResponse
		err := db.QueryRowContext(r.Context(), `
			SELECT id, email, COALESCE(display_name,''), email_verified, role, status,
			       credits, totp_enabled, created_at::text
			FROM users WHERE id = $1
		`, userID).Scan(
			&resp.ID, &resp.Email, &resp.DisplayName, &resp.EmailVerified,
			&resp.Role, &resp.Status, &resp.Credits, &resp.TOTPEnabled, &resp.CreatedAt,
		)
		if err == sql.ErrNoRows {
			auth.WriteError(w, http.StatusNotFound, "not_found", "User not found")
			return
		}
		if err != nil {
			auth.WriteError(w, http.StatusInternalServerError, "server_error", "Failed to load profile")
			return
		}

		db.QueryRowContext(r.Context(),
			`SELECT COUNT(*) FROM documents WHERE user_id = $1`, userID).
			Scan(&resp.DocumentCount)

		rows, err := db.QueryContext(r.Context(), `
			SELECT verdict, COUNT(*) FROM verifications
			WHERE user_id = $1 AND status = 'done' AND verdict IS NOT NULL
			GROUP BY verdict
		`, userID)
		if err == nil {
			defer rows.Close()
			for rows.Next() {
				var verdict string
				var count int
				rows.Scan(&verdict, &count)
				switch verdict {
				case "genuine":
					resp.VerificationCounts.Genuine = count
				case "suspicious":
					resp.VerificationCounts.Suspicious = count
				case "fake":
					resp.VerificationCounts.Fake = count
				}
			}
		}

		auth.WriteJSON(w, http.StatusOK, resp)
	}))
}
