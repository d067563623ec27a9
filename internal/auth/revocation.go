// revocation.go — JWT revocation list backed by Postgres.
// Logout and admin suspension store the token's jti here until the token
// would have expired anyway, so stolen tokens die with the session.
package auth

import (
	"context"
	"database/sql"
	"log"
	"time"
)

// RevokeToken records a token's jti in the revocation list. The expiry is
// the token's own exp claim; rows past expiry are pruned, not consulted.
func RevokeToken(ctx context.Context, db *sql.DB, jti string, userID string, expiresAt time.Time) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO revoked_tokens (jti, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (jti) DO NOTHING`,
		jti, userID, expiresAt)
	return err
}

// IsRevoked reports whether a jti is on the revocation list.
// DB errors fail open: a transient outage should not log everyone out,
// and revoked tokens still expire on their own.
func IsRevoked(ctx context.Context, db *sql.DB, jti string) bool {
	var exists bool
	err := db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM revoked_tokens
			WHERE jti = $1 AND expires_at > NOW()
		)`, jti).Scan(&exists)
	if err != nil {
		log.Printf("WARNING: revocation check failed (failing open): %v", err)
		return false
	}
	return exists
}

// StartRevocationPruner deletes expired revocation rows every hour.
// Runs until the context is cancelled.
func StartRevocationPruner(ctx context.Context, db *sql.DB) {
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				res, err := db.ExecContext(ctx, `DELETE FROM revoked_tokens WHERE expires_at <= NOW()`)
				if err != nil {
					log.Printf("WARNING: revoked token prune failed: %v", err)
					continue
				}
				if n, _ := res.RowsAffected(); n > 0 {
					log.Printf("Pruned %d expired revoked tokens", n)
				}
			}
		}
	}()
}
