// middleware.go — Admin gate for the /admin API.
package admin

import (
	"context"
	"net/http"

	"github.com/docverify/docverify/internal/auth"
)

// adminCtxKey is an unexported type to prevent collisions with other context keys.
type adminCtxKey struct{}

// AdminClaims holds the verified identity of an admin caller, injected into
// the request context by requireAdmin.
type AdminClaims struct {
	UserID string
	Email  string
}

// requireAdmin rejects requests whose JWT role claim is not "admin", or whose
// token has been revoked. Returns 403 (not 401) for all rejection cases to
// avoid leaking endpoint existence.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, err := auth.ValidateJWT(r)
		if err != nil {
			forbidden(w)
			return
		}
		if claims.Role != "admin" {
			forbidden(w)
			return
		}
		// Logout must take effect immediately for admin tokens.
		if claims.ID != "" && auth.IsRevoked(r.Context(), s.db, claims.ID) {
			forbidden(w)
			return
		}

		ctx := context.WithValue(r.Context(), adminCtxKey{}, AdminClaims{UserID: claims.Subject})
		next(w, r.WithContext(ctx))
	}
}

// adminFromCtx retrieves the AdminClaims injected by requireAdmin. Panics when
// called outside an admin-protected handler — a wiring mistake should fail
// loudly in dev, not silently skip the gate in production.
func adminFromCtx(ctx context.Context) AdminClaims {
	claims, ok := ctx.Value(adminCtxKey{}).(AdminClaims)
	if !ok {
		panic("admin.adminFromCtx: called outside admin-protected handler")
	}
	return claims
}

func forbidden(w http.ResponseWriter) {
	auth.WriteError(w, http.StatusForbidden, "forbidden", "admin access required")
}
