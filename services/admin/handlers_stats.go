// handlers_stats.go — Dashboard statistics.
package admin

import (
	"net/http"

	"github.com/docverify/docverify/internal/auth"
)

type verdictCounts struct {
	Genuine    int `json:"genuine"`
	Suspicious int `json:"suspicious"`
	Fake       int `json:"fake"`
}

type statsResponse struct {
	Verdicts24h    verdictCounts `json:"verdicts_24h"`
	Verdicts7d     verdictCounts `json:"verdicts_7d"`
	VerdictsAll    verdictCounts `json:"verdicts_all"`
	CreditsSold    int           `json:"credits_sold"`
	RevenueCents   int           `json:"revenue_cents"`
	ActiveUsers    int           `json:"active_users"`
	OpenAbuseFlags int           `json:"open_abuse_flags"`
	Documents      int           `json:"documents"`
}

// handleStats returns dashboard numbers. One SQL round-trip per block.
// GET /admin/stats
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		auth.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "GET required")
		return
	}

	var resp statsResponse

	// Verdict totals for all three windows in one pass.
	err := s.db.QueryRowContext(r.Context(), `
		SELECT
			COUNT(*) FILTER (WHERE verdict = 'genuine'    AND completed_at > NOW() - INTERVAL '24 hours'),
			COUNT(*) FILTER (WHERE verdict = 'suspicious' AND completed_at > NOW() - INTERVAL '24 hours'),
			COUNT(*) FILTER (WHERE verdict = 'fake'       AND completed_at > NOW() - INTERVAL '24 hours'),
			COUNT(*) FILTER (WHERE verdict = 'genuine'    AND completed_at > NOW() - INTERVAL '7 days'),
			COUNT(*) FILTER (WHERE verdict = 'suspicious' AND completed_at > NOW() - INTERVAL '7 days'),
			COUNT(*) FILTER (WHERE verdict = 'fake'       AND completed_at > NOW() - INTERVAL '7 days'),
			COUNT(*) FILTER (WHERE verdict = 'genuine'),
			COUNT(*) FILTER (WHERE verdict = 'suspicious'),
			COUNT(*) FILTER (WHERE verdict = 'fake')
		FROM verifications
		WHERE status = 'done'
	`).Scan(
		&resp.Verdicts24h.Genuine, &resp.Verdicts24h.Suspicious, &resp.Verdicts24h.Fake,
		&resp.Verdicts7d.Genuine, &resp.Verdicts7d.Suspicious, &resp.Verdicts7d.Fake,
		&resp.VerdictsAll.Genuine, &resp.VerdictsAll.Suspicious, &resp.VerdictsAll.Fake,
	)
	if err != nil {
		auth.WriteError(w, http.StatusInternalServerError, "db_error", "failed to compute verdict stats")
		return
	}

	err = s.db.QueryRowContext(r.Context(), `
		SELECT COALESCE(SUM(credits), 0), COALESCE(SUM(amount_cents), 0)
		FROM payments WHERE status = 'paid'
	`).Scan(&resp.CreditsSold, &resp.RevenueCents)
	if err != nil {
		auth.WriteError(w, http.StatusInternalServerError, "db_error", "failed to compute billing stats")
		return
	}

	err = s.db.QueryRowContext(r.Context(), `
		SELECT
			(SELECT COUNT(*) FROM users WHERE status = 'active'),
			(SELECT COUNT(*) FROM abuse_events WHERE resolved_at IS NULL),
			(SELECT COUNT(*) FROM documents)
	`).Scan(&resp.ActiveUsers, &resp.OpenAbuseFlags, &resp.Documents)
	if err != nil {
		auth.WriteError(w, http.StatusInternalServerError, "db_error", "failed to compute platform stats")
		return
	}

	auth.WriteJSON(w, http.StatusOK, resp)
}
