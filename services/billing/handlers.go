// handlers.go — Credit pack listing, checkout and payment history.
//
// POST /billing/checkout
//   Creates a Stripe Checkout session (mode: payment) for a credit pack.
//   Requires a valid JWT. Returns: { checkout_url: "https://checkout.stripe.com/..." }
//
// The user is redirected to Stripe-hosted checkout. On success, Stripe fires
// a checkout.session.completed webhook which credits the account.
package billing

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/checkout/session"

	"github.com/docverify/docverify/internal/auth"
)

type pack struct {
	Slug       string `json:"slug"`
	Name       string `json:"name"`
	Credits    int    `json:"credits"`
	PriceCents int    `json:"price_cents"`
}

// handlePacks returns the public price list.
// GET /billing/packs
func (s *Server) handlePacks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		auth.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "GET required")
		return
	}
	if s.billingUnavailable(w) {
		return
	}

	rows, err := s.db.QueryContext(r.Context(), `
		SELECT slug, name, credits, price_cents
		FROM credit_packs WHERE active = TRUE
		ORDER BY price_cents ASC
	`)
	if err != nil {
		auth.WriteError(w, http.StatusInternalServerError, "db_error", "failed to load packs")
		return
	}
	defer rows.Close()

	packs := []pack{}
	for rows.Next() {
		var p pack
		if err := rows.Scan(&p.Slug, &p.Name, &p.Credits, &p.PriceCents); err != nil {
			auth.WriteError(w, http.StatusInternalServerError, "db_error", "failed to read packs")
			return
		}
		packs = append(packs, p)
	}
	auth.WriteJSON(w, http.StatusOK, map[string]interface{}{"packs": packs})
}

type checkoutRequest struct {
	Pack string `json:"pack"`
}

type checkoutResponse struct {
	CheckoutURL string `json:"checkout_url"`
	SessionID   string `json:"session_id"`
}

// handleCheckout creates a Stripe Checkout session for a credit pack.
// POST /billing/checkout
func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		auth.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "POST required")
		return
	}
	if s.stripeRequired(w) {
		return
	}

	claims, err := auth.ValidateJWT(r)
	if err != nil {
		auth.WriteError(w, http.StatusUnauthorized, "unauthorized", "valid JWT required")
		return
	}
	if claims.ID != "" && auth.IsRevoked(r.Context(), s.db, claims.ID) {
		auth.WriteError(w, http.StatusUnauthorized, "token_revoked", "token has been revoked")
		return
	}
	userID := claims.Subject

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		auth.WriteError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	req.Pack = strings.ToLower(strings.TrimSpace(req.Pack))

	var p pack
	var stripePriceID sql.NullString
	err = s.db.QueryRowContext(r.Context(), `
		SELECT slug, name, credits, price_cents, stripe_price_id
		FROM credit_packs WHERE slug = $1 AND active = TRUE
	`, req.Pack).Scan(&p.Slug, &p.Name, &p.Credits, &p.PriceCents, &stripePriceID)
	if errors.Is(err, sql.ErrNoRows) {
		auth.WriteError(w, http.StatusBadRequest, "invalid_pack", "pack must be one of the listed credit packs")
		return
	}
	if err != nil {
		auth.WriteError(w, http.StatusInternalServerError, "db_error", "failed to load pack")
		return
	}

	baseURL := getEnv("DOCVERIFY_BASE_URL", "http://localhost:8080")
	lineItem := &stripe.CheckoutSessionLineItemParams{Quantity: stripe.Int64(1)}
	if stripePriceID.Valid && stripePriceID.String != "" {
		lineItem.Price = stripe.String(stripePriceID.String)
	} else {
		// No pre-created price; bill the pack ad hoc from the DB amount.
		lineItem.PriceData = &stripe.CheckoutSessionLineItemPriceDataParams{
			Currency:   stripe.String("usd"),
			UnitAmount: stripe.Int64(int64(p.PriceCents)),
			ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
				Name: stripe.String(p.Name),
			},
		}
	}

	params := &stripe.CheckoutSessionParams{
		LineItems:         []*stripe.CheckoutSessionLineItemParams{lineItem},
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(baseURL + "/billing/success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:         stripe.String(baseURL + "/billing/cancel"),
		ClientReferenceID: stripe.String(userID),
	}
	params.AddMetadata("docverify_user_id", userID)
	params.AddMetadata("docverify_pack", p.Slug)

	sess, err := session.New(params)
	if err != nil {
		auth.WriteError(w, http.StatusInternalServerError, "stripe_checkout_failed",
			"failed to create checkout session")
		return
	}

	// The webhook is the source of truth; a lost created row only loses the
	// history entry, not the credits.
	if _, err := s.db.ExecContext(r.Context(), `
		INSERT INTO payments (user_id, pack_slug, credits, amount_cents, stripe_session_id, status)
		VALUES ($1, $2, $3, $4, $5, 'created')
	`, userID, p.Slug, p.Credits, p.PriceCents, sess.ID); err != nil {
		log.Printf("WARNING: failed to record checkout session %s for user %s: %v", sess.ID, userID, err)
	}

	auth.WriteJSON(w, http.StatusOK, checkoutResponse{CheckoutURL: sess.URL, SessionID: sess.ID})
}

type paymentRecord struct {
	ID          string     `json:"id"`
	PackSlug    string     `json:"pack"`
	Credits     int        `json:"credits"`
	AmountCents int        `json:"amount_cents"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at"`
}

// handleHistory returns the caller's payments, newest first.
// GET /billing/history
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		auth.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "GET required")
		return
	}
	if s.billingUnavailable(w) {
		return
	}

	claims, err := auth.ValidateJWT(r)
	if err != nil {
		auth.WriteError(w, http.StatusUnauthorized, "unauthorized", "valid JWT required")
		return
	}
	if claims.ID != "" && auth.IsRevoked(r.Context(), s.db, claims.ID) {
		auth.WriteError(w, http.StatusUnauthorized, "token_revoked", "token has been revoked")
		return
	}

	rows, err := s.db.QueryContext(r.Context(), `
		SELECT id, pack_slug, credits, amount_cents, status, created_at, completed_at
		FROM payments WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT 100
	`, claims.Subject)
	if err != nil {
		auth.WriteError(w, http.StatusInternalServerError, "db_error", "failed to load payments")
		return
	}
	defer rows.Close()

	payments := []paymentRecord{}
	for rows.Next() {
		var p paymentRecord
		if err := rows.Scan(&p.ID, &p.PackSlug, &p.Credits, &p.AmountCents, &p.Status,
			&p.CreatedAt, &p.CompletedAt); err != nil {
			auth.WriteError(w, http.StatusInternalServerError, "db_error", "failed to read payments")
			return
		}
		payments = append(payments, p)
	}
	auth.WriteJSON(w, http.StatusOK, map[string]interface{}{"payments": payments})
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
