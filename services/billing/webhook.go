// webhook.go — Stripe webhook event handler.
//
// POST /billing/webhook
//   Receives and verifies signed Stripe webhook events.
//   Handles checkout.session.completed → mark payment completed + credit user.
//
// Stripe signature verified via STRIPE_WEBHOOK_SECRET (separate from API key).
package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/docverify/docverify/internal/auth"
	"github.com/docverify/docverify/internal/email"
	"github.com/docverify/docverify/internal/metrics"
	"github.com/docverify/docverify/pkg/audit"
)

// handleWebhook processes incoming Stripe webhook events.
// POST /billing/webhook — no JWT; the signature is the authentication.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		auth.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "POST required")
		return
	}
	if s.billingUnavailable(w) {
		return
	}

	// Stripe events are always small.
	const maxBytes = 65536
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		auth.WriteError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large")
		return
	}

	webhookSecret := os.Getenv("STRIPE_WEBHOOK_SECRET")
	if webhookSecret == "" {
		log.Printf("WARNING: STRIPE_WEBHOOK_SECRET not set — skipping signature verification (dev only)")
	}

	var event stripe.Event
	if webhookSecret != "" {
		sigHeader := r.Header.Get("Stripe-Signature")
		event, err = webhook.ConstructEvent(body, sigHeader, webhookSecret)
		if err != nil {
			log.Printf("Webhook signature verification failed: %v", err)
			auth.WriteError(w, http.StatusBadRequest, "invalid_signature", "webhook signature verification failed")
			return
		}
	} else {
		if err := json.Unmarshal(body, &event); err != nil {
			auth.WriteError(w, http.StatusBadRequest, "invalid_json", "failed to parse webhook body")
			return
		}
	}

	log.Printf("Stripe webhook received: type=%s id=%s", event.Type, event.ID)

	if s.isEventProcessed(r.Context(), event.ID) {
		log.Printf("Webhook event %s already processed — skipping", event.ID)
		w.WriteHeader(http.StatusOK)
		return
	}

	var handlerErr error
	switch event.Type {
	case "checkout.session.completed":
		handlerErr = s.onCheckoutComplete(r.Context(), event)
	default:
		log.Printf("Unhandled Stripe event type: %s", event.Type)
	}

	if handlerErr != nil {
		log.Printf("Error processing webhook event %s (%s): %v", event.ID, event.Type, handlerErr)
		// Return 200 anyway so Stripe doesn't retry transient errors
		// indefinitely; the payment row stays pending and is reconcilable.
		w.WriteHeader(http.StatusOK)
		return
	}

	_ = s.markEventProcessed(r.Context(), event.ID, string(event.Type))
	w.WriteHeader(http.StatusOK)
}

// onCheckoutComplete credits the user after a successful Stripe Checkout.
// Fired by: checkout.session.completed
func (s *Server) onCheckoutComplete(ctx context.Context, event stripe.Event) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return fmt.Errorf("unmarshal checkout.session: %w", err)
	}

	userID := sess.ClientReferenceID
	if userID == "" && sess.Metadata != nil {
		userID = sess.Metadata["docverify_user_id"]
	}
	if userID == "" {
		return fmt.Errorf("checkout.session.completed: no docverify_user_id found")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin credit transaction: %w", err)
	}
	defer tx.Rollback()

	var packSlug string
	var credits int
	err = tx.QueryRowContext(ctx, `
		UPDATE payments
		SET status = 'paid', completed_at = NOW()
		WHERE stripe_session_id = $1 AND status = 'created'
		RETURNING pack_slug, credits
	`, sess.ID).Scan(&packSlug, &credits)
	if err != nil {
		// No open row: checkout was started elsewhere or already settled.
		// Fall back to the metadata pack so the credits are never lost.
		packSlug = sess.Metadata["docverify_pack"]
		if packSlug == "" {
			return fmt.Errorf("no open payment for session %s and no pack metadata", sess.ID)
		}
		if err := tx.QueryRowContext(ctx, `
			SELECT credits FROM credit_packs WHERE slug = $1
		`, packSlug).Scan(&credits); err != nil {
			return fmt.Errorf("resolve pack %q: %w", packSlug, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO payments (user_id, pack_slug, credits, amount_cents, stripe_session_id, status, completed_at)
			VALUES ($1, $2, $3, $4, $5, 'paid', NOW())
		`, userID, packSlug, credits, sess.AmountTotal, sess.ID); err != nil {
			return fmt.Errorf("insert settled payment: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE users SET credits = credits + $1, updated_at = NOW() WHERE id = $2
	`, credits, userID); err != nil {
		return fmt.Errorf("credit user %s: %w", userID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit credit transaction: %w", err)
	}

	metrics.CreditsGranted.WithLabelValues("purchase").Add(float64(credits))
	_ = audit.LogAction(ctx, s.db, "system", "", "billing.credits_purchased", "user", userID,
		map[string]interface{}{"pack": packSlug, "credits": credits, "session_id": sess.ID})

	// Receipt email, fire and forget.
	go func() {
		var toEmail, displayName, packName string
		err := s.db.QueryRow(`SELECT email, display_name FROM users WHERE id = $1`, userID).
			Scan(&toEmail, &displayName)
		if err != nil {
			return
		}
		s.db.QueryRow(`SELECT name FROM credit_packs WHERE slug = $1`, packSlug).Scan(&packName)
		if err := email.SendCreditsPurchasedEmail(toEmail, displayName, packName, credits); err != nil {
			log.Printf("WARNING: failed to send purchase email to user %s: %v", userID, err)
		}
	}()

	log.Printf("Credited %d verification credits to user %s (pack %s)", credits, userID, packSlug)
	return nil
}

// isEventProcessed reports whether a webhook event id was already handled.
func (s *Server) isEventProcessed(ctx context.Context, eventID string) bool {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT TRUE FROM processed_webhook_events WHERE event_id = $1
	`, eventID).Scan(&exists)
	return err == nil && exists
}

// markEventProcessed records a handled webhook event id.
func (s *Server) markEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO processed_webhook_events (event_id, event_type)
		VALUES ($1, $2)
		ON CONFLICT (event_id) DO NOTHING
	`, eventID, eventType)
	return err
}
