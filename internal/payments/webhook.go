package payments

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/superfun/draw-backend/internal/ledger"
	"github.com/superfun/draw-backend/internal/models"
)

// Crediter is the slice of the ledger the webhook needs.
type Crediter interface {
	Credit(ctx context.Context, email string, amount int64, reason string) (*ledger.CreditResult, error)
}

// WebhookProcessor turns completed Stripe checkouts into ledger credits,
// exactly once per event id. Stripe retries webhook delivery, and Credit is
// not idempotent (each call adds tokens and mints a new code), so the
// processor dedupes before it touches the ledger.
type WebhookProcessor struct {
	db            *sql.DB
	redis         *redis.Client
	ledger        Crediter
	signingSecret string
}

func NewWebhookProcessor(db *sql.DB, redisClient *redis.Client, crediter Crediter, signingSecret string) *WebhookProcessor {
	if signingSecret == "" {
		log.Println("[WEBHOOK] No Stripe signing secret configured, signature verification disabled")
	}
	return &WebhookProcessor{db: db, redis: redisClient, ledger: crediter, signingSecret: signingSecret}
}

// HandleStripeWebhook is the POST /webhooks/stripe endpoint.
func (p *WebhookProcessor) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 65536)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}

	var event stripe.Event
	if p.signingSecret != "" {
		event, err = webhook.ConstructEvent(payload, r.Header.Get("Stripe-Signature"), p.signingSecret)
		if err != nil {
			log.Printf("[WEBHOOK] Signature verification failed: %v", err)
			http.Error(w, "Webhook verification failed", http.StatusBadRequest)
			return
		}
	} else if err := json.Unmarshal(payload, &event); err != nil {
		http.Error(w, "Invalid payload", http.StatusBadRequest)
		return
	}

	if event.Type != "checkout.session.completed" {
		// acknowledged, nothing to do
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]bool{"received": true})
		return
	}

	if event.Data == nil {
		http.Error(w, "Invalid session payload", http.StatusBadRequest)
		return
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		log.Printf("[WEBHOOK] Malformed session payload for event %s: %v", event.ID, err)
		http.Error(w, "Invalid session payload", http.StatusBadRequest)
		return
	}

	email := sess.Metadata["email"]
	plan := sess.Metadata["plan"]
	tokens, err := strconv.ParseInt(sess.Metadata["tokens"], 10, 64)
	if email == "" || plan == "" || err != nil || tokens <= 0 {
		// fall back to the plan catalog when the metadata is partial
		if pl, ok := models.PlanByID(plan); ok {
			tokens = pl.Tokens
		}
		if email == "" || tokens <= 0 {
			log.Printf("[WEBHOOK] Event %s missing usable metadata", event.ID)
			http.Error(w, "Missing metadata", http.StatusBadRequest)
			return
		}
	}

	fresh, err := p.claimEvent(r.Context(), event.ID)
	if err != nil {
		log.Printf("[WEBHOOK] Dedup check failed for event %s: %v", event.ID, err)
		http.Error(w, "Failed to process payment", http.StatusInternalServerError)
		return
	}
	if !fresh {
		log.Printf("[WEBHOOK] Duplicate delivery of event %s ignored", event.ID)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"received": true, "duplicate": true})
		return
	}

	result, err := p.ledger.Credit(r.Context(), email, tokens, "purchase:"+plan)
	if err != nil {
		// Release the claim so Stripe's retry can try again.
		p.releaseEvent(r.Context(), event.ID)
		log.Printf("[WEBHOOK] Credit failed for event %s: %v", event.ID, err)
		http.Error(w, "Failed to process payment", http.StatusInternalServerError)
		return
	}

	log.Printf("[WEBHOOK] Event %s credited %d tokens to %s (balance %d)", event.ID, tokens, email, result.NewBalance)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"received": true, "newBalance": result.NewBalance})
}

// claimEvent returns true exactly once per event id. Redis answers the common
// duplicate fast, the payment_events primary key is the durable authority.
func (p *WebhookProcessor) claimEvent(ctx context.Context, eventID string) (bool, error) {
	if p.redis != nil {
		set, err := p.redis.SetNX(ctx, "stripe_event:"+eventID, "1", 24*time.Hour).Result()
		if err == nil && !set {
			return false, nil
		}
		if err != nil {
			log.Printf("[WEBHOOK] Redis dedup unavailable: %v", err)
		}
	}

	result, err := p.db.ExecContext(ctx,
		"INSERT INTO payment_events (event_id, created_at) VALUES ($1, now()) ON CONFLICT (event_id) DO NOTHING",
		eventID)
	if err != nil {
		return false, fmt.Errorf("recording payment event: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (p *WebhookProcessor) releaseEvent(ctx context.Context, eventID string) {
	if _, err := p.db.ExecContext(ctx, "DELETE FROM payment_events WHERE event_id = $1", eventID); err != nil {
		log.Printf("[WEBHOOK] Failed to release event %s: %v", eventID, err)
	}
	if p.redis != nil {
		p.redis.Del(ctx, "stripe_event:"+eventID)
	}
}
