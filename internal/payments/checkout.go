// Package payments owns the Stripe integration: checkout session creation on
// the way out, and webhook-driven crediting on the way back in.
package payments

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"strconv"

	qrcode "github.com/skip2/go-qrcode"
	"github.com/spf13/viper"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"

	"github.com/superfun/draw-backend/internal/models"
	"github.com/superfun/draw-backend/internal/store"
)

type CheckoutService struct {
	baseURL string
}

type CheckoutSession struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
	// QRPNG is a base64 data URL of the checkout link so a user browsing on
	// desktop can pay from their phone.
	QRPNG string `json:"qr,omitempty"`
}

func NewCheckoutService() *CheckoutService {
	viper.SetDefault("site.base_url", "https://draw.superfun.games")

	stripe.Key = viper.GetString("stripe.secret_key")
	if stripe.Key == "" {
		log.Println("[CHECKOUT] Stripe secret key missing, checkout disabled")
	}

	return &CheckoutService{baseURL: viper.GetString("site.base_url")}
}

// CreateSession starts a Stripe Checkout flow for a token plan. The plan's
// token amount rides along in the session metadata so the webhook can credit
// the right quantity without trusting anything client-side.
func (s *CheckoutService) CreateSession(ctx context.Context, email, planID string) (*CheckoutSession, error) {
	if stripe.Key == "" {
		return nil, fmt.Errorf("stripe is not configured")
	}

	plan, ok := models.PlanByID(planID)
	if !ok {
		return nil, fmt.Errorf("unknown plan %q", planID)
	}

	email = store.NormalizeEmail(email)

	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:         stripe.String(s.baseURL + "/?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:          stripe.String(s.baseURL + "/?canceled=true"),
		CustomerEmail:      stripe.String(email),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String("usd"),
					UnitAmount: stripe.Int64(plan.PriceCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String(plan.Name),
						Description: stripe.String(fmt.Sprintf("%d tokens for Superfun Draw", plan.Tokens)),
					},
				},
			},
		},
	}
	params.Context = ctx
	params.AddMetadata("email", email)
	params.AddMetadata("plan", plan.ID)
	params.AddMetadata("tokens", strconv.FormatInt(plan.Tokens, 10))

	sess, err := session.New(params)
	if err != nil {
		return nil, fmt.Errorf("creating checkout session: %w", err)
	}

	log.Printf("[CHECKOUT] Session %s created for %s (%s)", sess.ID, email, plan.ID)

	out := &CheckoutSession{SessionID: sess.ID, URL: sess.URL}
	if png, err := qrcode.Encode(sess.URL, qrcode.Medium, 256); err == nil {
		out.QRPNG = "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
	} else {
		log.Printf("[CHECKOUT] QR generation failed: %v", err)
	}

	return out, nil
}
