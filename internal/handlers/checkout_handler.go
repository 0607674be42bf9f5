package handlers

import (
	"log"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/superfun/draw-backend/internal/models"
	"github.com/superfun/draw-backend/internal/payments"
)

// CheckoutHandler exposes the plan catalog and Stripe checkout creation.
type CheckoutHandler struct {
	checkout  *payments.CheckoutService
	validator *validator.Validate
}

func NewCheckoutHandler(checkout *payments.CheckoutService) *CheckoutHandler {
	return &CheckoutHandler{checkout: checkout, validator: validator.New()}
}

type CheckoutRequest struct {
	Email string `json:"email" validate:"required,email" example:"kid@example.com"`
	Plan  string `json:"plan" validate:"required,oneof=micro tinker pro" example:"tinker"`
}

// Plans lists the purchasable token plans
// @Summary List plans
// @Description List the purchasable token plans with prices
// @Tags payments
// @Produce json
// @Success 200 {array} models.Plan "Plan catalog"
// @Router /plans [get]
func (h *CheckoutHandler) Plans(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, models.PlanList())
}

// CreateCheckout starts a Stripe checkout session
// @Summary Start checkout
// @Description Create a Stripe checkout session for a token plan
// @Tags payments
// @Accept json
// @Produce json
// @Param request body CheckoutRequest true "Checkout request"
// @Success 200 {object} payments.CheckoutSession "Checkout session"
// @Failure 400 {string} string "Invalid request"
// @Failure 502 {string} string "Stripe unavailable"
// @Router /checkout [post]
func (h *CheckoutHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if !decodeRequest(w, r, h.validator, &req) {
		return
	}

	sess, err := h.checkout.CreateSession(r.Context(), req.Email, req.Plan)
	if err != nil {
		log.Printf("[CHECKOUT] Session creation failed for %s: %v", req.Email, err)
		SendErrorResponse(w, "Failed to start checkout", http.StatusBadGateway, nil)
		return
	}

	sendJSON(w, sess)
}
