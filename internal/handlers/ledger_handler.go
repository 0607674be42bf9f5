package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"

	"github.com/superfun/draw-backend/internal/ledger"
	"github.com/superfun/draw-backend/internal/models"
	"github.com/superfun/draw-backend/internal/store"
)

// LedgerHandler exposes the token ledger over HTTP: code redemption, balance
// reads, spends, and login code delivery.
type LedgerHandler struct {
	ledger    *ledger.Service
	redis     *redis.Client
	validator *validator.Validate
}

func NewLedgerHandler(ledgerService *ledger.Service, redisClient *redis.Client) *LedgerHandler {
	return &LedgerHandler{
		ledger:    ledgerService,
		redis:     redisClient,
		validator: validator.New(),
	}
}

// LoginRequest represents the code redemption payload
// @Description Login request structure
type LoginRequest struct {
	Code string `json:"code" validate:"required,min=8,max=32" example:"sd10000200abcdefghj"` // One-time auth code
}

// AuthResponse represents the authentication response
// @Description Authentication response structure
type AuthResponse struct {
	Token    string `json:"token"`              // JWT session token
	Email    string `json:"email,omitempty"`    // Account email, empty in degraded mode
	Balance  int64  `json:"balance"`            // Token balance at login
	Degraded bool   `json:"degraded,omitempty"` // Balance decoded from the code, not the store
}

type SendCodeRequest struct {
	Email string `json:"email" validate:"required,email" example:"kid@example.com"`
}

type SpendRequest struct {
	Amount int64  `json:"amount" validate:"required,gt=0" example:"400"` // Tokens to spend
	Reason string `json:"reason" example:"render"`
	// Balance is the client's idea of its balance. Accepted for telemetry,
	// never trusted: the ledger decides.
	Balance int64 `json:"balance,omitempty"`
}

func decodeRequest(w http.ResponseWriter, r *http.Request, validate *validator.Validate, dst any) bool {
	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}
	if err := validate.Struct(dst); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return false
	}
	return true
}

// Login redeems a one-time code for a session
// @Summary Redeem auth code
// @Description Redeem a one-time auth code and receive a session token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login request"
// @Success 200 {object} AuthResponse "Login successful"
// @Failure 400 {string} string "Invalid request"
// @Failure 401 {string} string "Invalid or already used code"
// @Failure 503 {string} string "Account store unavailable"
// @Router /auth/login [post]
func (h *LedgerHandler) Login(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Login attempt from IP: %s", r.RemoteAddr)

	var req LoginRequest
	if !decodeRequest(w, r, h.validator, &req) {
		return
	}

	result, err := h.ledger.Redeem(r.Context(), req.Code)
	if err != nil {
		h.sendLedgerError(w, err)
		return
	}

	token, err := generateJWT(result.Email, result.Degraded)
	if err != nil {
		log.Printf("[AUTH] JWT generation failed: %v", err)
		SendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[AUTH] Login successful for %s (degraded: %v)", result.Email, result.Degraded)
	sendJSON(w, AuthResponse{
		Token:    token,
		Email:    result.Email,
		Balance:  result.Balance,
		Degraded: result.Degraded,
	})
}

// SendLoginEmail mails a fresh one-time code
// @Summary Request login code
// @Description Email a fresh one-time auth code, creating the account with a welcome bonus on first contact
// @Tags auth
// @Accept json
// @Produce json
// @Param request body SendCodeRequest true "Email request"
// @Success 200 {object} map[string]any "Code sent"
// @Failure 400 {string} string "Invalid request"
// @Failure 500 {string} string "Delivery failed"
// @Router /auth/email [post]
func (h *LedgerHandler) SendLoginEmail(w http.ResponseWriter, r *http.Request) {
	var req SendCodeRequest
	if !decodeRequest(w, r, h.validator, &req) {
		return
	}

	result, err := h.ledger.SendLoginCode(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, store.ErrUnavailable) {
			h.sendLedgerError(w, err)
			return
		}
		log.Printf("[AUTH] Login code delivery failed for %s: %v", req.Email, err)
		SendErrorResponse(w, "Failed to send login code", http.StatusInternalServerError, nil)
		return
	}

	sendJSON(w, map[string]any{
		"message":    "Login code sent",
		"newAccount": result.NewAccount,
	})
}

type PurchaseRequest struct {
	Email string `json:"email" validate:"required,email" example:"kid@example.com"`
	Plan  string `json:"plan" validate:"required,oneof=micro tinker pro" example:"micro"`
	// ClientBalanceHint is whatever balance the client last saw. Ignored
	// whenever the store has a record; the ledger decides.
	ClientBalanceHint int64 `json:"clientBalanceHint,omitempty"`
}

// Purchase credits a token plan directly
// @Summary Purchase a plan
// @Description Credit a plan's tokens to an account, creating it on first purchase. Called by trusted payment glue; the Stripe webhook is the usual path.
// @Tags ledger
// @Accept json
// @Produce json
// @Param request body PurchaseRequest true "Purchase request"
// @Success 200 {object} ledger.CreditResult "Credit applied"
// @Failure 400 {string} string "Invalid request"
// @Failure 503 {string} string "Account store unavailable"
// @Router /purchase [post]
func (h *LedgerHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	var req PurchaseRequest
	if !decodeRequest(w, r, h.validator, &req) {
		return
	}

	plan, ok := models.PlanByID(req.Plan)
	if !ok {
		SendErrorResponse(w, "Unknown plan", http.StatusBadRequest, nil)
		return
	}

	result, err := h.ledger.Credit(r.Context(), req.Email, plan.Tokens, "purchase:"+plan.ID)
	if err != nil {
		h.sendLedgerError(w, err)
		return
	}

	if req.ClientBalanceHint != 0 && req.ClientBalanceHint != result.PreviousBalance {
		log.Printf("[LEDGER] Client balance hint ignored for %s: hint %d, store %d",
			result.Email, req.ClientBalanceHint, result.PreviousBalance)
	}

	sendJSON(w, result)
}

// Balance returns the authenticated account's balance
// @Summary Get balance
// @Description Read the authoritative token balance for the logged-in account
// @Tags ledger
// @Produce json
// @Success 200 {object} map[string]any "Current balance"
// @Failure 401 {string} string "Unauthorized"
// @Failure 404 {string} string "Account not found"
// @Router /ledger/balance [get]
func (h *LedgerHandler) Balance(w http.ResponseWriter, r *http.Request) {
	email, ok := emailFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	balance, err := h.ledger.Balance(r.Context(), email)
	if err != nil {
		h.sendLedgerError(w, err)
		return
	}

	sendJSON(w, map[string]any{"email": email, "balance": balance})
}

// Spend debits tokens from the authenticated account
// @Summary Spend tokens
// @Description Debit tokens after a completed render. The server balance always wins over any client-side count.
// @Tags ledger
// @Accept json
// @Produce json
// @Param request body SpendRequest true "Spend request"
// @Success 200 {object} ledger.DebitResult "Debit applied"
// @Failure 400 {string} string "Invalid request"
// @Failure 401 {string} string "Unauthorized"
// @Failure 402 {string} string "Insufficient balance"
// @Failure 404 {string} string "Account not found"
// @Router /ledger/spend [post]
func (h *LedgerHandler) Spend(w http.ResponseWriter, r *http.Request) {
	email, ok := emailFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req SpendRequest
	if !decodeRequest(w, r, h.validator, &req) {
		return
	}

	result, err := h.ledger.Debit(r.Context(), email, req.Amount)
	if err != nil {
		h.sendLedgerError(w, err)
		return
	}

	if req.Balance != 0 && req.Balance != result.PreviousBalance {
		log.Printf("[LEDGER] Client balance drift for %s: client %d, store %d", email, req.Balance, result.PreviousBalance)
	}

	sendJSON(w, result)
}

// Logout invalidates the current session token
// @Summary Logout
// @Description Blacklist the session token until it expires
// @Tags auth
// @Produce json
// @Success 200 {object} map[string]string "Logout successful"
// @Router /auth/logout [post]
func (h *LedgerHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("Authorization")
	if token != "" && len(token) > 7 {
		token = token[7:] // Remove "Bearer " prefix

		if h.redis != nil {
			key := fmt.Sprintf("blacklist:%s", token)
			expiry := time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour
			if err := h.redis.Set(r.Context(), key, "1", expiry).Err(); err != nil {
				log.Printf("[AUTH] Failed to blacklist token: %v", err)
			}
		}
	}

	sendJSON(w, map[string]string{"message": "Logout successful"})
}

func (h *LedgerHandler) sendLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrInvalidCode):
		SendErrorResponse(w, "Invalid or already used code", http.StatusUnauthorized, nil)
	case errors.Is(err, ledger.ErrInsufficientFunds):
		SendErrorResponse(w, "Insufficient balance", http.StatusPaymentRequired, nil)
	case errors.Is(err, ledger.ErrInvalidAmount):
		SendErrorResponse(w, "Amount must be positive", http.StatusBadRequest, nil)
	case errors.Is(err, store.ErrNotFound):
		SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
	case errors.Is(err, store.ErrUnavailable):
		SendErrorResponse(w, "Account store unavailable, try again shortly", http.StatusServiceUnavailable, nil)
	default:
		log.Printf("[LEDGER] Unexpected error: %v", err)
		SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
	}
}

func generateJWT(email string, degraded bool) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"email":    email,
		"degraded": degraded,
		"exp":      time.Now().Add(time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour).Unix(),
	})

	return token.SignedString([]byte(viper.GetString("jwt.secret_key")))
}

func emailFromContext(ctx context.Context) (string, bool) {
	email, ok := ctx.Value("userEmail").(string)
	return email, ok && email != ""
}
