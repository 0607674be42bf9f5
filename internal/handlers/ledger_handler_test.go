package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/superfun/draw-backend/internal/ledger"
	"github.com/superfun/draw-backend/internal/store"
)

type captureNotifier struct {
	sent []string
	fail bool
}

func (n *captureNotifier) Send(ctx context.Context, toEmail, subject, body string) error {
	if n.fail {
		return assert.AnError
	}
	n.sent = append(n.sent, toEmail)
	return nil
}

func newTestHandler(t *testing.T) (*LedgerHandler, *ledger.Service) {
	t.Helper()
	viper.Set("jwt.secret_key", "test-secret")
	viper.Set("jwt.expiry_hours", 24)

	svc := ledger.NewService(store.NewMemoryAccountStore(), &captureNotifier{}, 1000, "https://draw.test")
	return NewLedgerHandler(svc, nil), svc
}

func doJSON(h http.HandlerFunc, method, target, body, email string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if email != "" {
		req = req.WithContext(context.WithValue(req.Context(), "userEmail", email))
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestLedgerHandler_Login(t *testing.T) {
	h, svc := newTestHandler(t)

	credit, err := svc.Credit(context.Background(), "a@x.com", 5000, "test")
	require.NoError(t, err)

	t.Run("valid code logs in", func(t *testing.T) {
		rec := doJSON(h.Login, http.MethodPost, "/api/v1/auth/login", `{"code":"`+credit.Code+`"}`, "")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp AuthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.Token)
		assert.Equal(t, "a@x.com", resp.Email)
		assert.Equal(t, int64(5000), resp.Balance)
		assert.False(t, resp.Degraded)
	})

	t.Run("code is one-time", func(t *testing.T) {
		rec := doJSON(h.Login, http.MethodPost, "/api/v1/auth/login", `{"code":"`+credit.Code+`"}`, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("unknown code is rejected", func(t *testing.T) {
		rec := doJSON(h.Login, http.MethodPost, "/api/v1/auth/login", `{"code":"aaaaaaaaaaaaaaaa"}`, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("missing code fails validation", func(t *testing.T) {
		rec := doJSON(h.Login, http.MethodPost, "/api/v1/auth/login", `{}`, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown fields are rejected", func(t *testing.T) {
		rec := doJSON(h.Login, http.MethodPost, "/api/v1/auth/login", `{"code":"x","extra":true}`, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestLedgerHandler_Balance(t *testing.T) {
	h, svc := newTestHandler(t)
	_, err := svc.Credit(context.Background(), "a@x.com", 3000, "test")
	require.NoError(t, err)

	t.Run("authenticated read", func(t *testing.T) {
		rec := doJSON(h.Balance, http.MethodGet, "/api/v1/ledger/balance", "", "a@x.com")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"balance":3000`)
	})

	t.Run("unknown account is 404", func(t *testing.T) {
		rec := doJSON(h.Balance, http.MethodGet, "/api/v1/ledger/balance", "", "nobody@x.com")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("missing auth context is 401", func(t *testing.T) {
		rec := doJSON(h.Balance, http.MethodGet, "/api/v1/ledger/balance", "", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestLedgerHandler_Spend(t *testing.T) {
	h, svc := newTestHandler(t)
	_, err := svc.Credit(context.Background(), "a@x.com", 1000, "test")
	require.NoError(t, err)

	t.Run("spend within balance", func(t *testing.T) {
		rec := doJSON(h.Spend, http.MethodPost, "/api/v1/ledger/spend", `{"amount":400,"reason":"render"}`, "a@x.com")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"newBalance":600`)
	})

	t.Run("overdraft is 402 and balance is untouched", func(t *testing.T) {
		rec := doJSON(h.Spend, http.MethodPost, "/api/v1/ledger/spend", `{"amount":601}`, "a@x.com")
		assert.Equal(t, http.StatusPaymentRequired, rec.Code)

		balance, err := svc.Balance(context.Background(), "a@x.com")
		require.NoError(t, err)
		assert.Equal(t, int64(600), balance)
	})

	t.Run("a stale client balance does not change the outcome", func(t *testing.T) {
		// client claims 50000 but the store says 600
		rec := doJSON(h.Spend, http.MethodPost, "/api/v1/ledger/spend", `{"amount":700,"balance":50000}`, "a@x.com")
		assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	})

	t.Run("non-positive amount fails validation", func(t *testing.T) {
		rec := doJSON(h.Spend, http.MethodPost, "/api/v1/ledger/spend", `{"amount":0}`, "a@x.com")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestLedgerHandler_Purchase(t *testing.T) {
	h, svc := newTestHandler(t)

	t.Run("first purchase creates the account", func(t *testing.T) {
		rec := doJSON(h.Purchase, http.MethodPost, "/api/v1/purchase", `{"email":"a@x.com","plan":"micro"}`, "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"previousBalance":0`)
		assert.Contains(t, rec.Body.String(), `"newBalance":200000`)
		assert.Contains(t, rec.Body.String(), `"newAccount":true`)
	})

	t.Run("a wild client hint never shifts the result", func(t *testing.T) {
		rec := doJSON(h.Purchase, http.MethodPost, "/api/v1/purchase", `{"email":"a@x.com","plan":"micro","clientBalanceHint":999999}`, "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"previousBalance":200000`)
		assert.Contains(t, rec.Body.String(), `"newBalance":400000`)

		balance, err := svc.Balance(context.Background(), "a@x.com")
		require.NoError(t, err)
		assert.Equal(t, int64(400000), balance)
	})

	t.Run("unknown plan is rejected", func(t *testing.T) {
		rec := doJSON(h.Purchase, http.MethodPost, "/api/v1/purchase", `{"email":"a@x.com","plan":"mega"}`, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestLedgerHandler_SendLoginEmail(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doJSON(h.SendLoginEmail, http.MethodPost, "/api/v1/auth/email", `{"email":"new@x.com"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"newAccount":true`)

	rec = doJSON(h.SendLoginEmail, http.MethodPost, "/api/v1/auth/email", `{"email":"not-an-email"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLedgerHandler_SendLoginEmailDeliveryFailure(t *testing.T) {
	viper.Set("jwt.secret_key", "test-secret")
	svc := ledger.NewService(store.NewMemoryAccountStore(), &captureNotifier{fail: true}, 1000, "https://draw.test")
	h := NewLedgerHandler(svc, nil)

	rec := doJSON(h.SendLoginEmail, http.MethodPost, "/api/v1/auth/email", `{"email":"new@x.com"}`, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestLedgerHandler_Logout(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer some-token")
	rec := httptest.NewRecorder()
	h.Logout(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Logout successful")
}
