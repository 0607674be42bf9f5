package payments

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/superfun/draw-backend/internal/ledger"
)

type mockCrediter struct {
	mock.Mock
}

func (m *mockCrediter) Credit(ctx context.Context, email string, amount int64, reason string) (*ledger.CreditResult, error) {
	args := m.Called(ctx, email, amount, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.CreditResult), args.Error(1)
}

func checkoutCompletedEvent(eventID string) string {
	return fmt.Sprintf(`{
		"id": %q,
		"type": "checkout.session.completed",
		"data": {
			"object": {
				"id": "cs_test_1",
				"metadata": {"email": "a@x.com", "plan": "micro", "tokens": "200000"}
			}
		}
	}`, eventID)
}

func postWebhook(t *testing.T, p *WebhookProcessor, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", strings.NewReader(body))
	rec := httptest.NewRecorder()
	p.HandleStripeWebhook(rec, req)
	return rec
}

func TestWebhookProcessor_CreditsOncePerEvent(t *testing.T) {
	db, dbMock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	redisClient, redisMock := redismock.NewClientMock()

	crediter := &mockCrediter{}
	crediter.On("Credit", mock.Anything, "a@x.com", int64(200000), "purchase:micro").
		Return(&ledger.CreditResult{Email: "a@x.com", NewBalance: 200000, Code: "x"}, nil).Once()

	p := NewWebhookProcessor(db, redisClient, crediter, "")

	t.Run("first delivery credits", func(t *testing.T) {
		redisMock.ExpectSetNX("stripe_event:evt_1", "1", 24*time.Hour).SetVal(true)
		dbMock.ExpectExec("INSERT INTO payment_events").
			WithArgs("evt_1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		rec := postWebhook(t, p, checkoutCompletedEvent("evt_1"))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "newBalance")
	})

	t.Run("redelivery is swallowed by the redis fast path", func(t *testing.T) {
		redisMock.ExpectSetNX("stripe_event:evt_1", "1", 24*time.Hour).SetVal(false)

		rec := postWebhook(t, p, checkoutCompletedEvent("evt_1"))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "duplicate")
	})

	crediter.AssertExpectations(t)
	assert.NoError(t, dbMock.ExpectationsWereMet())
	assert.NoError(t, redisMock.ExpectationsWereMet())
}

func TestWebhookProcessor_DatabaseDedupWithoutRedis(t *testing.T) {
	db, dbMock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	crediter := &mockCrediter{}
	crediter.On("Credit", mock.Anything, "a@x.com", int64(200000), "purchase:micro").
		Return(&ledger.CreditResult{Email: "a@x.com", NewBalance: 200000, Code: "x"}, nil).Once()

	p := NewWebhookProcessor(db, nil, crediter, "")

	dbMock.ExpectExec("INSERT INTO payment_events").
		WithArgs("evt_2").
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := postWebhook(t, p, checkoutCompletedEvent("evt_2"))
	assert.Equal(t, http.StatusOK, rec.Code)

	// same event id again: the primary key conflict reports zero rows
	dbMock.ExpectExec("INSERT INTO payment_events").
		WithArgs("evt_2").
		WillReturnResult(sqlmock.NewResult(0, 0))

	rec = postWebhook(t, p, checkoutCompletedEvent("evt_2"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "duplicate")

	crediter.AssertExpectations(t)
	assert.NoError(t, dbMock.ExpectationsWereMet())
}

func TestWebhookProcessor_CreditFailureReleasesClaim(t *testing.T) {
	db, dbMock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	crediter := &mockCrediter{}
	crediter.On("Credit", mock.Anything, "a@x.com", int64(200000), "purchase:micro").
		Return(nil, assert.AnError).Once()

	p := NewWebhookProcessor(db, nil, crediter, "")

	dbMock.ExpectExec("INSERT INTO payment_events").
		WithArgs("evt_3").
		WillReturnResult(sqlmock.NewResult(0, 1))
	dbMock.ExpectExec("DELETE FROM payment_events").
		WithArgs("evt_3").
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := postWebhook(t, p, checkoutCompletedEvent("evt_3"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	crediter.AssertExpectations(t)
	assert.NoError(t, dbMock.ExpectationsWereMet())
}

func TestWebhookProcessor_IgnoresOtherEventTypes(t *testing.T) {
	db, dbMock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	crediter := &mockCrediter{}
	p := NewWebhookProcessor(db, nil, crediter, "")

	rec := postWebhook(t, p, `{"id": "evt_4", "type": "payment_intent.created", "data": {"object": {}}}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	crediter.AssertNotCalled(t, "Credit", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.NoError(t, dbMock.ExpectationsWereMet())
}
