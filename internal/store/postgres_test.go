package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
)

func accountRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"email", "balance", "pending_code", "code_redeemed", "created_at", "updated_at"})
}

func TestPostgresAccountStore_FindByEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	s := NewPostgresAccountStore(db)
	ctx := context.Background()

	t.Run("normalizes email and scans account", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM accounts WHERE email = \\$1").
			WithArgs("a@x.com").
			WillReturnRows(accountRows().AddRow("a@x.com", 500, "", false, time.Now(), time.Now()))

		acct, err := s.FindByEmail(ctx, "  A@X.com ")
		assert.NoError(t, err)
		assert.Equal(t, "a@x.com", acct.Email)
		assert.Equal(t, int64(500), acct.Balance)
	})

	t.Run("missing account maps to ErrNotFound", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM accounts WHERE email = \\$1").
			WithArgs("b@x.com").
			WillReturnRows(accountRows())

		_, err := s.FindByEmail(ctx, "b@x.com")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAccountStore_FindByCode(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	s := NewPostgresAccountStore(db)

	t.Run("looks up by digest, unredeemed only", func(t *testing.T) {
		code := "abcdefghij234567"
		mock.ExpectQuery("SELECT (.+) FROM accounts WHERE pending_code = \\$1 AND code_redeemed = false").
			WithArgs(CodeDigest(code)).
			WillReturnRows(accountRows().AddRow("a@x.com", 200000, CodeDigest(code), false, time.Now(), time.Now()))

		acct, err := s.FindByCode(context.Background(), code)
		assert.NoError(t, err)
		assert.Equal(t, "a@x.com", acct.Email)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAccountStore_Upsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	s := NewPostgresAccountStore(db)

	t.Run("insert or replace returns new state", func(t *testing.T) {
		code := "abcdefghij234567"
		mock.ExpectQuery("INSERT INTO accounts (.+) ON CONFLICT \\(email\\) DO UPDATE").
			WithArgs("a@x.com", int64(1500), CodeDigest(code)).
			WillReturnRows(accountRows().AddRow("a@x.com", 1500, CodeDigest(code), false, time.Now(), time.Now()))

		acct, err := s.Upsert(context.Background(), "A@x.com", 1500, code)
		assert.NoError(t, err)
		assert.Equal(t, int64(1500), acct.Balance)
		assert.False(t, acct.CodeRedeemed)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAccountStore_MarkCodeRedeemed(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	s := NewPostgresAccountStore(db)
	ctx := context.Background()
	code := "abcdefghij234567"

	t.Run("first redemption succeeds", func(t *testing.T) {
		mock.ExpectExec("UPDATE accounts SET code_redeemed = true, updated_at = now\\(\\) WHERE pending_code = \\$1 AND code_redeemed = false").
			WithArgs(CodeDigest(code)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		ok, err := s.MarkCodeRedeemed(ctx, code)
		assert.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("second redemption fails without error", func(t *testing.T) {
		mock.ExpectExec("UPDATE accounts SET code_redeemed = true, updated_at = now\\(\\) WHERE pending_code = \\$1 AND code_redeemed = false").
			WithArgs(CodeDigest(code)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		ok, err := s.MarkCodeRedeemed(ctx, code)
		assert.NoError(t, err)
		assert.False(t, ok)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAccountStore_SetBalance(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	s := NewPostgresAccountStore(db)
	ctx := context.Background()

	t.Run("single statement update", func(t *testing.T) {
		mock.ExpectExec("UPDATE accounts SET balance = \\$2, updated_at = now\\(\\) WHERE email = \\$1").
			WithArgs("a@x.com", int64(600)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		ok, err := s.SetBalance(ctx, "a@x.com", 600)
		assert.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("unknown account reports false", func(t *testing.T) {
		mock.ExpectExec("UPDATE accounts SET balance = \\$2, updated_at = now\\(\\) WHERE email = \\$1").
			WithArgs("ghost@x.com", int64(600)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		ok, err := s.SetBalance(ctx, "ghost@x.com", 600)
		assert.NoError(t, err)
		assert.False(t, ok)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}
