package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/superfun/draw-backend/internal/models"
)

// PostgresAccountStore implements AccountStore on a single accounts table.
// Every mutation is a single statement so concurrent requests from
// independent handler processes cannot lose updates.
type PostgresAccountStore struct {
	db *sql.DB
}

func NewPostgresAccountStore(db *sql.DB) *PostgresAccountStore {
	return &PostgresAccountStore{db: db}
}

const accountColumns = "email, balance, COALESCE(pending_code, ''), code_redeemed, created_at, updated_at"

func (s *PostgresAccountStore) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE email = $1",
		NormalizeEmail(email))
	return scanAccount(row)
}

func (s *PostgresAccountStore) FindByCode(ctx context.Context, code string) (*models.Account, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE pending_code = $1 AND code_redeemed = false",
		CodeDigest(code))
	return scanAccount(row)
}

func (s *PostgresAccountStore) Upsert(ctx context.Context, email string, balance int64, code string) (*models.Account, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO accounts (email, balance, pending_code, code_redeemed, created_at, updated_at)
		VALUES ($1, $2, $3, false, now(), now())
		ON CONFLICT (email) DO UPDATE
		SET balance = EXCLUDED.balance,
		    pending_code = EXCLUDED.pending_code,
		    code_redeemed = false,
		    updated_at = now()
		RETURNING `+accountColumns,
		NormalizeEmail(email), balance, CodeDigest(code))
	return scanAccount(row)
}

func (s *PostgresAccountStore) MarkCodeRedeemed(ctx context.Context, code string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		"UPDATE accounts SET code_redeemed = true, updated_at = now() WHERE pending_code = $1 AND code_redeemed = false",
		CodeDigest(code))
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return affected == 1, nil
}

func (s *PostgresAccountStore) SetBalance(ctx context.Context, email string, newBalance int64) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		"UPDATE accounts SET balance = $2, updated_at = now() WHERE email = $1",
		NormalizeEmail(email), newBalance)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return affected == 1, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var a models.Account
	err := row.Scan(&a.Email, &a.Balance, &a.PendingCode, &a.CodeRedeemed, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &a, nil
}
