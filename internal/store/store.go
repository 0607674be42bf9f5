package store

import (
	"context"
	"encoding/hex"
	"errors"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/superfun/draw-backend/internal/models"
)

var (
	// ErrNotFound means the account or code does not exist.
	ErrNotFound = errors.New("account not found")
	// ErrUnavailable means the store could not be reached. Callers must treat
	// this as unknown state, never as a zero balance.
	ErrUnavailable = errors.New("account store unavailable")
)

// AccountStore is the only durable home of balances and live login codes.
type AccountStore interface {
	// FindByEmail returns the account for a (normalized) email.
	FindByEmail(ctx context.Context, email string) (*models.Account, error)

	// FindByCode returns the account holding code as its live, unredeemed
	// login code.
	FindByCode(ctx context.Context, code string) (*models.Account, error)

	// Upsert creates or fully replaces an account: balance is overwritten,
	// code becomes the live code and any previous code is superseded.
	Upsert(ctx context.Context, email string, balance int64, code string) (*models.Account, error)

	// MarkCodeRedeemed transitions a live code to redeemed. Returns false if
	// the code does not exist or was already redeemed, so concurrent
	// redemptions succeed at most once.
	MarkCodeRedeemed(ctx context.Context, code string) (bool, error)

	// SetBalance sets the balance in a single atomic statement. Returns false
	// if the account does not exist.
	SetBalance(ctx context.Context, email string, newBalance int64) (bool, error)
}

// NormalizeEmail lowercases and trims an email address. Every store
// implementation applies this before touching storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CodeDigest is the value stored in pending_code. Codes are hashed at rest so
// a leaked accounts table does not hand out live login codes.
func CodeDigest(code string) string {
	sum := blake2b.Sum256([]byte(code))
	return hex.EncodeToString(sum[:20])
}
