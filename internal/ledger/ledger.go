// Package ledger is the only place account balances change. HTTP handlers and
// clients pass intents (credit, debit, redeem) and receive authoritative
// results; any balance a caller supplies is a hint at best and is ignored
// whenever the store holds a record.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/superfun/draw-backend/internal/codec"
	"github.com/superfun/draw-backend/internal/notify"
	"github.com/superfun/draw-backend/internal/store"
)

var (
	// ErrInvalidCode covers both unknown and already-redeemed codes. Callers
	// must not distinguish the two for end users.
	ErrInvalidCode = errors.New("invalid or already used code")
	// ErrInsufficientFunds rejects a debit exceeding the balance. Balances are
	// never clamped or partially debited.
	ErrInsufficientFunds = errors.New("insufficient balance")
	// ErrInvalidAmount rejects non-positive credit or debit amounts.
	ErrInvalidAmount = errors.New("amount must be positive")
)

type Service struct {
	store        store.AccountStore
	notifier     notify.Notifier
	welcomeBonus int64
	loginBaseURL string
}

func NewService(accounts store.AccountStore, notifier notify.Notifier, welcomeBonus int64, loginBaseURL string) *Service {
	return &Service{
		store:        accounts,
		notifier:     notifier,
		welcomeBonus: welcomeBonus,
		loginBaseURL: loginBaseURL,
	}
}

type CreditResult struct {
	Email           string `json:"email"`
	PreviousBalance int64  `json:"previousBalance"`
	NewBalance      int64  `json:"newBalance"`
	Code            string `json:"-"`
	NewAccount      bool   `json:"newAccount"`
}

type DebitResult struct {
	Email           string `json:"email"`
	PreviousBalance int64  `json:"previousBalance"`
	NewBalance      int64  `json:"newBalance"`
}

// RedeemResult is what a one-time code resolves to. Degraded marks the
// snapshot fallback path: the balance came from the code itself, not the
// store, and the email is unverified (and usually empty).
type RedeemResult struct {
	Email    string `json:"email"`
	Balance  int64  `json:"balance"`
	Degraded bool   `json:"degraded,omitempty"`
}

type LoginCodeResult struct {
	Email      string `json:"email"`
	Balance    int64  `json:"balance"`
	NewAccount bool   `json:"newAccount"`
}

// Credit adds amount tokens to an account, creating it on first purchase, and
// mints a fresh login code that supersedes any earlier one. The emailed code
// delivery is best-effort; the credit is already durable when it goes out.
func (s *Service) Credit(ctx context.Context, email string, amount int64, reason string) (*CreditResult, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	email = store.NormalizeEmail(email)

	previous := int64(0)
	existing := false
	acct, err := s.store.FindByEmail(ctx, email)
	switch {
	case err == nil:
		previous = acct.Balance
		existing = true
	case errors.Is(err, store.ErrNotFound):
		// first purchase creates the account
	default:
		return nil, err
	}

	newBalance := previous + amount

	code, err := codec.MintWithSnapshot(newBalance)
	if err != nil {
		return nil, fmt.Errorf("minting code: %w", err)
	}

	if _, err := s.store.Upsert(ctx, email, newBalance, code); err != nil {
		return nil, err
	}

	log.Printf("[LEDGER] Credit %s: %d -> %d (%s)", email, previous, newBalance, reason)

	result := &CreditResult{
		Email:           email,
		PreviousBalance: previous,
		NewBalance:      newBalance,
		Code:            code,
		NewAccount:      !existing,
	}

	subject, body := creditEmail(result, s.loginBaseURL)
	if err := s.notifier.Send(ctx, email, subject, body); err != nil {
		// Committed credits stay committed. The user can recover the code
		// through the login-by-email flow.
		log.Printf("[LEDGER] Credit email to %s failed: %v", email, err)
	}

	return result, nil
}

// Debit removes amount tokens. It fails with ErrNotFound for unknown accounts
// and ErrInsufficientFunds when the balance cannot cover the amount.
func (s *Service) Debit(ctx context.Context, email string, amount int64) (*DebitResult, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	email = store.NormalizeEmail(email)

	acct, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if acct.Balance < amount {
		return nil, ErrInsufficientFunds
	}

	newBalance := acct.Balance - amount
	ok, err := s.store.SetBalance(ctx, email, newBalance)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, store.ErrNotFound
	}

	log.Printf("[LEDGER] Debit %s: %d -> %d", email, acct.Balance, newBalance)

	return &DebitResult{
		Email:           email,
		PreviousBalance: acct.Balance,
		NewBalance:      newBalance,
	}, nil
}

// Redeem resolves a one-time code. The store is authoritative; the snapshot
// embedded in the code is consulted only when the store has no live record
// for it. Two concurrent redemptions of one code succeed at most once.
func (s *Service) Redeem(ctx context.Context, code string) (*RedeemResult, error) {
	acct, err := s.store.FindByCode(ctx, code)
	if err == nil {
		ok, markErr := s.store.MarkCodeRedeemed(ctx, code)
		if markErr != nil {
			return nil, markErr
		}
		if !ok {
			// lost the race against another redemption
			return nil, ErrInvalidCode
		}
		log.Printf("[LEDGER] Code redeemed for %s", acct.Email)
		return &RedeemResult{Email: acct.Email, Balance: acct.Balance}, nil
	}
	if errors.Is(err, store.ErrUnavailable) {
		// Degraded mode: the store cannot confirm or deny the code. A
		// snapshot code still yields its embedded balance; everything else
		// propagates the outage. The fallback never fires when the store is
		// healthy, otherwise a redeemed or superseded snapshot code would
		// resolve forever and one-time-use would not hold.
		if balance, ok := codec.DecodeSnapshot(code); ok {
			log.Printf("[LEDGER] Code resolved via snapshot fallback: %v", err)
			return &RedeemResult{Balance: balance, Degraded: true}, nil
		}
		return nil, err
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCode
	}
	return nil, err
}

// Balance is a pure read of the store, used by clients to resync after
// suspected drift.
func (s *Service) Balance(ctx context.Context, email string) (int64, error) {
	acct, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		return 0, err
	}
	return acct.Balance, nil
}

// SendLoginCode issues a fresh one-time code for email and mails it, creating
// the account with the welcome bonus on first contact. Any earlier unredeemed
// code is superseded. Unlike Credit, a delivery failure here is returned to
// the caller: the code exists nowhere else.
func (s *Service) SendLoginCode(ctx context.Context, email string) (*LoginCodeResult, error) {
	email = store.NormalizeEmail(email)

	balance := s.welcomeBonus
	newAccount := true
	acct, err := s.store.FindByEmail(ctx, email)
	switch {
	case err == nil:
		balance = acct.Balance
		newAccount = false
	case errors.Is(err, store.ErrNotFound):
	default:
		return nil, err
	}

	code, err := codec.MintWithSnapshot(balance)
	if err != nil {
		return nil, fmt.Errorf("minting code: %w", err)
	}

	if _, err := s.store.Upsert(ctx, email, balance, code); err != nil {
		return nil, err
	}

	log.Printf("[LEDGER] Login code issued for %s (new account: %v)", email, newAccount)

	subject, body := loginEmail(balance, code, newAccount, s.welcomeBonus, s.loginBaseURL)
	if err := s.notifier.Send(ctx, email, subject, body); err != nil {
		return nil, fmt.Errorf("sending login email: %w", err)
	}

	return &LoginCodeResult{Email: email, Balance: balance, NewAccount: newAccount}, nil
}
