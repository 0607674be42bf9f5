package store

import (
	"context"
	"sync"
	"time"

	"github.com/superfun/draw-backend/internal/models"
)

// MemoryAccountStore is an in-process AccountStore used by tests and local
// development. It mirrors the postgres semantics, including code digests and
// the at-most-one-success rule for MarkCodeRedeemed.
type MemoryAccountStore struct {
	mu       sync.Mutex
	accounts map[string]*models.Account
}

func NewMemoryAccountStore() *MemoryAccountStore {
	return &MemoryAccountStore{accounts: make(map[string]*models.Account)}
}

func (s *MemoryAccountStore) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[NormalizeEmail(email)]
	if !ok {
		return nil, ErrNotFound
	}
	out := *a
	return &out, nil
}

func (s *MemoryAccountStore) FindByCode(ctx context.Context, code string) (*models.Account, error) {
	digest := CodeDigest(code)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.PendingCode == digest && !a.CodeRedeemed {
			out := *a
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryAccountStore) Upsert(ctx context.Context, email string, balance int64, code string) (*models.Account, error) {
	email = NormalizeEmail(email)
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[email]
	if !ok {
		a = &models.Account{Email: email, CreatedAt: now}
		s.accounts[email] = a
	}
	a.Balance = balance
	a.PendingCode = CodeDigest(code)
	a.CodeRedeemed = false
	a.UpdatedAt = now
	out := *a
	return &out, nil
}

func (s *MemoryAccountStore) MarkCodeRedeemed(ctx context.Context, code string) (bool, error) {
	digest := CodeDigest(code)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.PendingCode == digest && !a.CodeRedeemed {
			a.CodeRedeemed = true
			a.UpdatedAt = time.Now()
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryAccountStore) SetBalance(ctx context.Context, email string, newBalance int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[NormalizeEmail(email)]
	if !ok {
		return false, nil
	}
	a.Balance = newBalance
	a.UpdatedAt = time.Now()
	return true, nil
}
