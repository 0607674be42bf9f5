package models

import "time"

// Account is a user's token balance record. Email is the primary key,
// normalized to lowercase before it reaches the store.
type Account struct {
	Email        string    `json:"email" db:"email"`
	Balance      int64     `json:"balance" db:"balance"` // tokens
	PendingCode  string    `json:"-" db:"pending_code"`  // digest of the live login code
	CodeRedeemed bool      `json:"-" db:"code_redeemed"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// PaymentEvent records a processed payment-provider event id so webhook
// redeliveries never credit an account twice.
type PaymentEvent struct {
	EventID   string    `json:"event_id" db:"event_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
