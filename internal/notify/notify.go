package notify

import "context"

// Notifier delivers a message to a user out-of-band. Delivery is best-effort:
// the ledger never rolls back a committed balance change because an email
// bounced.
type Notifier interface {
	Send(ctx context.Context, toEmail, subject, body string) error
}
