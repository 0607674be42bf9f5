package notify

import (
	"context"
	"errors"
	"fmt"
	"log"

	mailjet "github.com/mailjet/mailjet-apiv3-go/v4"
	"github.com/spf13/viper"
)

// MailjetNotifier sends transactional email through the Mailjet v3.1 API.
// Without credentials it degrades to a no-op that reports failure, so local
// development works without an account.
type MailjetNotifier struct {
	client    *mailjet.Client
	fromEmail string
	fromName  string
}

func NewMailjetNotifier() *MailjetNotifier {
	viper.SetDefault("mailjet.from_email", "hello@superfun.games")
	viper.SetDefault("mailjet.from_name", "Superfun Draw")

	apiKey := viper.GetString("mailjet.api_key")
	secretKey := viper.GetString("mailjet.secret_key")
	if apiKey == "" || secretKey == "" {
		log.Println("[MAIL] Mailjet credentials missing, email delivery disabled")
		return &MailjetNotifier{
			fromEmail: viper.GetString("mailjet.from_email"),
			fromName:  viper.GetString("mailjet.from_name"),
		}
	}

	return &MailjetNotifier{
		client:    mailjet.NewMailjetClient(apiKey, secretKey),
		fromEmail: viper.GetString("mailjet.from_email"),
		fromName:  viper.GetString("mailjet.from_name"),
	}
}

func (n *MailjetNotifier) Send(ctx context.Context, toEmail, subject, body string) error {
	if n.client == nil {
		return errors.New("email service not configured")
	}

	messages := mailjet.MessagesV31{
		Info: []mailjet.InfoMessagesV31{
			{
				From: &mailjet.RecipientV31{
					Email: n.fromEmail,
					Name:  n.fromName,
				},
				To: &mailjet.RecipientsV31{
					mailjet.RecipientV31{Email: toEmail},
				},
				Subject:  subject,
				TextPart: body,
			},
		},
	}

	if _, err := n.client.SendMailV31(&messages); err != nil {
		return fmt.Errorf("mailjet send failed: %w", err)
	}

	log.Printf("[MAIL] Sent %q to %s", subject, toEmail)
	return nil
}
