// internal/notifications/email.go

package notifications

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

type sendgridSender struct {
	client *sendgrid.Client
	from   string
}

// NewSendGridSender creates an email channel backed by SendGrid
func NewSendGridSender(apiKey, from string) EmailSender {
	return &sendgridSender{
		client: sendgrid.NewSendClient(apiKey),
		from:   from,
	}
}

func (s *sendgridSender) Send(ctx context.Context, to, subject, body string) error {
	message := mail.NewSingleEmail(
		mail.NewEmail("Linkup", s.from),
		subject,
		mail.NewEmail("", to),
		body,
		fmt.Sprintf("<p>%s</p>", body),
	)

	resp, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid send failed: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid returned status %d", resp.StatusCode)
	}
	return nil
}
