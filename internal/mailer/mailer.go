package mailer

import (
	"context"
	"log"
)

// Mailer delivers the welcome mail for newly provisioned employee accounts.
// Delivery is best effort; callers log and move on when it fails.
type Mailer interface {
	SendWelcome(ctx context.Context, to string, shopName string, username string, password string) error
}

// LogMailer writes the mail to the process log instead of sending it. It is
// the default when no delivery backend is configured.
type LogMailer struct{}

func NewLogMailer() LogMailer {
	return LogMailer{}
}

func (LogMailer) SendWelcome(_ context.Context, to string, shopName string, username string, _ string) error {
	log.Printf("[mailer] welcome mail for %s (shop %s, account %s) suppressed: no delivery backend configured", to, shopName, username)
	return nil
}
