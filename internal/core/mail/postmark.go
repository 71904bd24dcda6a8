// Package mail provides domain.Mailer implementations.
package mail

import (
	"context"
	"errors"
	"fmt"

	"github.com/mrz1836/postmark"
)

var (
	ErrSendFailed    = errors.New("mail: send failed")
	ErrInvalidConfig = errors.New("mail: invalid config")
)

// postmarkAPI is the subset of *postmark.Client used here.
type postmarkAPI interface {
	SendEmail(ctx context.Context, email postmark.Email) (postmark.EmailResponse, error)
}

// PostmarkMailer sends plain-text mail through Postmark's transactional API.
type PostmarkMailer struct {
	client postmarkAPI
	from   string
	tag    string
}

// NewPostmarkMailer creates a Postmark-backed mailer. Both tokens and the
// sender address are required.
func NewPostmarkMailer(serverToken, accountToken, from string) (*PostmarkMailer, error) {
	if serverToken == "" || accountToken == "" {
		return nil, fmt.Errorf("%w: postmark tokens are required", ErrInvalidConfig)
	}
	if from == "" {
		return nil, fmt.Errorf("%w: sender address is required", ErrInvalidConfig)
	}
	return &PostmarkMailer{
		client: postmark.NewClient(serverToken, accountToken),
		from:   from,
		tag:    "register-link",
	}, nil
}

// Send implements domain.Mailer.
func (m *PostmarkMailer) Send(ctx context.Context, to, subject, body string) error {
	resp, err := m.client.SendEmail(ctx, postmark.Email{
		From:     m.from,
		To:       to,
		Subject:  subject,
		Tag:      m.tag,
		TextBody: body,
	})
	if err != nil {
		return errors.Join(ErrSendFailed, err)
	}
	if resp.ErrorCode > 0 {
		return errors.Join(
			ErrSendFailed,
			fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message),
		)
	}
	return nil
}
