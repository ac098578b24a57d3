package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/resend/resend-go/v2"
	"github.com/templui/accounts/internal/model"
)

const defaultMailerTimeout = 10 * time.Second

type EmailService struct {
	client    *resend.Client
	fromEmail string
	isDev     bool
	appURL    string
	appName   string
	timeout   time.Duration
}

func NewEmailService(apiKey, fromEmail, appURL, appName string, isDev bool, timeout time.Duration) *EmailService {
	var client *resend.Client
	if apiKey != "" && !isDev {
		client = resend.NewClient(apiKey)
	}
	if timeout <= 0 {
		timeout = defaultMailerTimeout
	}

	return &EmailService{
		client:    client,
		fromEmail: fromEmail,
		isDev:     isDev,
		appURL:    strings.TrimRight(appURL, "/"),
		appName:   appName,
		timeout:   timeout,
	}
}

// ActivationURL is the link that consumes the user's activation key.
func (s *EmailService) ActivationURL(user *model.User) string {
	key := ""
	if user.ActivationKey != nil {
		key = *user.ActivationKey
	}
	q := url.Values{}
	q.Set("email", user.Email)
	q.Set("key", key)
	return s.appURL + "/auth/activate?" + q.Encode()
}

// SendVerification implements Mailer. Failures are logged and reported as false.
func (s *EmailService) SendVerification(ctx context.Context, user *model.User) bool {
	activateURL := s.ActivationURL(user)
	subject, body := verificationEmailTemplate(user.Nickname, activateURL, s.appName)

	err := s.send(ctx, "verification", user.Email, subject, body, "url", activateURL)
	if err != nil {
		slog.Error("failed to send verification email", "error", err, "user_id", user.ID, "email", user.Email)
		return false
	}
	return true
}

func (s *EmailService) SendAccountDeletedEmail(ctx context.Context, email, nickname string) error {
	subject, body := accountDeletedEmailTemplate(nickname, s.appName)
	return s.send(ctx, "account_deleted", email, subject, body)
}

func (s *EmailService) send(ctx context.Context, kind, to, subject, body string, attrs ...any) error {
	if s.isDev {
		args := append([]any{"type", kind, "to", to, "subject", subject}, attrs...)
		slog.Info("email sent (dev mode)", args...)
		return nil
	}

	if s.client == nil {
		return fmt.Errorf("email service not configured (missing RESEND_API_KEY)")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	params := &resend.SendEmailRequest{
		From:    s.fromEmail,
		To:      []string{to},
		Subject: subject,
		Text:    body,
	}

	_, err := s.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return err
	}
	slog.Info("email sent", "type", kind, "to", to)
	return nil
}
