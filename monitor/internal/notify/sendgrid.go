package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

const sendPath = "/v3/mail/send"

// SendGridConfig configures the SendGrid notifier.
type SendGridConfig struct {
	APIKey   string
	From     string // verified sender address
	FromName string
	// Host overrides the API base URL. Default: https://api.sendgrid.com.
	Host    string
	Timeout time.Duration // default 15s
	Logger  *slog.Logger
}

// SendGrid sends plain-text transactional mail through the v3 API with
// click, open and subscription tracking off and sandbox mode off.
type SendGrid struct {
	cfg    SendGridConfig
	client *rest.Client
}

var _ Notifier = (*SendGrid)(nil)

// NewSendGrid creates a SendGrid notifier.
func NewSendGrid(cfg SendGridConfig) (*SendGrid, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("notify: sendgrid: API key is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("notify: sendgrid: from address is required")
	}
	if cfg.Host == "" {
		cfg.Host = "https://api.sendgrid.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &SendGrid{
		cfg:    cfg,
		client: &rest.Client{HTTPClient: &http.Client{Timeout: cfg.Timeout}},
	}, nil
}

// Send delivers exactly one message or returns *DeliveryError.
func (s *SendGrid) Send(ctx context.Context, recipient, url string, changes []string) error {
	if err := checkChanges("sendgrid", recipient, changes); err != nil {
		return err
	}
	msg := Compose(url, changes)

	req := sendgrid.GetRequest(s.cfg.APIKey, sendPath, s.cfg.Host)
	req.Method = rest.Post
	req.Body = mail.GetRequestBody(s.message(recipient, msg))

	resp, err := s.client.SendWithContext(ctx, req)
	if err != nil {
		return &DeliveryError{Provider: "sendgrid", Recipient: recipient, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &DeliveryError{
			Provider:  "sendgrid",
			Recipient: recipient,
			Status:    resp.StatusCode,
			Err:       fmt.Errorf("%s", truncate(resp.Body, 512)),
		}
	}
	s.cfg.Logger.Debug("notify: sendgrid accepted", "url", url, "status", resp.StatusCode)
	return nil
}

func (s *SendGrid) message(recipient string, msg Message) *mail.SGMailV3 {
	from := mail.NewEmail(s.cfg.FromName, s.cfg.From)
	to := mail.NewEmail("", recipient)
	m := mail.NewSingleEmail(from, msg.Subject, to, msg.Body, "")

	tracking := mail.NewTrackingSettings().
		SetClickTracking(mail.NewClickTrackingSetting().SetEnable(false).SetEnableText(false)).
		SetOpenTracking(mail.NewOpenTrackingSetting().SetEnable(false)).
		SetSubscriptionTracking(mail.NewSubscriptionTrackingSetting().SetEnable(false))
	settings := mail.NewMailSettings().SetSandboxMode(mail.NewSetting(false))

	m.SetTrackingSettings(tracking)
	m.SetMailSettings(settings)
	return m
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
