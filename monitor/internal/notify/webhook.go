package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// WebhookPayload is the JSON body POSTed by Webhook.
type WebhookPayload struct {
	Type      string   `json:"type"` // always "pricing_change"
	Recipient string   `json:"recipient"`
	URL       string   `json:"url"`
	Changes   []string `json:"changes"`
	Subject   string   `json:"subject"`
	Body      string   `json:"body"`
	SentAt    int64    `json:"sent_at"`
}

// Webhook POSTs each alert as JSON to a fixed URL. One attempt per Send.
type Webhook struct {
	url    string
	client *http.Client
	logger *slog.Logger
	now    func() time.Time
}

var _ Notifier = (*Webhook)(nil)

// WebhookOption configures a Webhook notifier.
type WebhookOption func(*Webhook)

// WithWebhookClient sets a custom HTTP client.
func WithWebhookClient(c *http.Client) WebhookOption {
	return func(w *Webhook) { w.client = c }
}

// WithWebhookLogger sets a custom logger.
func WithWebhookLogger(l *slog.Logger) WebhookOption {
	return func(w *Webhook) { w.logger = l }
}

// NewWebhook creates a Webhook notifier targeting url.
func NewWebhook(url string, opts ...WebhookOption) *Webhook {
	w := &Webhook{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

func (w *Webhook) Send(ctx context.Context, recipient, url string, changes []string) error {
	if err := checkChanges("webhook", recipient, changes); err != nil {
		return err
	}
	msg := Compose(url, changes)
	body, err := json.Marshal(WebhookPayload{
		Type:      "pricing_change",
		Recipient: recipient,
		URL:       url,
		Changes:   changes,
		Subject:   msg.Subject,
		Body:      msg.Body,
		SentAt:    w.now().UnixMilli(),
	})
	if err != nil {
		return &DeliveryError{Provider: "webhook", Recipient: recipient, Err: fmt.Errorf("marshal: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return &DeliveryError{Provider: "webhook", Recipient: recipient, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		w.logger.Warn("notify: webhook request failed", "url", url, "error", err)
		return &DeliveryError{Provider: "webhook", Recipient: recipient, Err: err}
	}
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		w.logger.Warn("notify: webhook bad status", "url", url, "status", resp.StatusCode)
		return &DeliveryError{
			Provider:  "webhook",
			Recipient: recipient,
			Status:    resp.StatusCode,
			Err:       fmt.Errorf("unexpected status"),
		}
	}
	return nil
}
