// Package notify delivers change alerts. Every Notifier makes at most one
// delivery attempt per Send and reports failure as *DeliveryError; the
// caller decides whether to advance the baseline.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	Subject   = "Pricing update detected"
	Signature = "— pricewatch"
	header    = "We detected pricing/plan changes on: "
)

// ErrNoChanges is returned when Send is called with an empty change list.
var ErrNoChanges = errors.New("notify: no change lines")

// Notifier delivers one alert about url to recipient.
type Notifier interface {
	Send(ctx context.Context, recipient, url string, changes []string) error
}

// Message is a composed plain-text alert.
type Message struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Compose builds the alert: header naming url, blank line, the change
// lines, blank line, signature. The output depends only on its inputs.
func Compose(url string, changes []string) Message {
	lines := make([]string, 0, len(changes)+4)
	lines = append(lines, header+url, "")
	lines = append(lines, changes...)
	lines = append(lines, "", Signature)
	return Message{Subject: Subject, Body: strings.Join(lines, "\n")}
}

// DeliveryError reports a rejected or failed delivery.
type DeliveryError struct {
	Provider  string
	Recipient string
	Status    int // provider status code, 0 when the request never completed
	Err       error
}

func (e *DeliveryError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("notify: %s delivery to %s failed (status %d): %v", e.Provider, e.Recipient, e.Status, e.Err)
	}
	return fmt.Sprintf("notify: %s delivery to %s failed: %v", e.Provider, e.Recipient, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

func checkChanges(provider, recipient string, changes []string) error {
	if len(changes) == 0 {
		return &DeliveryError{Provider: provider, Recipient: recipient, Err: ErrNoChanges}
	}
	return nil
}
