package notify

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
)

type stdoutLine struct {
	Recipient string `json:"recipient"`
	URL       string `json:"url"`
	Message
}

// Stdout writes each alert as one JSON line. Used when no mail provider is
// configured.
type Stdout struct {
	mu  sync.Mutex
	enc *json.Encoder
}

var _ Notifier = (*Stdout)(nil)

// NewStdout creates a Stdout notifier. If w is nil, os.Stdout is used.
func NewStdout(w io.Writer) *Stdout {
	if w == nil {
		w = os.Stdout
	}
	return &Stdout{enc: json.NewEncoder(w)}
}

func (s *Stdout) Send(_ context.Context, recipient, url string, changes []string) error {
	if err := checkChanges("stdout", recipient, changes); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(stdoutLine{Recipient: recipient, URL: url, Message: Compose(url, changes)}); err != nil {
		return &DeliveryError{Provider: "stdout", Recipient: recipient, Err: err}
	}
	return nil
}
