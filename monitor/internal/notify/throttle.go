package notify

import (
	"context"

	"golang.org/x/time/rate"
)

// Throttled wraps a Notifier with a token-bucket limiter.
type Throttled struct {
	next    Notifier
	limiter *rate.Limiter
}

var _ Notifier = (*Throttled)(nil)

// Throttle limits next to perSecond sends with bursts of burst. A
// non-positive perSecond returns next unchanged.
func Throttle(next Notifier, perSecond float64, burst int) Notifier {
	if perSecond <= 0 {
		return next
	}
	if burst < 1 {
		burst = 1
	}
	return &Throttled{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Send waits for a token, then delegates. A wait cut short by ctx is a
// DeliveryError and nothing is sent.
func (t *Throttled) Send(ctx context.Context, recipient, url string, changes []string) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return &DeliveryError{Provider: "throttle", Recipient: recipient, Err: err}
	}
	return t.next.Send(ctx, recipient, url, changes)
}
