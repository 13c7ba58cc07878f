package mailer

import (
	"context"

	"golang.org/x/time/rate"
)

// Throttled wraps a Sender with a client-side rate limit so bursts of
// deliveries stay under the provider's API limits.
type Throttled struct {
	next    Sender
	limiter *rate.Limiter
}

// NewThrottled creates a rate-limited sender allowing perSecond sends with
// the given burst. A non-positive rate disables throttling.
func NewThrottled(next Sender, perSecond float64, burst int) *Throttled {
	if perSecond <= 0 {
		return &Throttled{next: next}
	}
	if burst < 1 {
		burst = 1
	}
	return &Throttled{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// Send waits for limiter capacity, then delegates to the wrapped sender.
// The wait respects context cancellation.
func (t *Throttled) Send(ctx context.Context, email *Email) (string, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}
	return t.next.Send(ctx, email)
}
