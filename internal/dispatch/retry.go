package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/disasterwatch/alert-engine/internal/gateway"
	"github.com/disasterwatch/alert-engine/internal/models"
)

// SendWithRetry delivers a single logical message inline, retrying with
// exponential backoff (baseDelay doubling per attempt). This is the
// coordinator-level retry path, distinct from the dispatcher's round
// mechanism; invalid recipients are permanent and never retried.
func SendWithRetry(ctx context.Context, gw gateway.Gateway, address, subject, body string, maxAttempts int, baseDelay time.Duration) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	op := func() error {
		err := gw.Send(ctx, address, subject, body)
		if err == nil {
			return nil
		}
		var se *gateway.SendError
		if errors.As(err, &se) && !se.Retryable() {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = baseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0

	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, uint64(maxAttempts-1)), ctx))
}

// retryingGateway wraps a gateway so every Send is retried inline before
// the round mechanism sees the failure.
type retryingGateway struct {
	inner       gateway.Gateway
	maxAttempts int
	baseDelay   time.Duration
}

// WithRetry decorates gw with inline exponential-backoff retries.
func WithRetry(gw gateway.Gateway, maxAttempts int, baseDelay time.Duration) gateway.Gateway {
	return &retryingGateway{inner: gw, maxAttempts: maxAttempts, baseDelay: baseDelay}
}

func (g *retryingGateway) Channel() models.Channel { return g.inner.Channel() }

func (g *retryingGateway) Send(ctx context.Context, address, subject, body string) error {
	return SendWithRetry(ctx, g.inner, address, subject, body, g.maxAttempts, g.baseDelay)
}
