// Package gateway holds the outbound delivery channels. Each gateway
// classifies failures so the dispatcher can decide what to retry: invalid
// addresses are permanent, transient outages and timeouts are not.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/disasterwatch/alert-engine/internal/models"
)

// Kind classifies a delivery failure.
type Kind string

const (
	KindInvalidRecipient Kind = "INVALID_RECIPIENT"
	KindUnavailable      Kind = "SERVICE_UNAVAILABLE"
	KindTimeout          Kind = "TIMEOUT"
)

// SendError is a classified delivery failure.
type SendError struct {
	Kind Kind
	Err  error
}

func (e *SendError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// Retryable reports whether a later attempt could succeed. Invalid
// recipients never become valid by retrying.
func (e *SendError) Retryable() bool {
	return e.Kind != KindInvalidRecipient
}

// Classify extracts the failure kind from an error. Unclassified errors
// count as transient unavailability so the dispatcher errs toward retrying.
func Classify(err error) Kind {
	var se *SendError
	if errors.As(err, &se) {
		return se.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindUnavailable
}

// Gateway delivers one message to one address. Implementations own address
// validation for their channel.
type Gateway interface {
	Channel() models.Channel
	Send(ctx context.Context, address, subject, body string) error
}
