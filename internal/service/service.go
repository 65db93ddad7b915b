// Package service contains the application services of the offer marketplace:
// offer lifecycle, conversation registry, messaging and products.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/and161185/offer-chat/internal/errs"
	"github.com/and161185/offer-chat/internal/model"
)

// Fanout pushes persisted messages to live subscribers of their conversation.
// Delivery is best effort; an error never invalidates the stored message.
type Fanout interface {
	PublishMessage(ctx context.Context, m model.Message) error
}

type nopFanout struct{}

func (nopFanout) PublishMessage(context.Context, model.Message) error { return nil }

// RateLimitError is returned when a sender exceeds the send quota.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: retry after %s", errs.ErrRateLimited, e.RetryAfter)
}

// Unwrap makes errors.Is(err, errs.ErrRateLimited) hold.
func (e *RateLimitError) Unwrap() error { return errs.ErrRateLimited }

func validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errs.ErrValidation, fmt.Sprintf(format, args...))
}

func requireActor(u model.User) error {
	if u.ID == "" {
		return errs.ErrUnauthorized
	}
	return nil
}
