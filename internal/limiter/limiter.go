// Package limiter defines interfaces and implementations for message send throttling.
package limiter

import (
	"context"
	"time"
)

// Limiter admits at most a fixed number of actions per key and window.
type Limiter interface {
	// Allow records one attempt for key and reports whether it is admitted.
	// When it is not, the duration tells how long until the window resets.
	Allow(ctx context.Context, key string) (bool, time.Duration, error)
}
