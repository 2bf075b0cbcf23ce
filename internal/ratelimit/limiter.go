// Package ratelimit implements the fixed-window per-origin attempt limiter
// that fronts every login-class request.
package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gatekeep-io/gatekeep/internal/cache"
)

// ErrRateLimited is returned when an origin has exhausted its attempt window.
var ErrRateLimited = errors.New("too many attempts, try again later")

// Limiter counts attempts per origin in a shared expiring store. The counter
// is best-effort: a store outage is logged and the attempt allowed rather
// than locking every origin out, but an attempt is never dropped silently.
type Limiter struct {
	store    cache.Store
	prefix   string
	attempts int64
	window   time.Duration
}

// New creates a Limiter allowing `attempts` per `window` for each origin.
// The prefix namespaces keys so multiple limiters can share one store.
func New(store cache.Store, prefix string, attempts int, window time.Duration) *Limiter {
	if attempts <= 0 {
		attempts = 5
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		store:    store,
		prefix:   prefix,
		attempts: int64(attempts),
		window:   window,
	}
}

// Attempt records one attempt for origin and reports whether it is allowed.
// A blocked origin has its window expiry refreshed, so continued abuse
// extends the block rather than waiting it out.
func (l *Limiter) Attempt(ctx context.Context, origin string) error {
	key := l.key(origin)

	count, err := l.store.Increment(ctx, key, l.window)
	if err != nil {
		log.Error().Err(err).Str("origin", origin).Msg("Rate limit store unavailable, allowing attempt")
		return nil
	}

	if count > l.attempts {
		if err := l.store.Expire(ctx, key, l.window); err != nil {
			log.Warn().Err(err).Str("origin", origin).Msg("Failed to refresh rate limit window")
		}
		return ErrRateLimited
	}
	return nil
}

// Reset clears the attempt counter for origin, called after a fully
// successful authentication.
func (l *Limiter) Reset(ctx context.Context, origin string) error {
	return l.store.Forget(ctx, l.key(origin))
}

func (l *Limiter) key(origin string) string {
	return l.prefix + ":" + origin
}
