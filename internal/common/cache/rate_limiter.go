package cache

import (
	"context"
	"time"

	pkgerrors "codejudge/pkg/errors"
)

const defaultLimiterTimeout = 200 * time.Millisecond

// FixedWindowLimiter counts hits per key in fixed windows.
type FixedWindowLimiter struct {
	counter CounterOps
	timeout time.Duration
}

// NewFixedWindowLimiter creates a limiter. timeout bounds each counter round trip.
func NewFixedWindowLimiter(counter CounterOps, timeout time.Duration) *FixedWindowLimiter {
	if timeout <= 0 {
		timeout = defaultLimiterTimeout
	}
	return &FixedWindowLimiter{counter: counter, timeout: timeout}
}

// Allow records one hit for key and fails with TooManyRequests once more than
// max hits land in the current window. A max of 0 disables the check.
func (l *FixedWindowLimiter) Allow(ctx context.Context, key string, max int, window time.Duration) error {
	if l.counter == nil {
		return pkgerrors.New(pkgerrors.ServiceUnavailable).WithMessage("rate limit cache is unavailable")
	}
	if max <= 0 || window <= 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	acquired, err := l.counter.SetNX(ctx, key, 1, window)
	if err != nil {
		return pkgerrors.Wrapf(err, pkgerrors.CacheError, "rate limit check failed")
	}
	count := int64(1)
	if !acquired {
		count, err = l.counter.Incr(ctx, key)
		if err != nil {
			return pkgerrors.Wrapf(err, pkgerrors.CacheError, "rate limit check failed")
		}
		// A key without expiry would count forever.
		if ttl, ttlErr := l.counter.TTL(ctx, key); ttlErr == nil && ttl <= 0 {
			_ = l.counter.Expire(ctx, key, window)
		}
	}
	if count > int64(max) {
		return pkgerrors.Newf(pkgerrors.TooManyRequests, "rate limit exceeded for %s", key)
	}
	return nil
}
