// Package ratelimit throttles the Acceptor's accept-failure log lines so
// sustained file-descriptor exhaustion doesn't flood the log with an
// identical line per readiness event. It wraps github.com/joeycumines/
// go-catrate, a multi-window per-category event-rate limiter.
package ratelimit

import (
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-catrate"
)

// AcceptErrorLimiter decides whether an accept failure should be logged
// immediately or folded into a periodic "N suppressed" summary. Errors
// are bucketed by category (typically the errno name, e.g. "EMFILE") so
// a burst of one kind of failure doesn't suppress logging of another.
type AcceptErrorLimiter struct {
	limiter    *catrate.Limiter
	suppressed atomic.Int64
}

// NewAcceptErrorLimiter constructs a limiter allowing at most one log
// line per category per second, and at most ten per category per ten
// seconds, matching the short-burst-then-throttle shape accept-failure
// storms actually take.
func NewAcceptErrorLimiter() *AcceptErrorLimiter {
	return &AcceptErrorLimiter{
		limiter: catrate.NewLimiter(map[time.Duration]int{
			time.Second:     1,
			10 * time.Second: 10,
		}),
	}
}

// Allow reports whether an accept failure in category should be logged
// now. When it returns false the caller should skip logging and rely on
// Suppressed/Flush to eventually report how many were swallowed.
func (l *AcceptErrorLimiter) Allow(category string) bool {
	_, ok := l.limiter.Allow(category)
	if !ok {
		l.suppressed.Add(1)
	}
	return ok
}

// Flush returns the number of suppressed accept-failure log lines since
// the last call to Flush and resets the counter. Callers typically log
// a single summary line with this count on a periodic tick or just
// before logging the next allowed failure.
func (l *AcceptErrorLimiter) Flush() int64 {
	return l.suppressed.Swap(0)
}
