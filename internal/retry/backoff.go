// Package retry computes wait times between fetch attempts.
//
// The policy is full jitter: a uniformly random delay in
// [0, min(cap, base*2^attempt)]. A Retry-After header from the server
// overrides the formula entirely, still bounded by the same cap.
package retry

import (
	"crypto/rand"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Policy holds the backoff tunables.
type Policy struct {
	base time.Duration
	cap  time.Duration
}

// New builds a Policy with sane fallbacks.
func New(base, maxDelay time.Duration) *Policy {
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	if maxDelay < base {
		maxDelay = 30 * time.Second
	}
	return &Policy{base: base, cap: maxDelay}
}

// Cap returns the configured ceiling.
func (p *Policy) Cap() time.Duration { return p.cap }

// Backoff returns the jittered wait before attempt (1-based retry count).
func (p *Policy) Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	ceiling := p.cap
	// Shift instead of Pow; beyond 62 doublings the cap always wins.
	if attempt < 62 {
		if exp := p.base << uint(attempt); exp < ceiling {
			ceiling = exp
		}
	}
	return randomBelow(ceiling)
}

// Delay resolves the wait for one retry: the server's Retry-After hint when
// present and parseable, the jittered formula otherwise.
func (p *Policy) Delay(attempt int, retryAfter string, now time.Time) time.Duration {
	if d, ok := ParseRetryAfter(retryAfter, now); ok {
		if d > p.cap {
			return p.cap
		}
		return d
	}
	return p.Backoff(attempt)
}

// Jitter returns a uniformly random duration in [0, limit].
func Jitter(limit time.Duration) time.Duration {
	return randomBelow(limit)
}

// ParseRetryAfter interprets a Retry-After value as integer seconds or an
// HTTP date. Dates in the past yield zero, never a negative wait.
func ParseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0, true
		}
		return time.Duration(secs) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		d := when.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

func randomBelow(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
