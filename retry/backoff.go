// Package retry provides exponential backoff for consumers whose pull or
// acknowledge calls fail against an unavailable broker.
package retry

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Strategy defines how long a consumer waits after consecutive failures.
//
// The schedule follows: delay = min(BaseDelay * ExponentialBase^attempt, MaxDelay)
//
// Example with defaults (1s base, 2.0 exponential, 1m max):
//
//	Attempt 1: 2s
//	Attempt 2: 4s
//	Attempt 3: 8s
//	...
//	Attempt 6: 1m (capped)
type Strategy struct {
	MaxAttempts     int           // Consecutive failures tolerated; 0 means unlimited
	BaseDelay       time.Duration // Delay after the first failure
	MaxDelay        time.Duration // Cap on any single delay
	ExponentialBase float64       // Backoff multiplier (e.g., 2.0 for doubling)
}

// DefaultStrategy returns the backoff used by the subscriber binary.
// Configuration: unlimited attempts, 1s→1m exponential backoff.
func DefaultStrategy() Strategy {
	return Strategy{
		MaxAttempts:     0,
		BaseDelay:       time.Second,
		MaxDelay:        time.Minute,
		ExponentialBase: 2.0,
	}
}

// CalculateRetryDelay calculates the delay for a given attempt number.
// Attempt numbers <= 0 return BaseDelay.
func (s Strategy) CalculateRetryDelay(attemptNumber int) time.Duration {
	if attemptNumber <= 0 {
		return s.BaseDelay
	}

	delay := float64(s.BaseDelay) * math.Pow(s.ExponentialBase, float64(attemptNumber))

	// Also guards against overflow for large attempt numbers.
	if delay > float64(s.MaxDelay) || math.IsInf(delay, 0) {
		return s.MaxDelay
	}

	return time.Duration(delay)
}

// IsRetryable reports whether another attempt is allowed after attemptCount
// consecutive failures.
func (s Strategy) IsRetryable(attemptCount int) bool {
	if s.MaxAttempts <= 0 {
		return true
	}
	return attemptCount < s.MaxAttempts
}

// GetRetrySchedule returns a human-readable description of the first
// attempts of the schedule. Unlimited strategies print until the cap is hit.
func (s Strategy) GetRetrySchedule() string {
	var b strings.Builder
	b.WriteString("Retry Schedule:\n")

	limit := s.MaxAttempts
	if limit <= 0 {
		limit = 32
	}
	for i := 1; i <= limit; i++ {
		delay := s.CalculateRetryDelay(i)
		fmt.Fprintf(&b, "  Attempt %d: after %v\n", i, delay)
		if s.MaxAttempts <= 0 && delay >= s.MaxDelay {
			b.WriteString("  ... then every " + s.MaxDelay.String() + "\n")
			break
		}
	}
	if s.MaxAttempts > 0 {
		b.WriteString("  → Give up\n")
	}
	return b.String()
}
