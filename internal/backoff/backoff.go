// Package backoff computes reconnect delays for the stream connection manager.
package backoff

import (
	"time"

	jpillora "github.com/jpillora/backoff"
)

// Policy produces exponential reconnect delays with an upper bound. The
// zero attempt yields the base delay; each later attempt doubles it until
// the cap is reached.
type Policy struct {
	policy *jpillora.Backoff
}

// NewPolicy creates a Policy that starts at base, doubles per attempt, and
// never exceeds maxDelay. When jitter is enabled each delay is drawn
// uniformly between base and the computed value.
func NewPolicy(base, maxDelay time.Duration, jitter bool) *Policy {
	return &Policy{
		policy: &jpillora.Backoff{
			Min:    base,
			Max:    maxDelay,
			Factor: 2,
			Jitter: jitter,
		},
	}
}

// Delay returns the wait before the given zero-based reconnect attempt.
// Attempt values past the cap threshold all return the cap, including
// values large enough to overflow a duration.
func (p *Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	return p.policy.ForAttempt(float64(attempt))
}
