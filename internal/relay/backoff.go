package relay

import (
	"math/rand/v2"
	"time"
)

// BackoffConfig shapes the delay between reconnect attempts.
type BackoffConfig struct {
	Base time.Duration // first retry delay
	Max  time.Duration // ceiling for the exponential growth
}

// DefaultBackoff returns the reconnect defaults: 4s doubling up to 64s.
func DefaultBackoff() BackoffConfig {
	return BackoffConfig{
		Base: 4 * time.Second,
		Max:  64 * time.Second,
	}
}

// delay computes min(base * 2^attempt, max) + jitter(±25%). The jitter
// keeps a fleet of devices from reconnecting in lockstep after a relay
// restart.
func (b BackoffConfig) delay(attempt int) time.Duration {
	if attempt > 31 {
		attempt = 31
	}
	delay := b.Base << uint(attempt)
	if delay <= 0 || delay > b.Max {
		delay = b.Max
	}

	quarter := delay / 4
	if quarter > 0 {
		jitter := time.Duration(rand.Int64N(int64(quarter*2))) - quarter
		delay += jitter
	}

	return delay
}
