// Package retry holds the bounded-retry policy shared by the template sync
// queue and the websocket client. Both consumers need the same contract: a
// capped exponential delay and a hard attempt limit, computed as pure data
// so callers schedule the waits themselves.
package retry

import (
	"time"
)

// Policy describes bounded retries with exponential delay.
type Policy struct {
	// Base is the delay before the first retry; retry n waits Base * 2^n.
	Base time.Duration
	// Max caps the computed delay. Zero means no cap.
	Max time.Duration
	// MaxRetries bounds retries after the initial attempt.
	MaxRetries int
}

// Delay returns how long to wait before retry number retries (0-based).
func (p Policy) Delay(retries int) time.Duration {
	if retries < 0 {
		retries = 0
	}
	d := p.Base
	for i := 0; i < retries; i++ {
		d *= 2
		if p.Max > 0 && d >= p.Max {
			return p.Max
		}
	}
	if p.Max > 0 && d > p.Max {
		return p.Max
	}
	return d
}

// Exhausted reports whether a retry counter has passed the limit.
func (p Policy) Exhausted(retries int) bool {
	return retries > p.MaxRetries
}
