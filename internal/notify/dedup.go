package notify

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Deduper suppresses repeated user-facing notifications for the same
// (kind, context) pair inside a short window, so a flapping dependency
// does not turn into notification spam.
type Deduper struct {
	seen *expirable.LRU[string, struct{}]
}

// NewDeduper creates a deduper; window is how long a pair stays muted.
func NewDeduper(size int, window time.Duration) *Deduper {
	if size <= 0 {
		size = 128
	}
	return &Deduper{seen: expirable.NewLRU[string, struct{}](size, nil, window)}
}

// Allow reports whether this notification should go out, and records it.
func (d *Deduper) Allow(kind, context string) bool {
	key := kind + "|" + context
	if _, ok := d.seen.Get(key); ok {
		return false
	}
	d.seen.Add(key, struct{}{})
	return true
}
