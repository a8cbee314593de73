// Package syncqueue serializes template re-sync work. Syncs are cheap but
// must not stampede the document store, so a single drainer works through
// an in-memory deque: high priority items jump the line, failures come
// back after an exponential delay, and an item that keeps failing is
// dropped through the exhaustion hook.
package syncqueue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rbarbosa/peticionador/internal/retry"
)

// Reasons a template lands on the queue.
const (
	ReasonManual   = "manual"
	ReasonModified = "modified"
	ReasonWebhook  = "webhook"
)

// Priorities. High priority items are drained before normal ones.
const (
	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

// Item is one pending sync.
type Item struct {
	TemplateID string
	Reason     string
	Priority   string

	retries int
}

// Handler performs the actual sync for one item.
type Handler func(ctx context.Context, it Item) error

// Queue is the bounded-retry sync queue. A single drain loop runs at a
// time regardless of how many goroutines enqueue.
type Queue struct {
	handler Handler
	policy  retry.Policy
	logger  *slog.Logger

	// OnExhausted, when set, is called after an item has used up all its
	// attempts and is being dropped.
	OnExhausted func(it Item, err error)

	mu       sync.Mutex
	items    []Item
	draining bool
	closed   bool
}

// New builds a queue draining with handler under the given retry policy.
func New(handler Handler, policy retry.Policy, logger *slog.Logger) *Queue {
	return &Queue{handler: handler, policy: policy, logger: logger}
}

// Enqueue adds an item and starts the drainer if it is idle. High priority
// items go to the front of the line.
func (q *Queue) Enqueue(it Item) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.push(it)
	start := !q.draining
	if start {
		q.draining = true
	}
	q.mu.Unlock()

	if start {
		go q.drain()
	}
}

// Len reports pending items, not counting one being processed.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops accepting items. Already queued items still drain; delayed
// re-queues after Close are discarded.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}

// push assumes q.mu is held.
func (q *Queue) push(it Item) {
	if it.Priority == PriorityHigh {
		q.items = append([]Item{it}, q.items...)
		return
	}
	q.items = append(q.items, it)
}

func (q *Queue) drain() {
	for {
		q.mu.Lock()
		if len(q.items) == 0 {
			q.draining = false
			q.mu.Unlock()
			return
		}
		it := q.items[0]
		q.items = q.items[1:]
		q.mu.Unlock()

		err := q.handler(context.Background(), it)
		if err == nil {
			continue
		}

		it.retries++
		if q.policy.Exhausted(it.retries) {
			q.logger.Error("template sync gave up",
				"template_id", it.TemplateID, "reason", it.Reason, "attempts", it.retries, "error", err)
			if q.OnExhausted != nil {
				q.OnExhausted(it, err)
			}
			continue
		}

		delay := q.policy.Delay(it.retries - 1)
		q.logger.Warn("template sync failed, will retry",
			"template_id", it.TemplateID, "attempt", it.retries, "delay", delay, "error", err)
		q.requeueAfter(it, delay)
	}
}

func (q *Queue) requeueAfter(it Item, delay time.Duration) {
	time.AfterFunc(delay, func() {
		q.Enqueue(it)
	})
}
