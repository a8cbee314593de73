package syncqueue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rbarbosa/peticionador/internal/retry"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestQueueRetriesThenGivesUp(t *testing.T) {
	var attempts atomic.Int32
	handler := func(ctx context.Context, it Item) error {
		attempts.Add(1)
		return errors.New("drive unreachable")
	}
	policy := retry.Policy{Base: time.Millisecond, Max: 4 * time.Millisecond, MaxRetries: 3}
	q := New(handler, policy, quietLogger())

	exhausted := make(chan Item, 1)
	q.OnExhausted = func(it Item, err error) { exhausted <- it }

	q.Enqueue(Item{TemplateID: "tpl-1", Reason: ReasonManual, Priority: PriorityNormal})

	select {
	case it := <-exhausted:
		if it.TemplateID != "tpl-1" {
			t.Fatalf("exhausted wrong item: %+v", it)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("item never exhausted")
	}
	if got := attempts.Load(); got != 4 {
		t.Fatalf("expected 4 attempts (1 initial + 3 retries), got %d", got)
	}
}

func TestQueueRecoversMidway(t *testing.T) {
	var attempts atomic.Int32
	done := make(chan struct{})
	handler := func(ctx context.Context, it Item) error {
		if attempts.Add(1) < 3 {
			return errors.New("transient")
		}
		close(done)
		return nil
	}
	policy := retry.Policy{Base: time.Millisecond, Max: 4 * time.Millisecond, MaxRetries: 5}
	q := New(handler, policy, quietLogger())
	q.OnExhausted = func(it Item, err error) { t.Error("must not exhaust a recovering item") }

	q.Enqueue(Item{TemplateID: "tpl-1", Reason: ReasonModified})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("item never succeeded")
	}
}

func TestQueueHighPriorityJumpsLine(t *testing.T) {
	var mu sync.Mutex
	var order []string
	release := make(chan struct{})
	first := true
	handler := func(ctx context.Context, it Item) error {
		if first {
			first = false
			// Hold the drainer so the rest of the queue builds up.
			<-release
		}
		mu.Lock()
		order = append(order, it.TemplateID)
		mu.Unlock()
		return nil
	}
	q := New(handler, retry.Policy{Base: time.Millisecond, Max: time.Millisecond, MaxRetries: 0}, quietLogger())

	q.Enqueue(Item{TemplateID: "blocker"})
	time.Sleep(20 * time.Millisecond)
	q.Enqueue(Item{TemplateID: "normal-1"})
	q.Enqueue(Item{TemplateID: "normal-2"})
	q.Enqueue(Item{TemplateID: "urgent", Priority: PriorityHigh})
	close(release)

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(order)
		mu.Unlock()
		if n == 4 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("queue never drained, processed %d", n)
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if order[1] != "urgent" {
		t.Fatalf("high priority item did not jump the line: %v", order)
	}
}

func TestQueueSingleDrainer(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	var processed atomic.Int32
	handler := func(ctx context.Context, it Item) error {
		cur := inFlight.Add(1)
		for {
			max := maxInFlight.Load()
			if cur <= max || maxInFlight.CompareAndSwap(max, cur) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		inFlight.Add(-1)
		processed.Add(1)
		return nil
	}
	q := New(handler, retry.Policy{Base: time.Millisecond, Max: time.Millisecond, MaxRetries: 0}, quietLogger())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				q.Enqueue(Item{TemplateID: "tpl", Reason: ReasonWebhook})
			}
		}()
	}
	wg.Wait()

	deadline := time.Now().Add(2 * time.Second)
	for processed.Load() < 40 {
		if time.Now().After(deadline) {
			t.Fatalf("only %d of 40 items processed", processed.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}
	if maxInFlight.Load() != 1 {
		t.Fatalf("expected a single drainer, saw %d concurrent", maxInFlight.Load())
	}
}
