package ws

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rbarbosa/peticionador/internal/model"
	"github.com/rbarbosa/peticionador/internal/notify"
)

func TestClientStopsOnContextCancel(t *testing.T) {
	hub := NewHub(quietLogger())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := NewClient(wsURL(srv), 10*time.Millisecond, quietLogger())
	defer client.Close()

	received := make(chan notify.Event, 1)
	runDone := make(chan error, 1)
	go func() {
		runDone <- client.Run(ctx, func(ev notify.Event) {
			received <- ev
			// A watcher cancels as soon as it sees a terminal event; Run
			// must come back even though the connection stays open and idle.
			cancel()
		})
	}()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never connected")
		}
		time.Sleep(5 * time.Millisecond)
	}
	hub.Broadcast(notify.Event{
		Type:   notify.TypeTaskCompleted,
		TaskID: "task-1",
		Status: model.TaskSuccess,
	})

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("event never delivered")
	}
	select {
	case err := <-runDone:
		if err != nil {
			t.Fatalf("Run returned %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run still blocked after context cancellation")
	}
}

func TestClientStopsOnClose(t *testing.T) {
	hub := NewHub(quietLogger())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	client := NewClient(wsURL(srv), 10*time.Millisecond, quietLogger())
	runDone := make(chan error, 1)
	go func() {
		runDone <- client.Run(context.Background(), func(notify.Event) {})
	}()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never connected")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	select {
	case err := <-runDone:
		if err != nil {
			t.Fatalf("Run returned %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run must not reconnect after a deliberate Close")
	}
}
