// Package notify relays task events from the worker process to the API
// server over Redis pub/sub, where the websocket hub fans them out. The
// relay is best-effort: polling the status endpoint stays authoritative,
// losing an event never loses state.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/rbarbosa/peticionador/internal/model"
)

// eventChannel is the Redis channel both processes agree on.
const eventChannel = "peticionador:events"

// Event types pushed to websocket clients.
const (
	TypeProgress         = "progress_update"
	TypeTaskCompleted    = "task_completed"
	TypeTaskFailed       = "task_failed"
	TypeTemplateUpdated  = "template_updated"
	TypeDocumentModified = "document_modified"
)

// Event is one push notification.
type Event struct {
	Type       string           `json:"type"`
	TaskID     string           `json:"task_id,omitempty"`
	TemplateID string           `json:"template_id,omitempty"`
	Status     model.TaskStatus `json:"status,omitempty"`
	Progress   int              `json:"progress,omitempty"`
	Message    string           `json:"message,omitempty"`
}

// Publisher emits events from the worker side.
type Publisher struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// NewPublisher constructs a publisher on an existing Redis client.
func NewPublisher(rdb *redis.Client, logger *slog.Logger) *Publisher {
	return &Publisher{rdb: rdb, logger: logger}
}

// Publish sends one event. Failures are logged and swallowed; progress
// pushes must never fail a generation job.
func (p *Publisher) Publish(ctx context.Context, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error("encode event", "error", err, "type", ev.Type)
		return
	}
	if err := p.rdb.Publish(ctx, eventChannel, data).Err(); err != nil {
		p.logger.Warn("publish event", "error", err, "type", ev.Type, "task_id", ev.TaskID)
	}
}

// Progress is shorthand for the most frequent event.
func (p *Publisher) Progress(ctx context.Context, taskID string, progress int, message string) {
	p.Publish(ctx, Event{
		Type:     TypeProgress,
		TaskID:   taskID,
		Status:   model.TaskProcessing,
		Progress: progress,
		Message:  message,
	})
}

// Subscriber consumes the relay on the API side.
type Subscriber struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// NewSubscriber constructs a subscriber on an existing Redis client.
func NewSubscriber(rdb *redis.Client, logger *slog.Logger) *Subscriber {
	return &Subscriber{rdb: rdb, logger: logger}
}

// Run blocks delivering events to handle until the context is cancelled.
// Malformed payloads are logged and skipped; they must not kill the relay.
func (s *Subscriber) Run(ctx context.Context, handle func(Event)) error {
	sub := s.rdb.Subscribe(ctx, eventChannel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe events: %w", err)
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				s.logger.Warn("malformed event payload", "error", err)
				continue
			}
			handle(ev)
		}
	}
}
