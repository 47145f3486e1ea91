package events

import (
	"encoding/json"
	"sync"
	"time"

	"sendwatch/internal/logging"

	"github.com/rs/zerolog"
)

const (
	EventSnapshotReplaced = "snapshot_replaced"
	EventStatsChanged     = "stats_changed"
	EventTasksChecked     = "tasks_checked"
	EventRefreshFailed    = "refresh_failed"
)

// SnapshotPayload describes a committed task-list snapshot.
type SnapshotPayload struct {
	SessionID string    `json:"session_id"`
	Tasks     int       `json:"tasks"`
	WithStats int       `json:"with_stats"`
	Today     int       `json:"today"`
	Committed time.Time `json:"committed"`
}

// StatsChangedPayload lists tasks whose statistics changed on the backend.
type StatsChangedPayload struct {
	SessionID string   `json:"session_id"`
	Requested int      `json:"requested"`
	Changed   []string `json:"changed"`
	Partial   bool     `json:"partial,omitempty"`
}

// TasksCheckedPayload reports the outcome of a task discovery check.
type TasksCheckedPayload struct {
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
}

// RefreshFailedPayload reports a refresh that ended with an error.
type RefreshFailedPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Decode unmarshals the payload into v.
func (e *Event) Decode(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events. Handlers run
// synchronously on the publishing goroutine.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[string][]EventHandler
	logger      zerolog.Logger
}

// Option configures an EventBus.
type Option func(*EventBus)

// WithLogger reports handler failures on l.
func WithLogger(l *zerolog.Logger) Option {
	return func(b *EventBus) { b.logger = logging.Component(l, "events") }
}

// NewEventBus constructs an empty bus.
func NewEventBus(opts ...Option) *EventBus {
	b := &EventBus{subscribers: make(map[string][]EventHandler), logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	if b == nil {
		return
	}

	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for i, handler := range handlers {
		if err := handler(event); err != nil {
			b.logger.Warn().Err(err).Str("event", event.Type).Int("handler", i).Msg("event handler failed")
		}
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}
