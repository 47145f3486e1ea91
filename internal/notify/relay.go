package notify

import (
	"context"
	"fmt"
	"sync"

	"sendwatch/internal/domain"
	"sendwatch/internal/events"
	"sendwatch/internal/logging"
	"sendwatch/internal/models"

	"github.com/rs/zerolog"
)

const queueSize = 64

// Subscriber is the subscription side of the event bus.
type Subscriber interface {
	Subscribe(eventType string, handler events.EventHandler)
}

// Relay turns refresh events into operator alerts and delivers them off the
// publishing goroutine. A failure is alerted when a kind starts failing or
// its message changes; repeats are dropped until the kind succeeds again.
type Relay struct {
	notifier domain.Notifier
	queue    chan string
	logger   zerolog.Logger

	mu      sync.Mutex
	failing map[string]string
}

func NewRelay(notifier domain.Notifier, logger *zerolog.Logger) *Relay {
	l := logging.Component(logger, "notify")
	return &Relay{
		notifier: notifier,
		queue:    make(chan string, queueSize),
		logger:   l,
		failing:  make(map[string]string),
	}
}

// Subscribe registers the relay's handlers on bus.
func (r *Relay) Subscribe(bus Subscriber) {
	bus.Subscribe(events.EventRefreshFailed, r.onRefreshFailed)
	bus.Subscribe(events.EventSnapshotReplaced, r.onSnapshotReplaced)
	bus.Subscribe(events.EventTasksChecked, r.onTasksChecked)
	bus.Subscribe(events.EventStatsChanged, r.onStatsChanged)
}

func (r *Relay) onRefreshFailed(e *events.Event) error {
	var p events.RefreshFailedPayload
	if err := e.Decode(&p); err != nil {
		return err
	}

	r.mu.Lock()
	prev, seen := r.failing[p.Kind]
	r.failing[p.Kind] = p.Message
	r.mu.Unlock()

	if seen && prev == p.Message {
		r.logger.Debug().Str("kind", p.Kind).Msg("repeated failure, alert suppressed")
		return nil
	}
	r.enqueue(fmt.Sprintf("Refresh %s failed: %s", p.Kind, p.Message))
	return nil
}

// recovered clears the failure state of kinds and reports whether any of
// them was failing.
func (r *Relay) recovered(kinds ...models.RefreshKind) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	was := false
	for _, k := range kinds {
		if _, ok := r.failing[string(k)]; ok {
			delete(r.failing, string(k))
			was = true
		}
	}
	return was
}

func (r *Relay) onSnapshotReplaced(*events.Event) error {
	if r.recovered(models.KindTaskList) {
		r.enqueue(fmt.Sprintf("Refresh %s recovered", models.KindTaskList))
	}
	return nil
}

func (r *Relay) onTasksChecked(e *events.Event) error {
	var p events.TasksCheckedPayload
	if err := e.Decode(&p); err != nil {
		return err
	}
	r.recovered(models.KindCheckTasks)
	r.enqueue(FormatDiff(p.Added, p.Removed))
	return nil
}

func (r *Relay) onStatsChanged(e *events.Event) error {
	var p events.StatsChangedPayload
	if err := e.Decode(&p); err != nil {
		return err
	}
	r.recovered(models.KindStatsRefresh, models.KindTodayCreated)
	text := FormatChanged(p.Changed)
	if p.Partial {
		text += "\n(some chunks failed)"
	}
	r.enqueue(text)
	return nil
}

func (r *Relay) enqueue(text string) {
	select {
	case r.queue <- text:
	default:
		r.logger.Warn().Str("alert", text).Msg("alert queue full, dropping alert")
	}
}

// Run delivers queued alerts until ctx is done.
func (r *Relay) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case text := <-r.queue:
			if err := r.notifier.Notify(ctx, text); err != nil {
				r.logger.Error().Err(err).Msg("failed to deliver alert")
			}
		}
	}
}
