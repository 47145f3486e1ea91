// Package tasklist holds the operator's current view of send tasks and their
// statistics and refreshes it with last-request-wins semantics.
package tasklist

import (
	"context"
	"sync"
	"time"

	"sendwatch/internal/apperr"
	"sendwatch/internal/domain"
	"sendwatch/internal/events"
	"sendwatch/internal/lifecycle"
	"sendwatch/internal/metrics"
	"sendwatch/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const opRefresh = "refresh tasks"

// Source is the part of the backend the store reads from.
type Source interface {
	ListTasks(ctx context.Context, orgs []string) ([]models.Task, error)
	GetStatistics(ctx context.Context, ids []string) ([]models.TaskStatistics, error)
}

type Store struct {
	source  Source
	scope   domain.ScopeProvider
	journal domain.Journal
	events  domain.EventPublisher
	guard   *lifecycle.Guard
	logger  zerolog.Logger

	mu      sync.RWMutex
	snap    *Snapshot
	loading bool
	lastErr error
}

// Option configures optional collaborators.
type Option func(*Store)

func WithJournal(j domain.Journal) Option {
	return func(s *Store) { s.journal = j }
}

func WithEvents(p domain.EventPublisher) Option {
	return func(s *Store) { s.events = p }
}

func WithLogger(l *zerolog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l.With().Str("component", "tasklist").Logger()
		}
	}
}

func NewStore(source Source, scope domain.ScopeProvider, opts ...Option) *Store {
	s := &Store{
		source:  source,
		scope:   scope,
		guard:   lifecycle.NewGuard("tasklist"),
		logger:  zerolog.Nop(),
		snap:    emptySnapshot,
		loading: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Refresh fetches the task list for the operator's scope and, when it is not
// empty, the statistics of exactly those tasks, then replaces the snapshot in
// one step. A refresh that gets superseded returns a cancelled error and
// leaves the state untouched.
func (s *Store) Refresh(ctx context.Context) (*Snapshot, error) {
	h := s.guard.Begin(ctx)
	session := &models.RefreshSession{
		ID:        uuid.NewString(),
		Kind:      models.KindTaskList,
		State:     models.RefreshRunning,
		StartedAt: time.Now(),
	}
	s.record(session)

	snap, err := s.fetch(h.Context(), session.ID)
	if err != nil {
		err = apperr.Classify(h.Context(), opRefresh, err)
		if apperr.IsCancelled(err) {
			h.Retire()
			return nil, s.abort(session, err)
		}

		committed := s.guard.Commit(h, func() {
			s.mu.Lock()
			s.loading = false
			s.lastErr = err
			s.mu.Unlock()
		})
		if !committed {
			return nil, s.abort(session, apperr.Cancelled(opRefresh, err))
		}

		session.Finish(models.RefreshFailed, err)
		s.finish(session)
		s.logger.Error().Err(err).Str("session_id", session.ID).Msg("task list refresh failed")
		_ = s.publish(events.EventRefreshFailed, events.RefreshFailedPayload{
			Kind:    string(models.KindTaskList),
			Message: apperr.UserMessage(err),
		})
		return nil, err
	}

	committed := s.guard.Commit(h, func() {
		snap.CommittedAt = time.Now()
		s.mu.Lock()
		s.snap = snap
		s.loading = false
		s.lastErr = nil
		s.mu.Unlock()
	})
	if !committed {
		return nil, s.abort(session, apperr.Cancelled(opRefresh, nil))
	}

	session.TaskCount = len(snap.Tasks)
	session.Finish(models.RefreshCompleted, nil)
	s.finish(session)
	metrics.SetSnapshotTasks(len(snap.Tasks))

	today := len(snap.TodayTasks())
	s.logger.Debug().
		Str("session_id", session.ID).
		Int("tasks", len(snap.Tasks)).
		Int("with_stats", len(snap.Stats)).
		Int("today", today).
		Dur("elapsed", session.Duration()).
		Msg("task list refreshed")

	_ = s.publish(events.EventSnapshotReplaced, events.SnapshotPayload{
		SessionID: session.ID,
		Tasks:     len(snap.Tasks),
		WithStats: len(snap.Stats),
		Today:     today,
		Committed: snap.CommittedAt,
	})
	return snap, nil
}

func (s *Store) fetch(ctx context.Context, sessionID string) (*Snapshot, error) {
	orgs, err := s.scope.Orgs(ctx)
	if err != nil {
		return nil, err
	}

	tasks, err := s.source.ListTasks(ctx, orgs)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{SessionID: sessionID, Tasks: tasks, Stats: make(map[string]models.TaskStatistics, len(tasks))}
	if len(tasks) == 0 {
		snap.Tasks = []models.Task{}
		return snap, nil
	}

	ids := snap.IDs()
	stats, err := s.source.GetStatistics(ctx, ids)
	if err != nil {
		return nil, err
	}

	known := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		known[id] = struct{}{}
	}
	for _, st := range stats {
		if _, ok := known[st.TaskUUID]; ok {
			snap.Stats[st.TaskUUID] = st
		}
	}
	return snap, nil
}

func (s *Store) abort(session *models.RefreshSession, err error) error {
	session.Finish(models.RefreshAborted, nil)
	s.finish(session)
	s.logger.Debug().Str("session_id", session.ID).Msg("task list refresh superseded")
	return err
}

func (s *Store) record(session *models.RefreshSession) {
	if s.journal == nil {
		return
	}
	// journal writes outlive the refresh context
	if err := s.journal.Record(context.Background(), session); err != nil {
		s.logger.Warn().Err(err).Str("session_id", session.ID).Msg("failed to journal refresh session")
	}
}

func (s *Store) finish(session *models.RefreshSession) {
	metrics.ObserveRefresh(string(session.Kind), string(session.State))
	s.record(session)
}

func (s *Store) publish(eventType string, payload interface{}) error {
	if s.events == nil {
		return nil
	}
	return s.events.PublishJSON(eventType, payload)
}

// Snapshot returns the last committed snapshot; never nil.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// TodayTasks is the today view of the current snapshot.
func (s *Store) TodayTasks() []models.Task {
	return s.Snapshot().TodayTasks()
}

// Loading is true until the first refresh succeeds or genuinely fails.
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Refreshing reports whether a refresh is in flight.
func (s *Store) Refreshing() bool {
	return s.guard.Active()
}

// LastError is the error of the last refresh that failed for a reason other
// than cancellation; cleared by the next successful one.
func (s *Store) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Teardown aborts an in-flight refresh. Safe to call repeatedly.
func (s *Store) Teardown() {
	s.guard.Teardown()
}

// Reset aborts an in-flight refresh and drops the snapshot, returning the
// store to its initial loading state.
func (s *Store) Reset() {
	s.guard.Teardown()
	s.mu.Lock()
	s.snap = emptySnapshot
	s.loading = true
	s.lastErr = nil
	s.mu.Unlock()
	metrics.SetSnapshotTasks(0)
	_ = s.publish(events.EventSnapshotReplaced, events.SnapshotPayload{})
}
