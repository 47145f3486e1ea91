// Package statsync runs the operator's bulk actions against the backend:
// selective statistics refresh, added/removed task checks and the refresh of
// tasks created today. Each action is confirmed first, cancels its own
// previous run and finishes by reloading the task list.
package statsync

import (
	"context"
	"sort"
	"time"

	"sendwatch/internal/apperr"
	"sendwatch/internal/domain"
	"sendwatch/internal/events"
	"sendwatch/internal/lifecycle"
	"sendwatch/internal/metrics"
	"sendwatch/internal/models"
	"sendwatch/internal/tasklist"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	opRefreshStats = "refresh statistics"
	opCheckTasks   = "check tasks"
	opTodayCreated = "refresh today created"
)

// Backend is the part of the backend API the coordinator drives.
type Backend interface {
	RefreshStatistics(ctx context.Context, ids []string) (map[string]string, error)
	CheckTasks(ctx context.Context, orgs []string) (*models.TaskDiff, error)
	RefreshTodayCreated(ctx context.Context, orgs []string) (map[string]string, error)
}

// Reloader pulls the authoritative task list after a bulk action.
type Reloader interface {
	Refresh(ctx context.Context) (*tasklist.Snapshot, error)
}

// Result describes a finished bulk action.
type Result struct {
	SessionID    string             `json:"session_id"`
	Kind         models.RefreshKind `json:"kind"`
	Requested    int                `json:"requested"`
	Chunks       int                `json:"chunks,omitempty"`
	FailedChunks int                `json:"failed_chunks,omitempty"`
	Changed      []string           `json:"changed"`
	Diff         *models.TaskDiff   `json:"diff,omitempty"`
	Reloaded     bool               `json:"reloaded"`
	ReloadErr    error              `json:"-"`
}

// UpToDate reports an action that changed nothing.
func (r *Result) UpToDate() bool {
	if r.Diff != nil {
		return len(r.Diff.Added) == 0 && len(r.Diff.Removed) == 0
	}
	return len(r.Changed) == 0
}

type Coordinator struct {
	backend Backend
	store   Reloader
	scope   domain.ScopeProvider
	journal domain.Journal
	events  domain.EventPublisher
	logger  zerolog.Logger
	chunks  int

	busy       *lifecycle.Busy
	statsGuard *lifecycle.Guard
	checkGuard *lifecycle.Guard
	todayGuard *lifecycle.Guard
}

type Option func(*Coordinator)

// WithChunks sets the number of concurrent chunks of a bulk refresh.
func WithChunks(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.chunks = n
		}
	}
}

func WithJournal(j domain.Journal) Option {
	return func(c *Coordinator) { c.journal = j }
}

func WithEvents(p domain.EventPublisher) Option {
	return func(c *Coordinator) { c.events = p }
}

func WithLogger(l *zerolog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l.With().Str("component", "statsync").Logger()
		}
	}
}

// WithBusy shares a busy flag with other triggers. While one action holds
// the flag the others are rejected with apperr.ErrBusy; the same action may
// still be re-run and supersedes its previous run.
func WithBusy(b *lifecycle.Busy) Option {
	return func(c *Coordinator) {
		if b != nil {
			c.busy = b
		}
	}
}

func New(backend Backend, store Reloader, scope domain.ScopeProvider, opts ...Option) *Coordinator {
	c := &Coordinator{
		backend:    backend,
		store:      store,
		scope:      scope,
		logger:     zerolog.Nop(),
		chunks:     models.DefaultChunkCount,
		busy:       &lifecycle.Busy{},
		statsGuard: lifecycle.NewGuard("stats_refresh"),
		checkGuard: lifecycle.NewGuard("check_tasks"),
		todayGuard: lifecycle.NewGuard("today_created"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Busy reports whether any bulk action is running.
func (c *Coordinator) Busy() bool {
	return c.busy.Busy()
}

// Teardown aborts every in-flight action.
func (c *Coordinator) Teardown() {
	c.statsGuard.Teardown()
	c.checkGuard.Teardown()
	c.todayGuard.Teardown()
}

// RefreshStats asks the backend to recompute statistics of ids in
// concurrent chunks and reports the ids whose statistics changed. An empty
// selection is rejected before the confirmation gate. When some chunks fail
// the changed ids of the others are still returned together with a single
// error.
func (c *Coordinator) RefreshStats(ctx context.Context, ids []string, confirm domain.Confirmer) (*Result, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return nil, apperr.ErrNothingToUpdate
	}
	if err := c.confirm(ctx, confirm, PromptRefreshStats); err != nil {
		return nil, err
	}

	release, ok := c.busy.TryEnter(c.statsGuard.Name())
	if !ok {
		return nil, apperr.ErrBusy
	}
	defer release()

	h := c.statsGuard.Begin(ctx)
	session := c.begin(models.KindStatsRefresh, len(ids))
	chunks := split(ids, c.chunks)

	statuses := make([]map[string]string, len(chunks))
	errs := make([]error, len(chunks))

	var g errgroup.Group
	for i, chunk := range chunks {
		g.Go(func() error {
			status, err := c.backend.RefreshStatistics(h.Context(), chunk)
			if err != nil {
				errs[i] = apperr.Classify(h.Context(), opRefreshStats, err)
				return errs[i]
			}
			statuses[i] = status
			return nil
		})
	}
	// every chunk runs to completion; individual errors are kept in errs
	_ = g.Wait()

	result := &Result{
		SessionID: session.ID,
		Kind:      models.KindStatsRefresh,
		Requested: len(ids),
		Chunks:    len(chunks),
		Changed:   changedIDs(ids, statuses),
	}

	if !c.statsGuard.Commit(h, nil) {
		return nil, c.abort(session, opRefreshStats)
	}

	var failure error
	for _, err := range errs {
		if err == nil {
			continue
		}
		result.FailedChunks++
		if failure == nil {
			failure = err
		}
		c.logger.Error().Err(err).Str("session_id", session.ID).Msg("statistics chunk failed")
	}

	metrics.AddStatsChanged(len(result.Changed))
	_ = c.publish(events.EventStatsChanged, events.StatsChangedPayload{
		SessionID: session.ID,
		Requested: len(ids),
		Changed:   result.Changed,
		Partial:   failure != nil,
	})

	if len(result.Changed) > 0 {
		c.reload(ctx, result)
	}

	session.TaskCount = len(result.Changed)
	if failure != nil {
		session.Finish(models.RefreshFailed, failure)
		c.finish(session)
		return result, failure
	}
	session.Finish(models.RefreshCompleted, nil)
	c.finish(session)

	c.logger.Info().
		Str("session_id", session.ID).
		Int("requested", len(ids)).
		Int("chunks", len(chunks)).
		Int("changed", len(result.Changed)).
		Msg("statistics refreshed")
	return result, nil
}

// CheckTasks asks the backend to reconcile added and removed tasks, then
// reloads the task list.
func (c *Coordinator) CheckTasks(ctx context.Context, confirm domain.Confirmer) (*Result, error) {
	if err := c.confirm(ctx, confirm, PromptCheckTasks); err != nil {
		return nil, err
	}

	release, ok := c.busy.TryEnter(c.checkGuard.Name())
	if !ok {
		return nil, apperr.ErrBusy
	}
	defer release()

	h := c.checkGuard.Begin(ctx)
	session := c.begin(models.KindCheckTasks, 0)

	diff, err := c.checkTasks(h.Context())
	if err != nil {
		return nil, c.fail(h, c.checkGuard, session, opCheckTasks, err)
	}
	if !c.checkGuard.Commit(h, nil) {
		return nil, c.abort(session, opCheckTasks)
	}

	result := &Result{SessionID: session.ID, Kind: models.KindCheckTasks, Diff: diff, Changed: []string{}}
	for _, t := range diff.Added {
		result.Changed = append(result.Changed, t.UUID)
	}

	added := make([]string, 0, len(diff.Added))
	for _, t := range diff.Added {
		added = append(added, t.Label)
	}
	removed := make([]string, 0, len(diff.Removed))
	for _, t := range diff.Removed {
		removed = append(removed, t.Label)
	}
	_ = c.publish(events.EventTasksChecked, events.TasksCheckedPayload{Added: added, Removed: removed})

	c.reload(ctx, result)

	session.TaskCount = len(diff.Added) + len(diff.Removed)
	session.Finish(models.RefreshCompleted, nil)
	c.finish(session)
	c.logger.Info().Int("added", len(diff.Added)).Int("removed", len(diff.Removed)).Msg("task check finished")
	return result, nil
}

func (c *Coordinator) checkTasks(ctx context.Context) (*models.TaskDiff, error) {
	orgs, err := c.scope.Orgs(ctx)
	if err != nil {
		return nil, err
	}
	diff, err := c.backend.CheckTasks(ctx, orgs)
	if err != nil {
		return nil, err
	}
	if diff == nil {
		diff = &models.TaskDiff{}
	}
	return diff, nil
}

// RefreshTodayCreated recomputes statistics of the tasks created today and
// reloads the task list.
func (c *Coordinator) RefreshTodayCreated(ctx context.Context, confirm domain.Confirmer) (*Result, error) {
	if err := c.confirm(ctx, confirm, PromptTodayCreated); err != nil {
		return nil, err
	}

	release, ok := c.busy.TryEnter(c.todayGuard.Name())
	if !ok {
		return nil, apperr.ErrBusy
	}
	defer release()

	h := c.todayGuard.Begin(ctx)
	session := c.begin(models.KindTodayCreated, 0)

	status, err := c.refreshTodayCreated(h.Context())
	if err != nil {
		return nil, c.fail(h, c.todayGuard, session, opTodayCreated, err)
	}
	if !c.todayGuard.Commit(h, nil) {
		return nil, c.abort(session, opTodayCreated)
	}

	ids := make([]string, 0, len(status))
	for id := range status {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	result := &Result{
		SessionID: session.ID,
		Kind:      models.KindTodayCreated,
		Requested: len(status),
		Changed:   changedIDs(ids, []map[string]string{status}),
	}
	metrics.AddStatsChanged(len(result.Changed))
	_ = c.publish(events.EventStatsChanged, events.StatsChangedPayload{
		SessionID: session.ID,
		Requested: len(status),
		Changed:   result.Changed,
	})

	c.reload(ctx, result)

	session.TaskCount = len(result.Changed)
	session.Finish(models.RefreshCompleted, nil)
	c.finish(session)
	return result, nil
}

func (c *Coordinator) refreshTodayCreated(ctx context.Context) (map[string]string, error) {
	orgs, err := c.scope.Orgs(ctx)
	if err != nil {
		return nil, err
	}
	return c.backend.RefreshTodayCreated(ctx, orgs)
}

// changedIDs returns, in ids order, every id reported as changed by any of
// the status maps. Each id appears at most once.
func changedIDs(ids []string, statuses []map[string]string) []string {
	changed := make(map[string]struct{})
	for _, status := range statuses {
		for id, s := range status {
			if s == models.StatsChanged {
				changed[id] = struct{}{}
			}
		}
	}

	out := make([]string, 0, len(changed))
	for _, id := range ids {
		if _, ok := changed[id]; ok {
			out = append(out, id)
			delete(changed, id)
		}
	}
	return out
}

func (c *Coordinator) confirm(ctx context.Context, confirm domain.Confirmer, prompt string) error {
	if confirm == nil {
		return apperr.ErrDeclined
	}
	ok, err := confirm.Confirm(ctx, prompt)
	if err != nil {
		return apperr.Classify(ctx, "confirm", err)
	}
	if !ok {
		return apperr.ErrDeclined
	}
	return nil
}

func (c *Coordinator) reload(ctx context.Context, result *Result) {
	if c.store == nil {
		return
	}
	if _, err := c.store.Refresh(ctx); err != nil {
		if !apperr.Silent(err) {
			result.ReloadErr = err
			c.logger.Warn().Err(err).Str("session_id", result.SessionID).Msg("reload after bulk action failed")
		}
		return
	}
	result.Reloaded = true
}

func (c *Coordinator) fail(h *lifecycle.Handle, guard *lifecycle.Guard, session *models.RefreshSession, op string, err error) error {
	err = apperr.Classify(h.Context(), op, err)
	if apperr.IsCancelled(err) {
		h.Retire()
		return c.abort(session, op)
	}
	if !guard.Commit(h, nil) {
		return c.abort(session, op)
	}
	session.Finish(models.RefreshFailed, err)
	c.finish(session)
	c.logger.Error().Err(err).Str("session_id", session.ID).Str("op", op).Msg("bulk action failed")
	_ = c.publish(events.EventRefreshFailed, events.RefreshFailedPayload{
		Kind:    string(session.Kind),
		Message: apperr.UserMessage(err),
	})
	return err
}

func (c *Coordinator) begin(kind models.RefreshKind, count int) *models.RefreshSession {
	session := &models.RefreshSession{
		ID:        uuid.NewString(),
		Kind:      kind,
		State:     models.RefreshRunning,
		StartedAt: time.Now(),
		TaskCount: count,
	}
	c.record(session)
	return session
}

func (c *Coordinator) abort(session *models.RefreshSession, op string) error {
	session.Finish(models.RefreshAborted, nil)
	c.finish(session)
	c.logger.Debug().Str("session_id", session.ID).Str("op", op).Msg("bulk action superseded")
	return apperr.Cancelled(op, nil)
}

func (c *Coordinator) finish(session *models.RefreshSession) {
	metrics.ObserveRefresh(string(session.Kind), string(session.State))
	c.record(session)
}

func (c *Coordinator) record(session *models.RefreshSession) {
	if c.journal == nil {
		return
	}
	if err := c.journal.Record(context.Background(), session); err != nil {
		c.logger.Warn().Err(err).Str("session_id", session.ID).Msg("failed to journal refresh session")
	}
}

func (c *Coordinator) publish(eventType string, payload interface{}) error {
	if c.events == nil {
		return nil
	}
	return c.events.PublishJSON(eventType, payload)
}
