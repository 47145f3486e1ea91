// Package dashboard is the presenting view over the task list: it owns the
// filter, paging, selection and the transient highlight of changed tasks.
package dashboard

import (
	"context"
	"sort"
	"strings"
	"sync"

	"sendwatch/internal/apperr"
	"sendwatch/internal/domain"
	"sendwatch/internal/events"
	"sendwatch/internal/models"
	"sendwatch/internal/selection"
	"sendwatch/internal/statsync"
	"sendwatch/internal/tasklist"
)

// Target picks the tasks a statistics refresh applies to.
type Target string

const (
	TargetSelection Target = "selection"
	TargetToday     Target = "today"
	TargetAll       Target = "all"
)

// Subscriber is the subscription side of the event bus.
type Subscriber interface {
	Subscribe(eventType string, handler events.EventHandler)
}

// Query selects one page of the task table.
type Query struct {
	Filter   tasklist.Filter
	Page     int
	PageSize int
}

// View is everything needed to render the task table.
type View struct {
	tasklist.Page
	Loading     bool            `json:"loading"`
	Refreshing  bool            `json:"refreshing"`
	Busy        bool            `json:"busy"`
	Error       string          `json:"error,omitempty"`
	Selection   selection.State `json:"selection"`
	Highlighted []string        `json:"highlighted"`
}

type Board struct {
	store    *tasklist.Store
	actions  *statsync.Coordinator
	sel      *selection.Set
	pageSize int

	mu        sync.Mutex
	highlight map[string]struct{}
	shape     string
}

func NewBoard(store *tasklist.Store, actions *statsync.Coordinator, bus Subscriber, pageSize int) *Board {
	if pageSize <= 0 {
		pageSize = models.DefaultPageSize
	}
	b := &Board{
		store:     store,
		actions:   actions,
		sel:       selection.New(),
		pageSize:  pageSize,
		highlight: make(map[string]struct{}),
		shape:     shapeOf(store.Snapshot()),
	}
	if bus != nil {
		bus.Subscribe(events.EventSnapshotReplaced, func(*events.Event) error {
			b.onSnapshot(b.store.Snapshot())
			return nil
		})
	}
	return b
}

// onSnapshot clears the selection when the set of loaded task ids changed.
func (b *Board) onSnapshot(snap *tasklist.Snapshot) {
	shape := shapeOf(snap)

	b.mu.Lock()
	defer b.mu.Unlock()
	if shape == b.shape {
		return
	}
	b.shape = shape
	b.sel.Reset()

	ids := make(map[string]struct{}, len(snap.Tasks))
	for _, t := range snap.Tasks {
		ids[t.UUID] = struct{}{}
	}
	for id := range b.highlight {
		if _, ok := ids[id]; !ok {
			delete(b.highlight, id)
		}
	}
}

func shapeOf(snap *tasklist.Snapshot) string {
	ids := snap.IDs()
	sort.Strings(ids)
	return strings.Join(ids, "\x00")
}

// Selection exposes the selection owned by the view.
func (b *Board) Selection() *selection.Set {
	return b.sel
}

// Tasks renders one page of the table.
func (b *Board) Tasks(q Query) View {
	size := q.PageSize
	if size <= 0 {
		size = b.pageSize
	}
	rows := b.store.Snapshot().Rows(q.Filter)

	v := View{
		Page:        tasklist.Paginate(rows, q.Page, size),
		Loading:     b.store.Loading(),
		Refreshing:  b.store.Refreshing(),
		Busy:        b.actions.Busy(),
		Selection:   b.sel.State(),
		Highlighted: b.Highlighted(),
	}
	if err := b.store.LastError(); err != nil {
		v.Error = apperr.UserMessage(err)
	}
	return v
}

// Summary counts today's tasks per state.
func (b *Board) Summary() tasklist.Summary {
	return b.store.Snapshot().Summary()
}

// Highlighted lists the ids changed by the last bulk action, sorted.
func (b *Board) Highlighted() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.highlight))
	for id := range b.highlight {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (b *Board) setHighlight(ids []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.highlight = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		b.highlight[id] = struct{}{}
	}
}

// Refresh reloads the task list.
func (b *Board) Refresh(ctx context.Context) error {
	_, err := b.store.Refresh(ctx)
	return err
}

// Targets resolves the ids a statistics refresh would apply to.
func (b *Board) Targets(target Target, filter tasklist.Filter) []string {
	snap := b.store.Snapshot()
	switch target {
	case TargetAll:
		return snap.IDs()
	case TargetToday:
		ids := make([]string, 0)
		for _, t := range snap.TodayTasks() {
			ids = append(ids, t.UUID)
		}
		return ids
	default:
		return b.Loaded(b.sel.Scope(tasklist.RowIDs(snap.Rows(filter))))
	}
}

// Loaded keeps the ids present in the current snapshot, in input order.
func (b *Board) Loaded(ids []string) []string {
	known := make(map[string]struct{})
	for _, id := range b.store.Snapshot().IDs() {
		known[id] = struct{}{}
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := known[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// RefreshStats refreshes statistics of the chosen target and highlights the
// tasks that changed.
func (b *Board) RefreshStats(ctx context.Context, target Target, filter tasklist.Filter, confirm domain.Confirmer) (*statsync.Result, error) {
	return b.RefreshStatsOf(ctx, b.Targets(target, filter), confirm)
}

// RefreshStatsOf refreshes statistics of explicit ids. Ids that are not
// loaded are dropped.
func (b *Board) RefreshStatsOf(ctx context.Context, ids []string, confirm domain.Confirmer) (*statsync.Result, error) {
	res, err := b.actions.RefreshStats(ctx, b.Loaded(ids), confirm)
	if res != nil {
		b.setHighlight(res.Changed)
	}
	return res, err
}

func (b *Board) CheckTasks(ctx context.Context, confirm domain.Confirmer) (*statsync.Result, error) {
	res, err := b.actions.CheckTasks(ctx, confirm)
	if res != nil {
		b.setHighlight(res.Changed)
	}
	return res, err
}

func (b *Board) RefreshTodayCreated(ctx context.Context, confirm domain.Confirmer) (*statsync.Result, error) {
	res, err := b.actions.RefreshTodayCreated(ctx, confirm)
	if res != nil {
		b.setHighlight(res.Changed)
	}
	return res, err
}

// Snapshot is the current task-list snapshot.
func (b *Board) Snapshot() *tasklist.Snapshot {
	return b.store.Snapshot()
}

// Teardown aborts every in-flight operation of the view.
func (b *Board) Teardown() {
	b.store.Teardown()
	b.actions.Teardown()
}

// Reset drops everything the view holds for the current operator.
func (b *Board) Reset() {
	b.actions.Teardown()
	b.store.Reset()
	b.sel.Reset()
	b.setHighlight(nil)
}
