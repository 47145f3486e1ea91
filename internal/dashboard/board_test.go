package dashboard

import (
	"context"
	"sync"
	"testing"

	"sendwatch/internal/apperr"
	"sendwatch/internal/events"
	"sendwatch/internal/models"
	"sendwatch/internal/statsync"
	"sendwatch/internal/tasklist"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scope struct{}

func (scope) Orgs(context.Context) ([]string, error) { return []string{"org"}, nil }

// fakeBackend serves a mutable task list and records refresh requests.
type fakeBackend struct {
	mu        sync.Mutex
	tasks     []models.Task
	stats     []models.TaskStatistics
	refreshed [][]string
	changed   map[string]string
	listErr   error
}

func (f *fakeBackend) ListTasks(context.Context, []string) ([]models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]models.Task(nil), f.tasks...), nil
}

func (f *fakeBackend) GetStatistics(context.Context, []string) ([]models.TaskStatistics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.TaskStatistics(nil), f.stats...), nil
}

func (f *fakeBackend) RefreshStatistics(_ context.Context, ids []string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshed = append(f.refreshed, ids)
	out := make(map[string]string, len(ids))
	for _, id := range ids {
		out[id] = f.changed[id]
	}
	return out, nil
}

func (f *fakeBackend) CheckTasks(context.Context, []string) (*models.TaskDiff, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	added := models.Task{UUID: "added", Label: "Added"}
	f.tasks = append(f.tasks, added)
	return &models.TaskDiff{Added: []models.Task{added}}, nil
}

func (f *fakeBackend) RefreshTodayCreated(context.Context, []string) (map[string]string, error) {
	return map[string]string{"t1": "changed"}, nil
}

func (f *fakeBackend) allRefreshed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, ids := range f.refreshed {
		out = append(out, ids...)
	}
	return out
}

func newBoard(t *testing.T, f *fakeBackend) *Board {
	t.Helper()
	bus := events.NewEventBus()
	store := tasklist.NewStore(f, scope{}, tasklist.WithEvents(bus))
	actions := statsync.New(f, store, scope{})
	board := NewBoard(store, actions, bus, 2)
	require.NoError(t, board.Refresh(context.Background()))
	return board
}

func sample() *fakeBackend {
	return &fakeBackend{
		tasks: []models.Task{
			{UUID: "t1", Label: "Alpha"},
			{UUID: "t2", Label: "Beta"},
			{UUID: "t3", Label: "Gamma"},
		},
		stats: []models.TaskStatistics{
			{TaskUUID: "t1", TodayEarliestPlan: 1700000000, TodayUnsent: 2},
			{TaskUUID: "t3", TodayEarliestPlan: 1700000000},
		},
		changed: map[string]string{"t1": "changed", "t2": "unchanged", "t3": "changed"},
	}
}

func TestTasksView(t *testing.T) {
	board := newBoard(t, sample())

	v := board.Tasks(Query{})
	assert.Equal(t, 2, v.PageSize)
	assert.Equal(t, 3, v.Total)
	assert.Equal(t, 2, v.Pages)
	assert.False(t, v.Loading)
	assert.False(t, v.Busy)
	assert.Empty(t, v.Error)

	v = board.Tasks(Query{Filter: tasklist.Filter{TodayOnly: true}, Page: 0, PageSize: 10})
	assert.Equal(t, []string{"t1", "t3"}, tasklist.RowIDs(v.Rows))

	sum := board.Summary()
	assert.Equal(t, 2, sum.Today)
	assert.Equal(t, 1, sum.NotYet)
	assert.Equal(t, 1, sum.Done)
}

func TestRefreshStatsTargets(t *testing.T) {
	f := sample()
	board := newBoard(t, f)

	assert.Equal(t, []string{"t1", "t2", "t3"}, board.Targets(TargetAll, tasklist.Filter{}))
	assert.Equal(t, []string{"t1", "t3"}, board.Targets(TargetToday, tasklist.Filter{}))
	assert.Empty(t, board.Targets(TargetSelection, tasklist.Filter{}))

	board.Selection().Add("t2")
	assert.Equal(t, []string{"t2"}, board.Targets(TargetSelection, tasklist.Filter{}))

	board.Selection().SetAllPages(true)
	assert.Equal(t, []string{"t3"}, board.Targets(TargetSelection, tasklist.Filter{Search: "AMM"}))
}

func TestRefreshStatsHighlightsChanged(t *testing.T) {
	f := sample()
	board := newBoard(t, f)

	res, err := board.RefreshStats(context.Background(), TargetAll, tasklist.Filter{}, statsync.Answer(true))
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t3"}, res.Changed)
	assert.ElementsMatch(t, []string{"t1", "t2", "t3"}, f.allRefreshed())
	assert.Equal(t, []string{"t1", "t3"}, board.Highlighted())
	assert.Equal(t, []string{"t1", "t3"}, board.Tasks(Query{}).Highlighted)
}

func TestEmptySelectionIsRejected(t *testing.T) {
	f := sample()
	board := newBoard(t, f)

	_, err := board.RefreshStats(context.Background(), TargetSelection, tasklist.Filter{}, statsync.Answer(true))
	assert.ErrorIs(t, err, apperr.ErrNothingToUpdate)
	assert.Empty(t, f.allRefreshed())
}

func TestSelectionResetOnShapeChange(t *testing.T) {
	f := sample()
	board := newBoard(t, f)

	board.Selection().Add("t1", "t2")

	// same ids: selection survives a refresh
	require.NoError(t, board.Refresh(context.Background()))
	assert.Equal(t, []string{"t1", "t2"}, board.Selection().IDs())

	res, err := board.CheckTasks(context.Background(), statsync.Answer(true))
	require.NoError(t, err)
	assert.True(t, res.Reloaded)
	assert.Empty(t, board.Selection().IDs())
	assert.Equal(t, []string{"added"}, board.Highlighted())
	assert.Len(t, board.Snapshot().Tasks, 4)
}

func TestErrorSurfacesInView(t *testing.T) {
	f := sample()
	board := newBoard(t, f)

	f.mu.Lock()
	f.listErr = apperr.Application("get_sendtasks", "maintenance")
	f.mu.Unlock()

	err := board.Refresh(context.Background())
	require.Error(t, err)

	v := board.Tasks(Query{})
	assert.Equal(t, "maintenance", v.Error)
	assert.Equal(t, 3, v.Total)
}

func TestRefreshTodayCreatedHighlights(t *testing.T) {
	board := newBoard(t, sample())

	res, err := board.RefreshTodayCreated(context.Background(), statsync.Answer(true))
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, res.Changed)
	assert.Equal(t, []string{"t1"}, board.Highlighted())
}

func TestResetClearsView(t *testing.T) {
	board := newBoard(t, sample())
	board.Selection().Add("t1")
	_, err := board.RefreshStats(context.Background(), TargetAll, tasklist.Filter{}, statsync.Answer(true))
	require.NoError(t, err)

	board.Reset()

	v := board.Tasks(Query{})
	assert.True(t, v.Loading)
	assert.Equal(t, 0, v.Total)
	assert.Empty(t, v.Highlighted)
	assert.Empty(t, v.Selection.IDs)
}

func TestUnloadedIDsNeverRefreshed(t *testing.T) {
	f := sample()
	board := newBoard(t, f)

	board.Selection().Add("t1", "ghost")
	res, err := board.RefreshStats(context.Background(), TargetSelection, tasklist.Filter{}, statsync.Answer(true))
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, res.Changed)
	assert.Equal(t, []string{"t1"}, f.allRefreshed())

	_, err = board.RefreshStatsOf(context.Background(), []string{"ghost", "gone"}, statsync.Answer(true))
	assert.ErrorIs(t, err, apperr.ErrNothingToUpdate)
	assert.Equal(t, []string{"t1"}, f.allRefreshed())

	assert.Equal(t, []string{"t3", "t1"}, board.Loaded([]string{"t3", "ghost", "t1"}))
	assert.Empty(t, board.Loaded(nil))
}
