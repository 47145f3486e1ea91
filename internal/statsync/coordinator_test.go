package statsync

import (
	"context"
	"errors"
	"testing"
	"time"

	"sendwatch/internal/apperr"
	"sendwatch/internal/events"
	"sendwatch/internal/models"
	"sendwatch/internal/tasklist"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) RefreshStatistics(ctx context.Context, ids []string) (map[string]string, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]string), args.Error(1)
}

func (m *MockBackend) CheckTasks(ctx context.Context, orgs []string) (*models.TaskDiff, error) {
	args := m.Called(ctx, orgs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TaskDiff), args.Error(1)
}

func (m *MockBackend) RefreshTodayCreated(ctx context.Context, orgs []string) (map[string]string, error) {
	args := m.Called(ctx, orgs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]string), args.Error(1)
}

type MockReloader struct {
	mock.Mock
}

func (m *MockReloader) Refresh(ctx context.Context) (*tasklist.Snapshot, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*tasklist.Snapshot), args.Error(1)
}

type staticScope []string

func (s staticScope) Orgs(context.Context) ([]string, error) { return s, nil }

func newCoordinator(b *MockBackend, r *MockReloader, opts ...Option) *Coordinator {
	logger := zerolog.Nop()
	return New(b, r, staticScope{"org-1"}, append([]Option{WithLogger(&logger)}, opts...)...)
}

var refuse = ConfirmFunc(func(context.Context, string) (bool, error) {
	panic("confirmation must not be requested")
})

func TestRefreshStatsEmptySelection(t *testing.T) {
	b, r := new(MockBackend), new(MockReloader)
	c := newCoordinator(b, r)

	for _, ids := range [][]string{nil, {}, {"", ""}} {
		res, err := c.RefreshStats(context.Background(), ids, refuse)
		assert.Nil(t, res)
		assert.ErrorIs(t, err, apperr.ErrNothingToUpdate)
		assert.Equal(t, "nothing to update", apperr.UserMessage(err))
	}
	b.AssertNotCalled(t, "RefreshStatistics", mock.Anything, mock.Anything)
	r.AssertNotCalled(t, "Refresh", mock.Anything)
}

func TestRefreshStatsDeclined(t *testing.T) {
	b, r := new(MockBackend), new(MockReloader)
	c := newCoordinator(b, r)

	var prompt string
	no := ConfirmFunc(func(_ context.Context, p string) (bool, error) {
		prompt = p
		return false, nil
	})

	res, err := c.RefreshStats(context.Background(), []string{"a"}, no)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, apperr.ErrDeclined)
	assert.True(t, apperr.Silent(err))
	assert.Equal(t, PromptRefreshStats, prompt)
	assert.False(t, c.Busy())
	b.AssertNotCalled(t, "RefreshStatistics", mock.Anything, mock.Anything)

	_, err = c.RefreshStats(context.Background(), []string{"a"}, nil)
	assert.ErrorIs(t, err, apperr.ErrDeclined)
}

func TestRefreshStatsUnionOfChunks(t *testing.T) {
	b, r := new(MockBackend), new(MockReloader)
	c := newCoordinator(b, r)

	b.On("RefreshStatistics", mock.Anything, []string{"a", "b", "c"}).
		Return(map[string]string{"a": "changed", "b": "unchanged", "c": "unchanged"}, nil).Once()
	b.On("RefreshStatistics", mock.Anything, []string{"d", "e", "f"}).
		Return(map[string]string{"d": "changed", "e": "unchanged", "f": "changed", "a": "changed"}, nil).Once()
	b.On("RefreshStatistics", mock.Anything, []string{"g"}).
		Return(map[string]string{"g": "changed"}, nil).Once()
	r.On("Refresh", mock.Anything).Return(&tasklist.Snapshot{}, nil).Once()

	res, err := c.RefreshStats(context.Background(), []string{"a", "b", "c", "d", "e", "f", "g", "a"}, Answer(true))
	require.NoError(t, err)

	assert.Equal(t, 7, res.Requested)
	assert.Equal(t, 3, res.Chunks)
	assert.Zero(t, res.FailedChunks)
	assert.Equal(t, []string{"a", "d", "f", "g"}, res.Changed)
	assert.True(t, res.Reloaded)
	assert.False(t, res.UpToDate())
	assert.False(t, c.Busy())

	b.AssertExpectations(t)
	r.AssertExpectations(t)
}

func TestRefreshStatsNothingChangedSkipsReload(t *testing.T) {
	b, r := new(MockBackend), new(MockReloader)
	c := newCoordinator(b, r)

	b.On("RefreshStatistics", mock.Anything, []string{"a"}).
		Return(map[string]string{"a": "unchanged"}, nil).Once()

	res, err := c.RefreshStats(context.Background(), []string{"a"}, Answer(true))
	require.NoError(t, err)
	assert.True(t, res.UpToDate())
	assert.False(t, res.Reloaded)
	r.AssertNotCalled(t, "Refresh", mock.Anything)
}

func TestRefreshStatsPartialFailureKeepsSucceededChunks(t *testing.T) {
	b, r := new(MockBackend), new(MockReloader)
	c := newCoordinator(b, r)

	b.On("RefreshStatistics", mock.Anything, []string{"a", "b"}).
		Return(map[string]string{"a": "changed"}, nil).Once()
	b.On("RefreshStatistics", mock.Anything, []string{"c", "d"}).
		Return(nil, errors.New("connection reset")).Once()
	b.On("RefreshStatistics", mock.Anything, []string{"e"}).
		Return(map[string]string{"e": "changed"}, nil).Once()
	r.On("Refresh", mock.Anything).Return(&tasklist.Snapshot{}, nil).Once()

	res, err := c.RefreshStats(context.Background(), []string{"a", "b", "c", "d", "e"}, Answer(true))
	require.Error(t, err)
	require.NotNil(t, res)

	assert.Equal(t, apperr.KindTransport, apperr.KindOf(err))
	assert.Equal(t, "server error, please try again later", apperr.UserMessage(err))
	assert.Equal(t, []string{"a", "e"}, res.Changed)
	assert.Equal(t, 1, res.FailedChunks)
	assert.True(t, res.Reloaded)
	r.AssertExpectations(t)
}

func TestRefreshStatsSupersedesPreviousRun(t *testing.T) {
	b, r := new(MockBackend), new(MockReloader)
	c := newCoordinator(b, r)

	started := make(chan struct{})
	b.On("RefreshStatistics", mock.Anything, []string{"x"}).
		Run(func(args mock.Arguments) {
			close(started)
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, context.Canceled).Once()
	b.On("RefreshStatistics", mock.Anything, []string{"y"}).
		Return(map[string]string{"y": "changed"}, nil).Once()
	r.On("Refresh", mock.Anything).Return(&tasklist.Snapshot{}, nil).Once()

	first := make(chan error, 1)
	go func() {
		_, err := c.RefreshStats(context.Background(), []string{"x"}, Answer(true))
		first <- err
	}()
	<-started
	assert.True(t, c.Busy())

	res, err := c.RefreshStats(context.Background(), []string{"y"}, Answer(true))
	require.NoError(t, err)
	assert.Equal(t, []string{"y"}, res.Changed)

	select {
	case err := <-first:
		assert.True(t, apperr.IsCancelled(err))
		assert.Empty(t, apperr.UserMessage(err))
	case <-time.After(time.Second):
		t.Fatal("superseded run did not return")
	}
	assert.False(t, c.Busy())
}

func TestRefreshStatsPublishesChanged(t *testing.T) {
	b, r := new(MockBackend), new(MockReloader)
	bus := events.NewEventBus()
	c := newCoordinator(b, r, WithEvents(bus), WithChunks(1))

	var got events.StatsChangedPayload
	bus.Subscribe(events.EventStatsChanged, func(e *events.Event) error { return e.Decode(&got) })

	b.On("RefreshStatistics", mock.Anything, []string{"a", "b"}).
		Return(map[string]string{"b": "changed"}, nil).Once()
	r.On("Refresh", mock.Anything).Return(nil, errors.New("backend down")).Once()

	res, err := c.RefreshStats(context.Background(), []string{"a", "b"}, Answer(true))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Chunks)
	assert.False(t, res.Reloaded)
	assert.Error(t, res.ReloadErr)

	assert.Equal(t, 2, got.Requested)
	assert.Equal(t, []string{"b"}, got.Changed)
	assert.False(t, got.Partial)
}

func TestCheckTasks(t *testing.T) {
	b, r := new(MockBackend), new(MockReloader)
	bus := events.NewEventBus()
	c := newCoordinator(b, r, WithEvents(bus))

	var checked events.TasksCheckedPayload
	bus.Subscribe(events.EventTasksChecked, func(e *events.Event) error { return e.Decode(&checked) })

	diff := &models.TaskDiff{
		Added:   []models.Task{{UUID: "n1", Label: "New drill"}},
		Removed: []models.Task{{UUID: "o1", Label: "Old drill"}},
	}
	b.On("CheckTasks", mock.Anything, []string{"org-1"}).Return(diff, nil).Once()
	r.On("Refresh", mock.Anything).Return(&tasklist.Snapshot{}, nil).Once()

	res, err := c.CheckTasks(context.Background(), Answer(true))
	require.NoError(t, err)
	assert.Same(t, diff, res.Diff)
	assert.Equal(t, []string{"n1"}, res.Changed)
	assert.True(t, res.Reloaded)
	assert.False(t, res.UpToDate())
	assert.Equal(t, []string{"New drill"}, checked.Added)
	assert.Equal(t, []string{"Old drill"}, checked.Removed)
}

func TestCheckTasksApplicationError(t *testing.T) {
	b, r := new(MockBackend), new(MockReloader)
	c := newCoordinator(b, r)

	b.On("CheckTasks", mock.Anything, mock.Anything).
		Return(nil, apperr.Application("check_sendtasks", "sync in progress")).Once()

	res, err := c.CheckTasks(context.Background(), Answer(true))
	assert.Nil(t, res)
	assert.Equal(t, "sync in progress", apperr.UserMessage(err))
	r.AssertNotCalled(t, "Refresh", mock.Anything)
	assert.False(t, c.Busy())
}

func TestCheckTasksDeclined(t *testing.T) {
	b, r := new(MockBackend), new(MockReloader)
	c := newCoordinator(b, r)

	_, err := c.CheckTasks(context.Background(), Answer(false))
	assert.ErrorIs(t, err, apperr.ErrDeclined)
	b.AssertNotCalled(t, "CheckTasks", mock.Anything, mock.Anything)
}

func TestRefreshTodayCreated(t *testing.T) {
	b, r := new(MockBackend), new(MockReloader)
	c := newCoordinator(b, r)

	b.On("RefreshTodayCreated", mock.Anything, []string{"org-1"}).
		Return(map[string]string{"z": "changed", "m": "unchanged", "a": "changed"}, nil).Once()
	r.On("Refresh", mock.Anything).Return(&tasklist.Snapshot{}, nil).Once()

	res, err := c.RefreshTodayCreated(context.Background(), Answer(true))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Requested)
	assert.Equal(t, []string{"a", "z"}, res.Changed)
	assert.True(t, res.Reloaded)
	r.AssertExpectations(t)
}

func TestTeardownCancelsRunningAction(t *testing.T) {
	b, r := new(MockBackend), new(MockReloader)
	c := newCoordinator(b, r)

	started := make(chan struct{})
	b.On("RefreshTodayCreated", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			close(started)
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, context.Canceled).Once()

	done := make(chan error, 1)
	go func() {
		_, err := c.RefreshTodayCreated(context.Background(), Answer(true))
		done <- err
	}()
	<-started
	c.Teardown()

	err := <-done
	assert.True(t, apperr.IsCancelled(err))
	r.AssertNotCalled(t, "Refresh", mock.Anything)
}

func TestSplit(t *testing.T) {
	ids := []string{"1", "2", "3", "4", "5", "6", "7"}

	assert.Equal(t, [][]string{{"1", "2", "3"}, {"4", "5", "6"}, {"7"}}, split(ids, 3))
	assert.Equal(t, [][]string{{"1"}, {"2"}}, split(ids[:2], 3))
	assert.Equal(t, [][]string{ids}, split(ids, 1))
	assert.Equal(t, [][]string{ids}, split(ids, 0))
	assert.Nil(t, split(nil, 3))

	total := 0
	for _, chunk := range split(ids, 3) {
		total += len(chunk)
	}
	assert.Equal(t, len(ids), total)
}

func TestDedupe(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, dedupe([]string{"a", "", "b", "a"}))
	assert.Empty(t, dedupe(nil))
}

func TestOtherActionRejectedWhileBusy(t *testing.T) {
	b, r := new(MockBackend), new(MockReloader)
	c := newCoordinator(b, r)

	started, unblock := make(chan struct{}), make(chan struct{})
	b.On("RefreshStatistics", mock.Anything, []string{"x"}).
		Run(func(mock.Arguments) {
			close(started)
			<-unblock
		}).
		Return(map[string]string{}, nil).Once()
	r.On("Refresh", mock.Anything).Return(&tasklist.Snapshot{}, nil).Maybe()

	done := make(chan error, 1)
	go func() {
		_, err := c.RefreshStats(context.Background(), []string{"x"}, Answer(true))
		done <- err
	}()
	<-started

	res, err := c.CheckTasks(context.Background(), Answer(true))
	assert.Nil(t, res)
	assert.ErrorIs(t, err, apperr.ErrBusy)
	assert.Equal(t, apperr.KindBusy, apperr.KindOf(err))

	_, err = c.RefreshTodayCreated(context.Background(), Answer(true))
	assert.ErrorIs(t, err, apperr.ErrBusy)
	b.AssertNotCalled(t, "CheckTasks", mock.Anything, mock.Anything)
	b.AssertNotCalled(t, "RefreshTodayCreated", mock.Anything, mock.Anything)

	close(unblock)
	require.NoError(t, <-done)
	assert.False(t, c.Busy())
}
