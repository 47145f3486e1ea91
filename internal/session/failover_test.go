package session

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"sendwatch/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) GetSession(ctx context.Context, key string) (*models.Session, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Session), args.Error(1)
}

func (m *mockStore) SetSession(ctx context.Context, key string, s *models.Session, ttl time.Duration) error {
	args := m.Called(ctx, key, s, ttl)
	return args.Error(0)
}

func (m *mockStore) ClearSession(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func TestFailoverStore(t *testing.T) {
	primary := new(mockStore)
	fallback := new(mockStore)
	logger := zerolog.New(io.Discard)
	store := NewFailoverStore(primary, fallback, &logger)
	ctx := context.Background()
	sess := &models.Session{ID: "s1"}

	t.Run("PrimarySuccess", func(t *testing.T) {
		primary.On("GetSession", ctx, "k").Return(sess, nil).Once()

		got, err := store.GetSession(ctx, "k")
		assert.NoError(t, err)
		assert.Equal(t, sess, got)
		assert.False(t, store.Degraded())
	})

	t.Run("PrimaryFailureFallsBack", func(t *testing.T) {
		primary.On("GetSession", ctx, "k").Return(nil, errors.New("redis down")).Once()
		fallback.On("GetSession", ctx, "k").Return(sess, nil).Once()

		got, err := store.GetSession(ctx, "k")
		assert.NoError(t, err)
		assert.Equal(t, sess, got)
		assert.True(t, store.Degraded())
	})

	t.Run("StaysOnFallbackWhileDown", func(t *testing.T) {
		fallback.On("SetSession", ctx, "k", sess, time.Hour).Return(nil).Once()

		err := store.SetSession(ctx, "k", sess, time.Hour)
		assert.NoError(t, err)
		primary.AssertNotCalled(t, "SetSession", ctx, "k", sess, time.Hour)
	})

	t.Run("RecoversAfterProbeInterval", func(t *testing.T) {
		store.lastCheck.Store(time.Now().Add(-2 * recoverAfter).UnixNano())
		primary.On("GetSession", ctx, "k").Return(sess, nil).Once()

		got, err := store.GetSession(ctx, "k")
		assert.NoError(t, err)
		assert.Equal(t, sess, got)
		assert.False(t, store.Degraded())
	})

	t.Run("ClearHitsBoth", func(t *testing.T) {
		fallback.On("ClearSession", ctx, "k").Return(nil).Once()
		primary.On("ClearSession", ctx, "k").Return(nil).Once()

		assert.NoError(t, store.ClearSession(ctx, "k"))
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})
}

func TestFailoverSetFallsBack(t *testing.T) {
	primary := new(mockStore)
	fallback := new(mockStore)
	store := NewFailoverStore(primary, fallback, nil)
	ctx := context.Background()
	sess := &models.Session{ID: "s1"}

	primary.On("SetSession", ctx, "k", sess, time.Minute).Return(errors.New("timeout")).Once()
	fallback.On("SetSession", ctx, "k", sess, time.Minute).Return(nil).Once()

	assert.NoError(t, store.SetSession(ctx, "k", sess, time.Minute))
	assert.True(t, store.Degraded())
	fallback.AssertExpectations(t)
}
