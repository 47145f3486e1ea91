package session

import (
	"context"
	"testing"
	"time"

	"sendwatch/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStore(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	store := NewRedisStore(client, "sendwatch:session:")
	ctx := context.Background()

	t.Run("SetAndGet", func(t *testing.T) {
		sess := &models.Session{
			ID:       "s1",
			Token:    "jwt",
			Operator: models.Operator{Email: "ops@example.com", Orgs: []string{"o1"}},
		}
		require.NoError(t, store.SetSession(ctx, "default", sess, time.Hour))

		assert.True(t, s.Exists("sendwatch:session:default"))
		assert.Equal(t, time.Hour, s.TTL("sendwatch:session:default"))

		got, err := store.GetSession(ctx, "default")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "jwt", got.Token)
		assert.Equal(t, []string{"o1"}, got.Operator.Orgs)
	})

	t.Run("GetMissing", func(t *testing.T) {
		got, err := store.GetSession(ctx, "nobody")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("Expiry", func(t *testing.T) {
		require.NoError(t, store.SetSession(ctx, "short", &models.Session{ID: "s2"}, time.Minute))
		s.FastForward(2 * time.Minute)
		got, err := store.GetSession(ctx, "short")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("Clear", func(t *testing.T) {
		require.NoError(t, store.SetSession(ctx, "gone", &models.Session{ID: "s3"}, time.Hour))
		require.NoError(t, store.ClearSession(ctx, "gone"))
		got, _ := store.GetSession(ctx, "gone")
		assert.Nil(t, got)
	})

	t.Run("CorruptValue", func(t *testing.T) {
		require.NoError(t, s.Set("sendwatch:session:bad", "{not json"))
		_, err := store.GetSession(ctx, "bad")
		assert.Error(t, err)
	})

	t.Run("Ping", func(t *testing.T) {
		assert.NoError(t, Ping(ctx, client))
	})
}

func TestRedisStoreServerDown(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()
	s.Close()

	store := NewRedisStore(client, "p:")
	_, err = store.GetSession(context.Background(), "k")
	assert.Error(t, err)
	assert.Error(t, Ping(context.Background(), client))
}

func TestNilRedisClient(t *testing.T) {
	store := NewRedisStore(nil, "")
	ctx := context.Background()
	_, err := store.GetSession(ctx, "k")
	assert.Error(t, err)
	assert.Error(t, store.SetSession(ctx, "k", &models.Session{}, 0))
	assert.Error(t, store.ClearSession(ctx, "k"))
	assert.NoError(t, Close(nil))
}
