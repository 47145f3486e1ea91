package session

import (
	"context"
	"sync"
	"time"

	"sendwatch/internal/models"
)

type memoryEntry struct {
	session   *models.Session
	expiresAt time.Time
}

// MemoryStore keeps sessions in process memory.
type MemoryStore struct {
	sessions sync.Map
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (r *MemoryStore) GetSession(ctx context.Context, key string) (*models.Session, error) {
	val, ok := r.sessions.Load(key)
	if !ok {
		return nil, nil
	}
	entry := val.(*memoryEntry)
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		r.sessions.Delete(key)
		return nil, nil
	}
	return entry.session, nil
}

func (r *MemoryStore) SetSession(ctx context.Context, key string, s *models.Session, ttl time.Duration) error {
	entry := &memoryEntry{session: s}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	r.sessions.Store(key, entry)
	return nil
}

func (r *MemoryStore) ClearSession(ctx context.Context, key string) error {
	r.sessions.Delete(key)
	return nil
}
