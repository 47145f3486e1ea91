package session

import (
	"context"
	"sync/atomic"
	"time"

	"sendwatch/internal/domain"
	"sendwatch/internal/models"

	"github.com/rs/zerolog"
)

const recoverAfter = time.Minute

// FailoverStore uses primary until it fails, then serves from fallback and
// tries primary again once recoverAfter has elapsed.
type FailoverStore struct {
	primary   domain.SessionStore
	fallback  domain.SessionStore
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
}

func NewFailoverStore(primary, fallback domain.SessionStore, logger *zerolog.Logger) *FailoverStore {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &FailoverStore{primary: primary, fallback: fallback, logger: logger}
}

func (r *FailoverStore) markDown(err error) {
	r.logger.Error().Err(err).Msg("Primary session store failed, falling back to memory")
	r.isDown.Store(true)
	r.lastCheck.Store(time.Now().UnixNano())
}

func (r *FailoverStore) shouldProbe() bool {
	return time.Since(time.Unix(0, r.lastCheck.Load())) > recoverAfter
}

func (r *FailoverStore) GetSession(ctx context.Context, key string) (*models.Session, error) {
	if !r.isDown.Load() {
		s, err := r.primary.GetSession(ctx, key)
		if err == nil {
			return s, nil
		}
		r.markDown(err)
	}

	if r.isDown.Load() && r.shouldProbe() {
		s, err := r.primary.GetSession(ctx, key)
		if err == nil {
			r.isDown.Store(false)
			r.logger.Info().Msg("Primary session store recovered")
			return s, nil
		}
		r.lastCheck.Store(time.Now().UnixNano())
	}

	return r.fallback.GetSession(ctx, key)
}

func (r *FailoverStore) SetSession(ctx context.Context, key string, s *models.Session, ttl time.Duration) error {
	if !r.isDown.Load() {
		err := r.primary.SetSession(ctx, key, s, ttl)
		if err == nil {
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.SetSession(ctx, key, s, ttl)
}

func (r *FailoverStore) ClearSession(ctx context.Context, key string) error {
	// clear both so a recovered primary cannot resurrect a logged-out session
	fbErr := r.fallback.ClearSession(ctx, key)
	if !r.isDown.Load() {
		err := r.primary.ClearSession(ctx, key)
		if err == nil {
			return fbErr
		}
		r.markDown(err)
	}
	return fbErr
}

// Degraded reports whether the fallback is serving.
func (r *FailoverStore) Degraded() bool {
	return r.isDown.Load()
}
