package poller

import (
	"context"
	"time"

	"sendwatch/internal/apperr"
	"sendwatch/internal/logging"
	"sendwatch/internal/tasklist"

	"github.com/rs/zerolog"
)

// Refresher reloads the task list.
type Refresher interface {
	Refresh(ctx context.Context) (*tasklist.Snapshot, error)
	Refreshing() bool
}

// Poller periodically reloads the task list in the background.
type Poller struct {
	store    Refresher
	interval time.Duration
	ready    func() bool
	logger   zerolog.Logger
}

func New(store Refresher, interval time.Duration, logger *zerolog.Logger) *Poller {
	l := logging.Component(logger, "poller")
	return &Poller{store: store, interval: interval, logger: l}
}

// When makes polling conditional on ready, checked on every tick.
func (p *Poller) When(ready func() bool) *Poller {
	p.ready = ready
	return p
}

// Start launches the polling loop. A non-positive interval disables polling.
func (p *Poller) Start(ctx context.Context) {
	if p == nil || p.interval <= 0 {
		return
	}
	go p.Run(ctx)
}

// Run blocks until ctx is done. It returns at once when the interval is not
// positive.
func (p *Poller) Run(ctx context.Context) {
	if p.interval <= 0 {
		p.logger.Debug().Dur("interval", p.interval).Msg("polling disabled")
		return
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	if p.ready != nil && !p.ready() {
		return
	}
	// A refresh already in flight wins; starting another would supersede it.
	if p.store.Refreshing() {
		p.logger.Debug().Msg("refresh in flight, skipping poll")
		return
	}

	snap, err := p.store.Refresh(ctx)
	if err != nil {
		if apperr.Silent(err) {
			return
		}
		p.logger.Warn().Err(err).Msg("poll refresh failed")
		return
	}
	p.logger.Debug().Int("tasks", len(snap.Tasks)).Msg("poll refresh committed")
}
