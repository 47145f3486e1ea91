package main

import (
	"context"
	"fmt"
	"io"

	"sendwatch/internal/backend"
	"sendwatch/internal/config"
	"sendwatch/internal/customers"
	"sendwatch/internal/dashboard"
	"sendwatch/internal/domain"
	"sendwatch/internal/journal"
	"sendwatch/internal/logging"
	"sendwatch/internal/session"
	"sendwatch/internal/statsync"
	"sendwatch/internal/tasklist"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// app is the wiring shared by every command.
type app struct {
	cfg      *config.Config
	logger   zerolog.Logger
	sessions *session.Manager
	journal  *journal.DB
	board    *dashboard.Board
	accounts *customers.Service

	closers []io.Closer
}

func newApp(ctx context.Context, opts *rootOptions) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	// stdout carries command output
	if cfg.Logging.Output != "file" {
		cfg.Logging.Output = "stderr"
	}
	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	a := &app{cfg: cfg, logger: baseLogger.With().Str("component", "sendctl").Logger()}
	if closer != nil {
		a.closers = append(a.closers, closer)
	}

	store, err := a.sessionStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.journal, err = journal.Open(cfg.Journal.Path, &a.logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, a.journal)

	client := backend.NewClient(cfg.Backend, &a.logger)
	a.sessions = session.NewManager(store, client, opts.profile, cfg.Session.TTL, &a.logger)
	client.UseTokenSource(a.sessions)

	tasks := tasklist.NewStore(client, a.sessions,
		tasklist.WithJournal(a.journal),
		tasklist.WithLogger(&a.logger),
	)
	actions := statsync.New(client, tasks, a.sessions,
		statsync.WithChunks(cfg.Refresh.ChunkCount),
		statsync.WithJournal(a.journal),
		statsync.WithLogger(&a.logger),
	)
	a.board = dashboard.NewBoard(tasks, actions, nil, cfg.Refresh.PageSize)
	a.accounts = customers.New(client, a.sessions, customers.WithLogger(&a.logger))
	return a, nil
}

// sessionStore needs Redis: a memory store would forget the login as soon as
// the command exits.
func (a *app) sessionStore(ctx context.Context) (domain.SessionStore, error) {
	if a.cfg.Session.Redis.Address == "" {
		a.logger.Warn().Msg("redis not configured, login will not outlive this command")
		return session.NewMemoryStore(), nil
	}

	client := session.NewRedisClient(a.cfg.Session.Redis)
	if err := session.Ping(ctx, client); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis unavailable: %w", err)
	}
	a.closers = append(a.closers, redisCloser{client})
	return session.NewRedisStore(client, a.cfg.Session.KeyPrefix), nil
}

type redisCloser struct{ client *redis.Client }

func (c redisCloser) Close() error { return session.Close(c.client) }

// authenticated restores the stored session and loads the task list.
func (a *app) authenticated(ctx context.Context) error {
	if _, err := a.sessions.Restore(ctx); err != nil {
		return err
	}
	return a.board.Refresh(ctx)
}

// withSession runs fn once the stored session is restored, without loading
// the task list.
func withSession(ctx context.Context, opts *rootOptions, fn func(*app) error) error {
	return withApp(ctx, opts, false, func(a *app) error {
		if _, err := a.sessions.Restore(ctx); err != nil {
			return err
		}
		return fn(a)
	})
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i].Close()
	}
}

// withApp runs fn against a fully wired app.
func withApp(ctx context.Context, opts *rootOptions, login bool, fn func(*app) error) error {
	a, err := newApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	if login {
		if err := a.authenticated(ctx); err != nil {
			return err
		}
	}
	return fn(a)
}
