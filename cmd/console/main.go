package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sendwatch/internal/api"
	"sendwatch/internal/apperr"
	"sendwatch/internal/backend"
	"sendwatch/internal/config"
	"sendwatch/internal/customers"
	"sendwatch/internal/dashboard"
	"sendwatch/internal/domain"
	"sendwatch/internal/events"
	"sendwatch/internal/journal"
	"sendwatch/internal/logging"
	"sendwatch/internal/metrics"
	"sendwatch/internal/notify"
	"sendwatch/internal/poller"
	"sendwatch/internal/session"
	"sendwatch/internal/statsync"
	"sendwatch/internal/tasklist"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	journalDB, err := journal.Open(cfg.Journal.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Str("journal_path", cfg.Journal.Path).Msg("init journal")
		return err
	}
	defer journalDB.Close()
	go pruneJournal(ctx, journalDB, cfg.Journal.RetentionDays, &logger)

	store, redisClient := initSessionStore(ctx, cfg, &logger)
	if redisClient != nil {
		defer func() { _ = session.Close(redisClient) }()
	}

	client := backend.NewClient(cfg.Backend, &logger)
	sessions := session.NewManager(store, client, profileKey(), cfg.Session.TTL, &logger)
	client.UseTokenSource(sessions)

	if s, err := sessions.Restore(ctx); err != nil {
		if errors.Is(err, apperr.ErrNotAuthenticated) {
			logger.Info().Msg("no stored session, waiting for login")
		} else {
			logger.Warn().Err(err).Msg("restore session failed")
		}
	} else {
		logger.Info().Str("email", s.Operator.Email).Msg("session restored")
	}

	bus := events.NewEventBus(events.WithLogger(&logger))
	taskStore := tasklist.NewStore(client, sessions,
		tasklist.WithJournal(journalDB),
		tasklist.WithEvents(bus),
		tasklist.WithLogger(&logger),
	)
	actions := statsync.New(client, taskStore, sessions,
		statsync.WithChunks(cfg.Refresh.ChunkCount),
		statsync.WithJournal(journalDB),
		statsync.WithEvents(bus),
		statsync.WithLogger(&logger),
	)
	board := dashboard.NewBoard(taskStore, actions, bus, cfg.Refresh.PageSize)
	defer board.Teardown()
	accounts := customers.New(client, sessions, customers.WithLogger(&logger))
	defer accounts.Teardown()

	relay := notify.NewRelay(initNotifier(cfg, &logger), &logger)
	relay.Subscribe(bus)
	go relay.Run(ctx)

	startMetrics(ctx, cfg, &logger)

	loggedIn := func() bool { return sessions.Token() != "" }
	if loggedIn() {
		go func() {
			if err := board.Refresh(ctx); err != nil && !apperr.Silent(err) {
				logger.Warn().Err(err).Msg("initial task list load failed")
			}
		}()
	}
	poller.New(taskStore, cfg.Refresh.PollInterval, &logger).When(loggedIn).Start(ctx)

	httpServer := api.NewHTTPServer(cfg.Console, api.Deps{
		Board:     board,
		Customers: accounts,
		Sessions:  sessions,
		Journal:   journalDB,
		Health:    journalDB.PingContext,
	}, &logger)

	return startServer(ctx, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "console-main").Logger()

	return cfg, logger, closer, nil
}

func profileKey() string {
	if key := os.Getenv("SENDWATCH_PROFILE"); key != "" {
		return key
	}
	return session.DefaultKey
}

// initSessionStore prefers Redis and falls back to memory when it is absent
// or unreachable.
func initSessionStore(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (domain.SessionStore, *redis.Client) {
	memory := session.NewMemoryStore()
	if cfg.Session.Redis.Address == "" {
		logger.Info().Msg("redis not configured, sessions are kept in memory")
		return memory, nil
	}

	redisClient := session.NewRedisClient(cfg.Session.Redis)
	if err := session.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing with failover store")
	} else {
		logger.Info().Str("addr", cfg.Session.Redis.Address).Msg("redis connected")
	}

	primary := session.NewRedisStore(redisClient, cfg.Session.KeyPrefix)
	return session.NewFailoverStore(primary, memory, logger), redisClient
}

func initNotifier(cfg *config.Config, logger *zerolog.Logger) domain.Notifier {
	logNotifier := notify.NewLogNotifier(logger)
	tg := cfg.Notify.Telegram
	if tg.BotToken == "" || len(tg.ChatIDs) == 0 {
		return logNotifier
	}

	bot, err := notify.NewTelegramBot(tg)
	if err != nil {
		logger.Warn().Err(err).Msg("telegram init failed, alerts go to the log only")
		return logNotifier
	}
	logger.Info().Str("bot", bot.Self.UserName).Int("chats", len(tg.ChatIDs)).Msg("telegram alerts enabled")
	return notify.Multi{logNotifier, notify.NewTelegramNotifier(bot, tg.ChatIDs)}
}

func pruneJournal(ctx context.Context, db *journal.DB, retentionDays int, logger *zerolog.Logger) {
	if retentionDays <= 0 {
		return
	}

	prune := func() {
		before := time.Now().AddDate(0, 0, -retentionDays)
		if _, err := db.Prune(ctx, before); err != nil {
			logger.Error().Err(err).Msg("journal prune failed")
		}
	}

	prune()
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startServer(ctx context.Context, httpServer *api.HTTPServer, cfg *config.Config, logger *zerolog.Logger) error {
	if !cfg.Console.Enabled {
		logger.Warn().Msg("console API is disabled in config, running background refresh only")
		<-ctx.Done()
		return nil
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()

	logger.Info().Int("http_port", cfg.Console.Port).Msg("console started")

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("http server stopped")
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("console stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
