package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"sendwatch/internal/models"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// DB persists refresh sessions to SQLite.
type DB struct {
	db     *sql.DB
	logger zerolog.Logger
}

func Open(path string, logger *zerolog.Logger) (*DB, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	// single writer; sqlite serialises anyway
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to journal: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "journal").Logger()
	}
	l.Info().Str("path", path).Msg("journal initialized")

	return &DB{db: db, logger: l}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS refresh_sessions (
            id TEXT PRIMARY KEY,
            kind TEXT NOT NULL,
            state TEXT NOT NULL,
            started_at DATETIME NOT NULL,
            finished_at DATETIME,
            task_count INTEGER NOT NULL DEFAULT 0,
            error TEXT NOT NULL DEFAULT ''
        )`,
		`CREATE INDEX IF NOT EXISTS idx_refresh_sessions_started_at ON refresh_sessions(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_refresh_sessions_kind ON refresh_sessions(kind)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

// Record inserts or updates a session by ID.
func (d *DB) Record(ctx context.Context, s *models.RefreshSession) error {
	var finished interface{}
	if s.FinishedAt != nil {
		finished = s.FinishedAt.UTC()
	}

	_, err := d.db.ExecContext(ctx, `
        INSERT INTO refresh_sessions (id, kind, state, started_at, finished_at, task_count, error)
        VALUES (?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            state = excluded.state,
            finished_at = excluded.finished_at,
            task_count = excluded.task_count,
            error = excluded.error
    `, s.ID, string(s.Kind), string(s.State), s.StartedAt.UTC(), finished, s.TaskCount, s.Error)
	if err != nil {
		return fmt.Errorf("record refresh session %s: %w", s.ID, err)
	}
	return nil
}

// Recent returns up to limit sessions, newest first.
func (d *DB) Recent(ctx context.Context, limit int) ([]*models.RefreshSession, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := d.db.QueryContext(ctx, `
        SELECT id, kind, state, started_at, finished_at, task_count, error
        FROM refresh_sessions
        ORDER BY started_at DESC
        LIMIT ?
    `, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]*models.RefreshSession, 0)
	for rows.Next() {
		var (
			s        models.RefreshSession
			kind     string
			state    string
			finished sql.NullTime
		)
		if err := rows.Scan(&s.ID, &kind, &state, &s.StartedAt, &finished, &s.TaskCount, &s.Error); err != nil {
			return nil, err
		}
		s.Kind = models.RefreshKind(kind)
		s.State = models.RefreshState(state)
		if finished.Valid {
			t := finished.Time
			s.FinishedAt = &t
		}
		sessions = append(sessions, &s)
	}
	return sessions, rows.Err()
}

// Prune deletes finished sessions that started before cutoff.
func (d *DB) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := d.db.ExecContext(ctx, `
        DELETE FROM refresh_sessions
        WHERE started_at < ? AND state != ?
    `, before.UTC(), string(models.RefreshRunning))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		d.logger.Info().Int64("deleted", n).Time("before", before).Msg("journal pruned")
	}
	return n, nil
}

func (d *DB) PingContext(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func (d *DB) Close() error {
	return d.db.Close()
}
