package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mkarren/botherd/internal/history"
)

// Sink appends worker lifecycle events to a SQLite file, normally living on
// the same persistent volume as the bot databases. WAL plus a busy timeout
// keep it safe next to the bots' own connections.
type Sink struct {
	db *sql.DB
}

// New opens (or creates) the history database at path and ensures the schema.
// Use ":memory:" for tests.
func New(path string) (*Sink, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty sqlite history path")
	}
	db, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	_, _ = db.Exec("PRAGMA journal_mode=WAL;")
	_, _ = db.Exec("PRAGMA busy_timeout=5000;")
	s := &Sink{db: db}
	if err := s.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS worker_history(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			type TEXT NOT NULL,
			occurred_at TIMESTAMP NOT NULL,
			worker TEXT NOT NULL,
			pid INTEGER NOT NULL,
			state TEXT NOT NULL,
			restarts INTEGER NOT NULL,
			exit_info TEXT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_worker_history_worker ON worker_history(worker);`,
		`CREATE INDEX IF NOT EXISTS idx_worker_history_occurred ON worker_history(occurred_at);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	var exitInfo sql.NullString
	if e.ExitInfo != "" {
		exitInfo = sql.NullString{String: e.ExitInfo, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO worker_history(type, occurred_at, worker, pid, state, restarts, exit_info)
		VALUES(?, ?, ?, ?, ?, ?, ?);`,
		string(e.Type), e.OccurredAt.UTC(), e.Worker, e.PID, e.State, e.Restarts, exitInfo)
	return err
}

// ByWorker returns the most recent events for one worker, newest first.
func (s *Sink) ByWorker(ctx context.Context, worker string, limit int) ([]history.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT type, occurred_at, worker, pid, state, restarts, COALESCE(exit_info, '')
		FROM worker_history
		WHERE worker=?
		ORDER BY occurred_at DESC, id DESC
		LIMIT ?;`, worker, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	out := make([]history.Event, 0, limit)
	for rows.Next() {
		var e history.Event
		var typ string
		var occurred time.Time
		if err := rows.Scan(&typ, &occurred, &e.Worker, &e.PID, &e.State, &e.Restarts, &e.ExitInfo); err != nil {
			return nil, err
		}
		e.Type = history.EventType(typ)
		e.OccurredAt = occurred
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Sink) Close() error { return s.db.Close() }
