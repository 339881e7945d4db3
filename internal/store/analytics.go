package store

import (
	"context"
	"database/sql"
)

// ArchivedMessage is one row of the historical-import table, bulk loaded
// from chat-export JSON by the offline importer. MessageID is the natural
// key; re-running an import dedupes silently.
type ArchivedMessage struct {
	ID            int64   `db:"id"`
	MessageID     string  `db:"message_id"`
	ChannelID     string  `db:"channel_id"`
	ChannelName   string  `db:"channel_name"`
	AuthorID      string  `db:"author_id"`
	AuthorName    string  `db:"author_name"`
	AuthorBot     bool    `db:"author_bot"`
	Content       string  `db:"content"`
	Timestamp     string  `db:"timestamp"`
	TimestampUnix float64 `db:"timestamp_unix"`
	IsReply       bool    `db:"is_reply"`
	ReplyToID     string  `db:"reply_to_id"`
	WordCount     int     `db:"word_count"`
	CharCount     int     `db:"char_count"`
}

// LiveMessage is one row of the live-events table, captured in real time by
// the primary bot's message handler.
type LiveMessage struct {
	ID               int64   `db:"id"`
	MessageID        string  `db:"message_id"`
	ChannelID        string  `db:"channel_id"`
	AuthorID         string  `db:"author_id"`
	AuthorName       string  `db:"author_name"`
	Content          string  `db:"content"`
	Timestamp        string  `db:"timestamp"`
	IsReply          bool    `db:"is_reply"`
	ReplyToMessageID string  `db:"reply_to_message_id"`
	CreatedAt        float64 `db:"created_at"`
}

// Channel is per-channel metadata maintained by the importer.
type Channel struct {
	ChannelID    string `db:"channel_id"`
	ChannelName  string `db:"channel_name"`
	Category     string `db:"category"`
	MessageCount int    `db:"message_count"`
	LastUpdated  string `db:"last_updated"`
}

// User is per-author metadata maintained by the importer.
type User struct {
	UserID       string `db:"user_id"`
	Username     string `db:"username"`
	DisplayName  string `db:"display_name"`
	MessageCount int    `db:"message_count"`
	FirstSeen    string `db:"first_seen"`
	LastSeen     string `db:"last_seen"`
}

// InitAnalyticsSchema creates the analytics tables and indexes. Safe to run
// from any process at startup; everything is IF NOT EXISTS.
func (s *Store) InitAnalyticsSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY,
			message_id TEXT UNIQUE,
			channel_id TEXT,
			channel_name TEXT,
			author_id TEXT,
			author_name TEXT,
			author_bot INTEGER DEFAULT 0,
			content TEXT,
			timestamp TEXT,
			timestamp_unix REAL,
			is_reply INTEGER DEFAULT 0,
			reply_to_id TEXT,
			word_count INTEGER DEFAULT 0,
			char_count INTEGER DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS idx_channel_id ON messages(channel_id);`,
		`CREATE INDEX IF NOT EXISTS idx_author_id ON messages(author_id);`,
		`CREATE INDEX IF NOT EXISTS idx_timestamp ON messages(timestamp_unix);`,
		`CREATE INDEX IF NOT EXISTS idx_channel_timestamp ON messages(channel_id, timestamp_unix);`,
		`CREATE TABLE IF NOT EXISTS live_messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			message_id TEXT UNIQUE NOT NULL,
			channel_id TEXT NOT NULL,
			author_id TEXT NOT NULL,
			author_name TEXT,
			content TEXT,
			timestamp TEXT,
			is_reply INTEGER DEFAULT 0,
			reply_to_message_id TEXT,
			created_at REAL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_live_channel ON live_messages(channel_id);`,
		`CREATE INDEX IF NOT EXISTS idx_live_author ON live_messages(author_id);`,
		`CREATE INDEX IF NOT EXISTS idx_live_timestamp ON live_messages(created_at);`,
		`CREATE TABLE IF NOT EXISTS channels (
			channel_id TEXT PRIMARY KEY,
			channel_name TEXT,
			category TEXT,
			message_count INTEGER DEFAULT 0,
			last_updated TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS users (
			user_id TEXT PRIMARY KEY,
			username TEXT,
			display_name TEXT,
			message_count INTEGER DEFAULT 0,
			first_seen TEXT,
			last_seen TEXT
		);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

// InsertLiveMessage records one live-captured message. Duplicate gateway
// deliveries for the same message id are ignored; the return reports whether
// a row was actually written.
func (s *Store) InsertLiveMessage(ctx context.Context, m LiveMessage) (bool, error) {
	if err := s.writable("live_messages"); err != nil {
		return false, err
	}
	res, err := s.db.NamedExecContext(ctx, `
		INSERT OR IGNORE INTO live_messages
			(message_id, channel_id, author_id, author_name, content, timestamp, is_reply, reply_to_message_id, created_at)
		VALUES
			(:message_id, :channel_id, :author_id, :author_name, :content, :timestamp, :is_reply, :reply_to_message_id, :created_at);`, m)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// InsertArchivedMessages bulk-loads historical rows inside one transaction,
// deduplicating on message_id. Returns the number of new rows.
func (s *Store) InsertArchivedMessages(ctx context.Context, msgs []ArchivedMessage) (int64, error) {
	if err := s.writable("messages"); err != nil {
		return 0, err
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	var inserted int64
	for _, m := range msgs {
		res, err := tx.NamedExecContext(ctx, `
			INSERT OR IGNORE INTO messages
				(message_id, channel_id, channel_name, author_id, author_name, author_bot,
				 content, timestamp, timestamp_unix, is_reply, reply_to_id, word_count, char_count)
			VALUES
				(:message_id, :channel_id, :channel_name, :author_id, :author_name, :author_bot,
				 :content, :timestamp, :timestamp_unix, :is_reply, :reply_to_id, :word_count, :char_count);`, m)
		if err != nil {
			_ = tx.Rollback()
			return 0, err
		}
		n, _ := res.RowsAffected()
		inserted += n
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

// UpsertChannel refreshes channel metadata.
func (s *Store) UpsertChannel(ctx context.Context, c Channel) error {
	if err := s.writable("channels"); err != nil {
		return err
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO channels (channel_id, channel_name, category, message_count, last_updated)
		VALUES (:channel_id, :channel_name, :category, :message_count, :last_updated)
		ON CONFLICT(channel_id) DO UPDATE SET
			channel_name=excluded.channel_name,
			category=excluded.category,
			message_count=excluded.message_count,
			last_updated=excluded.last_updated;`, c)
	return err
}

// UpsertUser refreshes author metadata.
func (s *Store) UpsertUser(ctx context.Context, u User) error {
	if err := s.writable("users"); err != nil {
		return err
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO users (user_id, username, display_name, message_count, first_seen, last_seen)
		VALUES (:user_id, :username, :display_name, :message_count, :first_seen, :last_seen)
		ON CONFLICT(user_id) DO UPDATE SET
			username=excluded.username,
			display_name=excluded.display_name,
			message_count=excluded.message_count,
			last_seen=excluded.last_seen;`, u)
	return err
}

// RecentLiveMessages returns the newest live rows, any role may call it.
func (s *Store) RecentLiveMessages(ctx context.Context, limit int) ([]LiveMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	out := make([]LiveMessage, 0, limit)
	err := s.db.SelectContext(ctx, &out, `
		SELECT id, message_id, channel_id, author_id,
		       COALESCE(author_name, '') AS author_name,
		       COALESCE(content, '') AS content,
		       COALESCE(timestamp, '') AS timestamp,
		       is_reply,
		       COALESCE(reply_to_message_id, '') AS reply_to_message_id,
		       COALESCE(created_at, 0) AS created_at
		FROM live_messages
		ORDER BY created_at DESC
		LIMIT ?;`, limit)
	return out, err
}

// CountRows reports the row count for one owned table; used by import
// tooling and tests.
func (s *Store) CountRows(ctx context.Context, table string) (int64, error) {
	if _, ok := Owner(table); !ok {
		return 0, sql.ErrNoRows
	}
	var n int64
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM `+table+`;`)
	return n, err
}
