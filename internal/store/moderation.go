package store

import (
	"context"
)

// FlaggedMessage is one auto-moderated message recorded by the moderation
// process. MessageID is the natural key, so re-scanning a channel never
// duplicates flags.
type FlaggedMessage struct {
	ID              int64   `db:"id"`
	MessageID       string  `db:"message_id"`
	ChannelID       string  `db:"channel_id"`
	AuthorID        string  `db:"author_id"`
	AuthorName      string  `db:"author_name"`
	OriginalContent string  `db:"original_content"`
	FlagReason      string  `db:"flag_reason"`
	MatchedPatterns string  `db:"matched_patterns"`
	ToxicityScore   float64 `db:"toxicity_score"`
	ActionTaken     string  `db:"action_taken"`
	FlaggedAt       string  `db:"flagged_at"`
	AutoDeleted     bool    `db:"auto_deleted"`
}

// BadWord is one entry of the moderation word list.
type BadWord struct {
	ID         int64  `db:"id"`
	Word       string `db:"word"`
	Severity   int    `db:"severity"`
	Category   string `db:"category"`
	AddedAt    string `db:"added_at"`
	MatchCount int    `db:"match_count"`
}

// AuditEntry is one row of the moderation audit trail.
type AuditEntry struct {
	ID        int64  `db:"id"`
	AuditID   string `db:"audit_id"`
	ActorID   string `db:"actor_id"`
	Action    string `db:"action"`
	TargetID  string `db:"target_id"`
	Reason    string `db:"reason"`
	CreatedAt string `db:"created_at"`
}

// InitModerationSchema creates the moderation tables. Safe to run from any
// process at startup.
func (s *Store) InitModerationSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS flagged_messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			message_id TEXT UNIQUE,
			channel_id TEXT,
			author_id TEXT,
			author_name TEXT,
			original_content TEXT,
			flag_reason TEXT,
			matched_patterns TEXT,
			toxicity_score REAL,
			action_taken TEXT,
			flagged_at TEXT,
			auto_deleted INTEGER DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS idx_flagged_author ON flagged_messages(author_id);`,
		`CREATE TABLE IF NOT EXISTS bad_words (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			word TEXT UNIQUE,
			severity INTEGER DEFAULT 1,
			category TEXT,
			added_at TEXT,
			match_count INTEGER DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS moderation_audit (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			audit_id TEXT UNIQUE NOT NULL,
			actor_id TEXT NOT NULL,
			action TEXT NOT NULL,
			target_id TEXT,
			reason TEXT,
			created_at TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_audit_actor ON moderation_audit(actor_id);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

// InsertFlaggedMessage records one flag; duplicates on message_id are
// silently ignored.
func (s *Store) InsertFlaggedMessage(ctx context.Context, f FlaggedMessage) (bool, error) {
	if err := s.writable("flagged_messages"); err != nil {
		return false, err
	}
	res, err := s.db.NamedExecContext(ctx, `
		INSERT OR IGNORE INTO flagged_messages
			(message_id, channel_id, author_id, author_name, original_content,
			 flag_reason, matched_patterns, toxicity_score, action_taken, flagged_at, auto_deleted)
		VALUES
			(:message_id, :channel_id, :author_id, :author_name, :original_content,
			 :flag_reason, :matched_patterns, :toxicity_score, :action_taken, :flagged_at, :auto_deleted);`, f)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// AddBadWord adds a word to the list; re-adding an existing word is a no-op.
func (s *Store) AddBadWord(ctx context.Context, w BadWord) error {
	if err := s.writable("bad_words"); err != nil {
		return err
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT OR IGNORE INTO bad_words (word, severity, category, added_at, match_count)
		VALUES (:word, :severity, :category, :added_at, :match_count);`, w)
	return err
}

// BadWords returns the full word list ordered by severity; any role may read.
func (s *Store) BadWords(ctx context.Context) ([]BadWord, error) {
	var out []BadWord
	err := s.db.SelectContext(ctx, &out, `
		SELECT id, word,
		       severity,
		       COALESCE(category, '') AS category,
		       COALESCE(added_at, '') AS added_at,
		       match_count
		FROM bad_words
		ORDER BY severity DESC, word;`)
	return out, err
}

// AppendAudit writes one audit entry keyed on audit_id.
func (s *Store) AppendAudit(ctx context.Context, e AuditEntry) (bool, error) {
	if err := s.writable("moderation_audit"); err != nil {
		return false, err
	}
	res, err := s.db.NamedExecContext(ctx, `
		INSERT OR IGNORE INTO moderation_audit (audit_id, actor_id, action, target_id, reason, created_at)
		VALUES (:audit_id, :actor_id, :action, :target_id, :reason, :created_at);`, e)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// FlaggedByAuthor returns flags for one author, newest first.
func (s *Store) FlaggedByAuthor(ctx context.Context, authorID string, limit int) ([]FlaggedMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	out := make([]FlaggedMessage, 0, limit)
	err := s.db.SelectContext(ctx, &out, `
		SELECT id, message_id,
		       COALESCE(channel_id, '') AS channel_id,
		       COALESCE(author_id, '') AS author_id,
		       COALESCE(author_name, '') AS author_name,
		       COALESCE(original_content, '') AS original_content,
		       COALESCE(flag_reason, '') AS flag_reason,
		       COALESCE(matched_patterns, '') AS matched_patterns,
		       COALESCE(toxicity_score, 0) AS toxicity_score,
		       COALESCE(action_taken, '') AS action_taken,
		       COALESCE(flagged_at, '') AS flagged_at,
		       auto_deleted
		FROM flagged_messages
		WHERE author_id = ?
		ORDER BY flagged_at DESC
		LIMIT ?;`, authorID, limit)
	return out, err
}
