package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// ErrStorageUnavailable marks a store file that is unreachable or corrupt
// beyond journal recovery. Fatal to the affected worker, not the supervisor.
var ErrStorageUnavailable = errors.New("storage unavailable")

// ErrNotWriter is returned when a process role attempts to write a table it
// does not own under the write-ownership map.
var ErrNotWriter = errors.New("role does not own writes for table")

// busyTimeout is how long a connection waits on a held write lock before
// surfacing contention as an error.
const busyTimeout = 5000 * time.Millisecond

// Role identifies which logical process a connection belongs to. Exactly one
// role owns INSERT/UPDATE for each shared table; everyone else reads.
type Role string

const (
	RoleBotLive   Role = "bot-live"  // primary bot capturing live gateway events
	RoleImporter  Role = "importer"  // offline historical-import tooling
	RoleModerator Role = "moderator" // moderation process
	RolePersona   Role = "persona"   // persona/RAG bot, read-only everywhere
)

// tableWriters is the static write-ownership map. It is deployment
// convention made explicit: the storage engine serializes writers on its
// own, this map removes cross-process write races at the application level.
var tableWriters = map[string]Role{
	"live_messages":    RoleBotLive,
	"messages":         RoleImporter,
	"channels":         RoleImporter,
	"users":            RoleImporter,
	"flagged_messages": RoleModerator,
	"bad_words":        RoleModerator,
	"moderation_audit": RoleModerator,
}

// Owner returns the role allowed to write table.
func Owner(table string) (Role, bool) {
	r, ok := tableWriters[table]
	return r, ok
}

// CanWrite reports whether role owns writes for table. Unknown tables have
// no writer.
func CanWrite(role Role, table string) bool {
	owner, ok := tableWriters[table]
	return ok && owner == role
}

// Tables returns every table in the ownership map, for diagnostics.
func Tables() []string {
	out := make([]string, 0, len(tableWriters))
	for t := range tableWriters {
		out = append(out, t)
	}
	return out
}

// Store is a role-scoped connection to one on-disk SQLite database. Every
// connection applies WAL journaling, a 5s busy timeout, and NORMAL
// synchronous mode, so three separate bot processes can read and write the
// same files without lock contention surfacing as failures. There is no
// process-wide singleton; each owner opens its own scoped handle.
type Store struct {
	db   *sqlx.DB
	path string
	role Role
}

// Open connects to the database file at path on behalf of role. It fails
// with an error wrapping ErrStorageUnavailable when the file cannot be
// opened or the database does not respond.
func Open(path string, role Role) (*Store, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, fmt.Errorf("%w: empty path", ErrStorageUnavailable)
	}
	db, err := sqlx.Connect("sqlite", dsn(p))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrStorageUnavailable, p, err)
	}
	// A single writer connection keeps lock churn down; WAL still lets every
	// other process read concurrently.
	db.SetMaxOpenConns(1)
	return &Store{db: db, path: p, role: role}, nil
}

// dsn appends the connection pragmas required by the shared-access contract.
func dsn(path string) string {
	return "file:" + path +
		"?_pragma=journal_mode(WAL)" +
		fmt.Sprintf("&_pragma=busy_timeout(%d)", busyTimeout.Milliseconds()) +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=foreign_keys(ON)"
}

func (s *Store) Path() string { return s.path }
func (s *Store) Role() Role   { return s.role }

// Ping verifies the connection is live.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// writable guards every mutating statement against the ownership map.
func (s *Store) writable(table string) error {
	if !CanWrite(s.role, table) {
		return fmt.Errorf("%w: role %s, table %s", ErrNotWriter, s.role, table)
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }
