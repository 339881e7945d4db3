package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/mkarren/botherd/internal/history"
)

// Sink sends worker lifecycle events to ClickHouse via the native client.
type Sink struct {
	conn  driver.Conn
	table string
}

// New connects to addr (host:port) and verifies the connection with a ping.
func New(addr, database, username, password, table string) (*Sink, error) {
	if table == "" {
		table = "worker_history"
	}
	if database == "" {
		database = "default"
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: database,
			Username: username,
			Password: password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse connect: %w", err)
	}
	if err := conn.Ping(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	return &Sink{conn: conn, table: table}, nil
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	query := fmt.Sprintf(
		`INSERT INTO %s (type, occurred_at, worker, pid, state, restarts, exit_info) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.table)
	if err := s.conn.Exec(ctx, query,
		string(e.Type), e.OccurredAt, e.Worker, e.PID, e.State, e.Restarts, e.ExitInfo,
	); err != nil {
		return fmt.Errorf("clickhouse insert: %w", err)
	}
	return nil
}

func (s *Sink) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
