package factory

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/mkarren/botherd/internal/history"
	sq "github.com/mkarren/botherd/internal/history/sqlite"
)

func TestEmptyDSN(t *testing.T) {
	if _, err := NewFromDSN("   "); err == nil {
		t.Fatalf("expected error for empty DSN")
	}
}

func TestDefaultIsSQLitePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	sink, err := NewFromDSN(path)
	if err != nil {
		t.Fatalf("sqlite sink: %v", err)
	}
	t.Cleanup(func() { _ = sink.Close() })
	if _, ok := sink.(*sq.Sink); !ok {
		t.Fatalf("expected sqlite sink, got %T", sink)
	}
	e := history.Event{Type: history.EventStart, OccurredAt: time.Now().UTC(), Worker: "w", PID: 1, State: "running"}
	if err := sink.Send(context.Background(), e); err != nil {
		t.Fatalf("send: %v", err)
	}
}
