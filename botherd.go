package botherd

import (
	"context"
	"net/http"
	"time"

	cfg "github.com/mkarren/botherd/internal/config"
	"github.com/mkarren/botherd/internal/history"
	"github.com/mkarren/botherd/internal/history/factory"
	"github.com/mkarren/botherd/internal/metrics"
	"github.com/mkarren/botherd/internal/seed"
	iapi "github.com/mkarren/botherd/internal/server"
	"github.com/mkarren/botherd/internal/store"
	"github.com/mkarren/botherd/internal/supervisor"
	"github.com/mkarren/botherd/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Spec = worker.Spec

type Status = worker.Status

type Config = supervisor.Config

type HistorySink = history.Sink

type SeedArtifact = seed.Artifact

// Supervisor is a thin facade over internal/supervisor.Supervisor.
// It provides a stable public API for embedding.
type Supervisor struct{ inner *supervisor.Supervisor }

func New(c Config, specs ...Spec) *Supervisor {
	return &Supervisor{inner: supervisor.New(c, specs...)}
}

// Run blocks until ctx is cancelled, then drains every worker and returns.
func (s *Supervisor) Run(ctx context.Context) error { return s.inner.Run(ctx) }

func (s *Supervisor) Stop(name string, wait time.Duration) error { return s.inner.Stop(name, wait) }
func (s *Supervisor) Status() []Status                           { return s.inner.Status() }
func (s *Supervisor) StatusOf(name string) (Status, error)       { return s.inner.StatusOf(name) }

func LoadConfig(path string) (*cfg.FileConfig, error) { return cfg.Load(path) }

// NewHistorySink selects a lifecycle-event sink from a DSN. Supported
// schemes: postgres://, clickhouse://, everything else is a SQLite path.
func NewHistorySink(dsn string) (HistorySink, error) { return factory.NewFromDSN(dsn) }

// EnsureSeeded downloads any absent seed artifacts for dataDir. Failures are
// non-fatal; workers start against empty stores.
func EnsureSeeded(ctx context.Context, artifacts []SeedArtifact) error {
	return seed.NewLoader().EnsureSeeded(ctx, artifacts)
}

// OpenStore opens a WAL-mode SQLite handle with the shared pragma profile
// for the given write role.
func OpenStore(path string, role store.Role) (*store.Store, error) {
	return store.Open(path, role)
}

// NewHTTPServer starts the observation API for a running supervisor.
func NewHTTPServer(addr, basePath string, s *Supervisor) (*http.Server, error) {
	return iapi.NewServer(addr, basePath, s.inner)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }
