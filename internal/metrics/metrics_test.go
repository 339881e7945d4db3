package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterAndCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	// Second call is a no-op, not a duplicate registration error.
	if err := Register(reg); err != nil {
		t.Fatalf("re-register: %v", err)
	}

	IncStart("analytics-bot")
	IncStart("analytics-bot")
	IncCrash("analytics-bot")
	IncRestart("analytics-bot")
	IncStop("analytics-bot")
	RunningAdd(1)
	RunningAdd(-1)

	if got := testutil.ToFloat64(workerStarts.WithLabelValues("analytics-bot")); got < 2 {
		t.Fatalf("starts_total = %v, want >= 2", got)
	}
	if got := testutil.ToFloat64(workerCrashes.WithLabelValues("analytics-bot")); got < 1 {
		t.Fatalf("crashes_total = %v, want >= 1", got)
	}
	if got := testutil.ToFloat64(runningWorkers); got != 0 {
		t.Fatalf("running gauge = %v, want 0", got)
	}
}
