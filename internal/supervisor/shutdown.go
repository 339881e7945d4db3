package supervisor

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mkarren/botherd/internal/worker"
)

// ErrAlreadyRunning is returned by Run when the supervisor was started twice.
var ErrAlreadyRunning = fmt.Errorf("supervisor already running")

// UnknownWorkerError names a lookup for a descriptor that does not exist.
type UnknownWorkerError struct {
	Name string
}

func (e *UnknownWorkerError) Error() string {
	return fmt.Sprintf("unknown worker: %s", e.Name)
}

// drain is the shutdown coordinator: graceful termination to every live
// child, a single shared grace deadline, SIGKILL for anything still alive
// after it. A second termination signal arriving mid-drain skips the
// remaining grace and kills immediately. drain returns only when every
// signaled child has been reaped by its monitor goroutine.
func (s *Supervisor) drain() {
	s.mu.Lock()
	handles := append([]*handle(nil), s.handles...)
	s.mu.Unlock()

	force := make(chan os.Signal, 1)
	signal.Notify(force, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(force)

	var live []*handle
	for _, h := range handles {
		if !h.proc.State().Alive() {
			continue
		}
		h.proc.SetStopRequested(true)
		st := h.proc.Snapshot()
		slog.Info("terminating worker", "worker", h.spec.Name, "pid", st.PID)
		h.proc.Terminate()
		live = append(live, h)
	}
	if len(live) == 0 {
		return
	}

	grace := time.NewTimer(s.cfg.Grace)
	defer grace.Stop()

	for _, h := range live {
		wd := h.proc.WaitDone()
		if wd == nil {
			continue
		}
		select {
		case <-wd:
			slog.Info("worker exited", "worker", h.spec.Name)
		case <-grace.C:
			s.killRemaining(live)
			return
		case <-force:
			slog.Warn("second signal received, killing remaining workers")
			s.killRemaining(live)
			return
		}
	}
}

// killRemaining force-kills every child not yet reaped and waits for the
// monitors to account for them. SIGKILL cannot be ignored, so the waits are
// short and unconditional.
func (s *Supervisor) killRemaining(live []*handle) {
	for _, h := range live {
		wd := h.proc.WaitDone()
		if wd == nil {
			continue
		}
		select {
		case <-wd:
			continue
		default:
		}
		st := h.proc.Snapshot()
		slog.Warn("worker did not exit in time, killing", "worker", h.spec.Name, "pid", st.PID)
		h.proc.Kill()
		<-wd
		h.proc.SetState(worker.StateStopped)
	}
}
