package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/mkarren/botherd/internal/env"
	"github.com/mkarren/botherd/internal/history"
	"github.com/mkarren/botherd/internal/metrics"
	"github.com/mkarren/botherd/internal/process"
	"github.com/mkarren/botherd/internal/worker"
)

const (
	// DefaultBackoff is the fixed wait before relaunching a crashed worker.
	DefaultBackoff = 10 * time.Second
	// DefaultGrace bounds how long shutdown waits for children after SIGTERM.
	DefaultGrace = 12 * time.Second
	// DefaultStagger spaces out the initial launches so three bots don't hit
	// the chat gateway at the same instant.
	DefaultStagger = 2 * time.Second
)

// Config tunes supervisor behavior. Zero values pick the defaults above;
// tests shrink the intervals.
type Config struct {
	Backoff time.Duration
	Grace   time.Duration
	Stagger time.Duration
	Env     *env.Env
	Sinks   []history.Sink
}

func (c Config) withDefaults() Config {
	if c.Backoff <= 0 {
		c.Backoff = DefaultBackoff
	}
	if c.Grace <= 0 {
		c.Grace = DefaultGrace
	}
	if c.Stagger <= 0 {
		c.Stagger = DefaultStagger
	}
	if c.Env == nil {
		c.Env = env.New()
	}
	return c
}

// Supervisor owns the lifecycle of every enabled worker: launch, monitor,
// restart after crashes, and orderly teardown. Each worker gets exactly one
// goroutine that walks its state machine; no global ordering exists between
// workers.
type Supervisor struct {
	cfg Config

	mu      sync.Mutex
	handles []*handle

	wg      sync.WaitGroup
	started bool
}

type handle struct {
	spec worker.Spec
	proc *process.Process
}

// New builds a supervisor over the descriptor set. Disabled descriptors are
// kept for status reporting but never launched.
func New(cfg Config, specs ...worker.Spec) *Supervisor {
	s := &Supervisor{cfg: cfg.withDefaults()}
	for _, sp := range specs {
		s.handles = append(s.handles, &handle{spec: sp, proc: process.New(sp)})
	}
	return s
}

// Run launches all enabled workers and supervises them until ctx is
// canceled, then drains: graceful termination to every live child, a bounded
// grace period, force kill for stragglers. It returns once every child is
// accounted for.
func (s *Supervisor) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.started = true
	handles := append([]*handle(nil), s.handles...)
	s.mu.Unlock()

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, h := range handles {
		if !h.spec.Enabled {
			slog.Info("worker disabled, skipping", "worker", h.spec.Name)
			continue
		}
		s.wg.Add(1)
		go s.runWorker(runCtx, h)
		if s.cfg.Stagger > 0 {
			select {
			case <-time.After(s.cfg.Stagger):
			case <-ctx.Done():
			}
		}
		if ctx.Err() != nil {
			break
		}
	}

	<-ctx.Done()
	slog.Info("shutdown signal received, draining workers")
	cancel()
	s.drain()
	s.wg.Wait()
	slog.Info("all workers stopped")
	return nil
}

// runWorker is the per-worker monitor: it owns every state transition for
// one descriptor and is the only goroutine that waits on its child.
func (s *Supervisor) runWorker(ctx context.Context, h *handle) {
	defer s.wg.Done()
	for {
		if ctx.Err() != nil {
			return
		}
		if err := s.launch(h); err != nil {
			var mc *worker.MissingConfigurationError
			if errors.As(err, &mc) {
				// Will not self-heal; park instead of looping.
				h.proc.SetState(worker.StateRestartPending)
				slog.Error("worker launch blocked on configuration", "worker", h.spec.Name, "error", err)
				s.record(history.EventStop, h, err.Error())
				return
			}
			slog.Error("worker failed to start", "worker", h.spec.Name, "error", err)
			h.proc.SetState(worker.StateRestartPending)
		} else {
			if ctx.Err() != nil {
				// Shutdown raced the launch; the drain pass may have missed
				// this child, so terminate it ourselves before reaping.
				h.proc.SetStopRequested(true)
				h.proc.Terminate()
			}
			exitErr := h.proc.Wait()
			metrics.IncStop(h.spec.Name)
			metrics.RunningAdd(-1)

			if ctx.Err() != nil || h.proc.StopRequested() {
				h.proc.SetState(worker.StateStopped)
				slog.Info("worker stopped", "worker", h.spec.Name, "exit", process.DescribeExit(exitErr))
				s.record(history.EventStop, h, process.DescribeExit(exitErr))
				return
			}

			if process.CleanExit(exitErr) {
				h.proc.SetState(worker.StateExited)
			} else {
				h.proc.SetState(worker.StateCrashed)
				metrics.IncCrash(h.spec.Name)
			}
			slog.Error("worker exited unexpectedly",
				"worker", h.spec.Name,
				"exit", process.DescribeExit(exitErr),
				"restarts", h.proc.Restarts())
			s.record(history.EventStop, h, process.DescribeExit(exitErr))
			h.proc.SetState(worker.StateRestartPending)
		}

		backoff := h.spec.RestartInterval
		if backoff <= 0 {
			backoff = s.cfg.Backoff
		}
		slog.Info("restarting worker", "worker", h.spec.Name, "backoff", backoff)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		h.proc.IncRestarts()
		metrics.IncRestart(h.spec.Name)
	}
}

// launch validates required configuration, builds the command with the
// merged environment, and starts the child.
func (s *Supervisor) launch(h *handle) error {
	merged := s.cfg.Env.Merge(h.spec.Env)
	if err := h.spec.ValidateEnv(merged); err != nil {
		return err
	}
	h.proc.SetState(worker.StateStarting)
	cmd := h.proc.Configure(merged)
	if err := h.proc.Start(cmd); err != nil {
		return err
	}
	h.proc.SetState(worker.StateRunning)
	st := h.proc.Snapshot()
	slog.Info("worker started", "worker", h.spec.Name, "pid", st.PID, "restarts", st.Restarts)
	metrics.IncStart(h.spec.Name)
	metrics.RunningAdd(1)
	s.record(history.EventStart, h, "")
	return nil
}

// Stop terminates one worker on operator request. The worker transitions to
// Stopped and is not restarted. wait bounds the SIGTERM-to-SIGKILL window.
func (s *Supervisor) Stop(name string, wait time.Duration) error {
	h := s.find(name)
	if h == nil {
		return &UnknownWorkerError{Name: name}
	}
	if !h.proc.State().Alive() {
		return nil
	}
	h.proc.SetStopRequested(true)
	h.proc.Terminate()
	wd := h.proc.WaitDone()
	if wd == nil {
		return nil
	}
	select {
	case <-wd:
	case <-time.After(wait):
		h.proc.Kill()
		<-wd
	}
	return nil
}

// Status returns snapshots for every descriptor, enabled or not, in
// configuration order.
func (s *Supervisor) Status() []worker.Status {
	s.mu.Lock()
	handles := append([]*handle(nil), s.handles...)
	s.mu.Unlock()
	out := make([]worker.Status, 0, len(handles))
	for _, h := range handles {
		st := h.proc.Snapshot()
		if st.Name == "" {
			st.Name = h.spec.Name
		}
		out = append(out, st)
	}
	return out
}

// StatusOf returns the snapshot for one worker by name.
func (s *Supervisor) StatusOf(name string) (worker.Status, error) {
	h := s.find(name)
	if h == nil {
		return worker.Status{}, &UnknownWorkerError{Name: name}
	}
	return h.proc.Snapshot(), nil
}

func (s *Supervisor) find(name string) *handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.handles {
		if h.spec.Name == name {
			return h
		}
	}
	return nil
}

func (s *Supervisor) record(t history.EventType, h *handle, exitInfo string) {
	if len(s.cfg.Sinks) == 0 {
		return
	}
	st := h.proc.Snapshot()
	e := history.Event{
		Type:       t,
		OccurredAt: time.Now().UTC(),
		Worker:     h.spec.Name,
		PID:        st.PID,
		State:      string(st.State),
		Restarts:   st.Restarts,
		ExitInfo:   exitInfo,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, sink := range s.cfg.Sinks {
		if err := sink.Send(ctx, e); err != nil {
			slog.Warn("history sink rejected event", "worker", h.spec.Name, "error", err)
		}
	}
}
