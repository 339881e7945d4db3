package process

import (
	"errors"
	"os/exec"
	"syscall"
	"testing"
	"time"

	"github.com/mkarren/botherd/internal/worker"
)

func TestNewStartsRestartPending(t *testing.T) {
	p := New(worker.Spec{Name: "bot"})
	if st := p.Snapshot(); st.State != worker.StateRestartPending || st.Name != "bot" {
		t.Fatalf("unexpected initial status: %+v", st)
	}
}

func TestStartWaitCleanExit(t *testing.T) {
	p := New(worker.Spec{Name: "ok", Command: "true"})
	cmd := p.Configure(nil)
	if cmd.SysProcAttr == nil || !cmd.SysProcAttr.Setpgid {
		t.Fatalf("expected Setpgid process group")
	}
	if err := p.Start(cmd); err != nil {
		t.Fatalf("start: %v", err)
	}
	if p.Snapshot().PID <= 0 {
		t.Fatalf("missing pid")
	}
	err := p.Wait()
	if !CleanExit(err) {
		t.Fatalf("expected clean exit, got %v", err)
	}
	select {
	case <-p.WaitDone():
	default:
		t.Fatalf("waitDone not closed after reap")
	}
}

func TestStartWaitNonZeroExit(t *testing.T) {
	p := New(worker.Spec{Name: "bad", Command: "sh -c 'exit 3'"})
	if err := p.Start(p.Configure(nil)); err != nil {
		t.Fatalf("start: %v", err)
	}
	err := p.Wait()
	if CleanExit(err) {
		t.Fatalf("expected failure exit")
	}
	if got := DescribeExit(err); got != "exit code 3" {
		t.Fatalf("DescribeExit = %q", got)
	}
}

func TestTerminateSignalsGroup(t *testing.T) {
	p := New(worker.Spec{Name: "sleeper", Command: "sleep 30"})
	if err := p.Start(p.Configure(nil)); err != nil {
		t.Fatalf("start: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- p.Wait() }()
	time.Sleep(50 * time.Millisecond)
	p.Terminate()
	select {
	case err := <-done:
		var ee *exec.ExitError
		if !errors.As(err, &ee) {
			t.Fatalf("expected ExitError, got %v", err)
		}
		ws, ok := ee.Sys().(syscall.WaitStatus)
		if !ok || !ws.Signaled() || ws.Signal() != syscall.SIGTERM {
			t.Fatalf("expected SIGTERM death, got %v", err)
		}
		if got := DescribeExit(err); got != "signal terminated" {
			t.Fatalf("DescribeExit = %q", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("child ignored SIGTERM")
	}
}

func TestDescribeExitNil(t *testing.T) {
	if got := DescribeExit(nil); got != "exit code 0" {
		t.Fatalf("DescribeExit(nil) = %q", got)
	}
}

func TestIncRestarts(t *testing.T) {
	p := New(worker.Spec{Name: "x"})
	if p.IncRestarts() != 1 || p.IncRestarts() != 2 {
		t.Fatalf("restart counter broken")
	}
	if p.Snapshot().Restarts != 2 {
		t.Fatalf("snapshot restarts not updated")
	}
}
