package process

import (
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/mkarren/botherd/internal/worker"
)

// Process is the supervisor-owned handle for one launched worker. Exactly one
// goroutine (the worker's monitor) calls Wait; everyone else observes exit
// through WaitDone and Snapshot.
type Process struct {
	mu        sync.Mutex
	spec      worker.Spec
	cmd       *exec.Cmd
	status    worker.Status
	stopping  bool // stop requested by operator/shutdown; suppresses restart
	restarts  int
	outCloser io.WriteCloser
	errCloser io.WriteCloser
	waitDone  chan struct{} // closed when the monitor reaps the child
}

func New(spec worker.Spec) *Process {
	return &Process{
		spec:   spec,
		status: worker.Status{Name: spec.Name, State: worker.StateRestartPending},
	}
}

func (p *Process) Spec() worker.Spec {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.spec
}

// Configure builds the *exec.Cmd for a launch attempt: working directory,
// merged environment, its own process group, and log destinations. With no
// log config the child inherits the parent's stdout/stderr so a platform
// collector captures all output in one stream.
func (p *Process) Configure(mergedEnv []string) *exec.Cmd {
	p.mu.Lock()
	spec := p.spec
	p.mu.Unlock()

	cmd := spec.BuildCommand()
	if spec.WorkDir != "" {
		cmd.Dir = spec.WorkDir
	}
	if len(mergedEnv) > 0 {
		cmd.Env = mergedEnv
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if spec.Log.Configured() {
		if spec.Log.Dir != "" {
			_ = os.MkdirAll(spec.Log.Dir, 0o750)
		}
		outW, errW := spec.Log.Writers(spec.Name)
		p.mu.Lock()
		p.outCloser, p.errCloser = outW, errW
		p.mu.Unlock()
		cmd.Stdout, cmd.Stderr = devNullIfNil(outW), devNullIfNil(errW)
	} else {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	}
	return cmd
}

func devNullIfNil(w io.WriteCloser) io.Writer {
	if w == nil {
		null, _ := os.OpenFile(os.DevNull, os.O_RDWR, 0)
		return null
	}
	return w
}

// Start launches the configured command and records the new run.
func (p *Process) Start(cmd *exec.Cmd) error {
	if err := cmd.Start(); err != nil {
		return err
	}
	p.mu.Lock()
	p.cmd = cmd
	p.waitDone = make(chan struct{})
	p.status.PID = cmd.Process.Pid
	p.status.StartedAt = time.Now()
	p.status.StoppedAt = time.Time{}
	p.status.ExitErr = nil
	p.status.Restarts = p.restarts
	p.stopping = false
	p.mu.Unlock()
	return nil
}

// Wait blocks until the child exits, records the exit, closes log writers,
// and signals WaitDone. Only the worker's monitor goroutine may call it.
func (p *Process) Wait() error {
	p.mu.Lock()
	cmd := p.cmd
	wd := p.waitDone
	p.mu.Unlock()
	var err error
	if cmd != nil {
		err = cmd.Wait()
	}
	p.mu.Lock()
	p.status.StoppedAt = time.Now()
	p.status.ExitErr = err
	if p.outCloser != nil {
		_ = p.outCloser.Close()
		p.outCloser = nil
	}
	if p.errCloser != nil {
		_ = p.errCloser.Close()
		p.errCloser = nil
	}
	p.mu.Unlock()
	if wd != nil {
		close(wd)
	}
	return err
}

// WaitDone returns a channel closed when the current run has been reaped.
// Nil when no run is in flight.
func (p *Process) WaitDone() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waitDone
}

// Terminate delivers SIGTERM to the child's process group.
func (p *Process) Terminate() {
	p.signal(syscall.SIGTERM)
}

// Kill delivers SIGKILL to the child's process group.
func (p *Process) Kill() {
	p.signal(syscall.SIGKILL)
}

func (p *Process) signal(sig syscall.Signal) {
	p.mu.Lock()
	cmd := p.cmd
	p.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return
	}
	// Negative PID targets the whole process group set up at launch.
	_ = syscall.Kill(-cmd.Process.Pid, sig)
}

func (p *Process) SetState(st worker.State) {
	p.mu.Lock()
	p.status.State = st
	p.mu.Unlock()
}

func (p *Process) State() worker.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status.State
}

func (p *Process) SetStopRequested(v bool) {
	p.mu.Lock()
	p.stopping = v
	p.mu.Unlock()
}

func (p *Process) StopRequested() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopping
}

func (p *Process) IncRestarts() int {
	p.mu.Lock()
	p.restarts++
	v := p.restarts
	p.status.Restarts = v
	p.mu.Unlock()
	return v
}

func (p *Process) Restarts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.restarts
}

// Snapshot returns a copy of the current status.
func (p *Process) Snapshot() worker.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}
