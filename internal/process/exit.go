package process

import (
	"errors"
	"fmt"
	"os/exec"
	"syscall"
)

// DescribeExit renders a child's exit for logging: "exit code N",
// "signal SIGTERM", or the raw error when the run never reached Wait.
func DescribeExit(err error) string {
	if err == nil {
		return "exit code 0"
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		if ws, ok := ee.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return fmt.Sprintf("signal %s", ws.Signal())
		}
		return fmt.Sprintf("exit code %d", ee.ExitCode())
	}
	return err.Error()
}

// CleanExit reports whether the child exited with status 0.
func CleanExit(err error) bool {
	return err == nil
}
