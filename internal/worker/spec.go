package worker

import (
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/mkarren/botherd/internal/logger"
)

// Spec describes one bot worker: an independently launched OS process.
// Specs are built once at supervisor boot and never mutated afterwards.
type Spec struct {
	Name            string        `json:"name" mapstructure:"name"`
	Command         string        `json:"command" mapstructure:"command"`
	WorkDir         string        `json:"work_dir" mapstructure:"workdir"`
	Env             []string      `json:"env" mapstructure:"env"`                   // extra "K=V" entries for this worker
	RequiredEnv     []string      `json:"required_env" mapstructure:"required_env"` // names that must be present in the merged env
	Enabled         bool          `json:"enabled" mapstructure:"enabled"`
	RestartInterval time.Duration `json:"restart_interval" mapstructure:"restart_interval"` // crash backoff; zero means the supervisor default
	Log             logger.Config `json:"log" mapstructure:"log"`
}

// BuildCommand constructs an *exec.Cmd for the spec's command line.
// Plain commands are exec'd directly; anything with shell metacharacters
// goes through /bin/sh -c, and an explicit "sh -c ..." prefix is honored
// without wrapping in a second shell.
func (s *Spec) BuildCommand() *exec.Cmd {
	cmdStr := strings.TrimSpace(s.Command)
	if cmdStr == "" {
		// #nosec G204
		return exec.Command("/bin/true")
	}
	if after, ok := stripExplicitShell(cmdStr); ok {
		// #nosec G204
		return exec.Command("/bin/sh", "-c", after)
	}
	if strings.ContainsAny(cmdStr, "|&;<>*?`$\"'(){}[]~") {
		// #nosec G204
		return exec.Command("/bin/sh", "-c", cmdStr)
	}
	parts := strings.Fields(cmdStr)
	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}
	// #nosec G204
	return exec.Command(parts[0], args...)
}

// stripExplicitShell detects a leading "sh -c <ARG>" (or /bin/sh, /usr/bin/sh)
// and returns the script after -c with one surrounding quote pair removed.
func stripExplicitShell(cmdStr string) (string, bool) {
	trim := strings.TrimLeft(cmdStr, " \t")
	for _, p := range []string{"sh -c ", "/bin/sh -c ", "/usr/bin/sh -c "} {
		if strings.HasPrefix(trim, p) {
			after := trim[len(p):]
			if n := len(after); n >= 2 {
				if (after[0] == '\'' && after[n-1] == '\'') || (after[0] == '"' && after[n-1] == '"') {
					after = after[1 : n-1]
				}
			}
			return after, true
		}
	}
	return "", false
}

// MissingConfigurationError reports required environment variables that are
// absent from a worker's merged environment. It is fatal for that worker's
// launch: the supervisor parks the worker instead of retrying, since missing
// configuration does not self-heal.
type MissingConfigurationError struct {
	Worker  string
	Missing []string
}

func (e *MissingConfigurationError) Error() string {
	return fmt.Sprintf("worker %s: missing required configuration: %s", e.Worker, strings.Join(e.Missing, ", "))
}

// MissingEnv returns the names from required that have no entry in the merged
// "K=V" environment. The result is sorted for stable error messages.
func MissingEnv(required []string, merged []string) []string {
	if len(required) == 0 {
		return nil
	}
	present := make(map[string]bool, len(merged))
	for _, kv := range merged {
		if i := strings.IndexByte(kv, '='); i > 0 {
			present[kv[:i]] = true
		}
	}
	var missing []string
	for _, name := range required {
		if name != "" && !present[name] {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}

// ValidateEnv checks the merged environment against the spec's RequiredEnv
// and returns a *MissingConfigurationError naming every absent variable.
func (s *Spec) ValidateEnv(merged []string) error {
	if missing := MissingEnv(s.RequiredEnv, merged); len(missing) > 0 {
		return &MissingConfigurationError{Worker: s.Name, Missing: missing}
	}
	return nil
}
