package env

import (
	"os"
	"strings"
)

// Env composes the environment handed to each worker: the supervisor's own
// environment as the base (tokens, DATA_DIR and friends are inherited, as the
// workers expect), then global overrides, then per-worker entries.
type Env struct {
	global map[string]string
	base   map[string]string // cached OS environment
}

func New() *Env {
	return &Env{global: make(map[string]string)}
}

// FromOS caches the current process environment as the merge base.
func (e *Env) FromOS() {
	e.base = splitAll(os.Environ())
}

// Set adds or replaces a global override.
func (e *Env) Set(k, v string) {
	if e.global == nil {
		e.global = make(map[string]string)
	}
	e.global[k] = v
}

// SetAll applies a list of "K=V" global overrides.
func (e *Env) SetAll(kvs []string) {
	for k, v := range splitAll(kvs) {
		e.Set(k, v)
	}
}

// Merge builds the final "K=V" slice for one worker: base OS env, then global
// overrides, then perWorker entries, with simple ${VAR} expansion against the
// composed map.
func (e *Env) Merge(perWorker []string) []string {
	if e.base == nil {
		e.FromOS()
	}
	m := make(map[string]string, len(e.base)+len(e.global)+len(perWorker))
	for k, v := range e.base {
		m[k] = v
	}
	for k, v := range e.global {
		m[k] = v
	}
	for k, v := range splitAll(perWorker) {
		m[k] = v
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+expand(v, m))
	}
	return out
}

func splitAll(kvs []string) map[string]string {
	m := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		if i := strings.IndexByte(kv, '='); i > 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	return m
}

// expand replaces ${VAR} occurrences using the composed map; no recursion.
func expand(s string, m map[string]string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	for k, v := range m {
		s = strings.ReplaceAll(s, "${"+k+"}", v)
	}
	return s
}
