package logger

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestConfigured(t *testing.T) {
	if (Config{}).Configured() {
		t.Fatalf("zero config must not be configured")
	}
	if !(Config{Dir: "/var/log"}).Configured() {
		t.Fatalf("Dir alone should configure logging")
	}
	if !(Config{StdoutPath: "/tmp/out.log"}).Configured() {
		t.Fatalf("StdoutPath alone should configure logging")
	}
}

func TestWritersFromDir(t *testing.T) {
	dir := t.TempDir()
	c := Config{Dir: dir}
	outW, errW := c.Writers("analytics-bot")
	if outW == nil || errW == nil {
		t.Fatalf("expected both writers")
	}
	t.Cleanup(func() { _ = outW.Close(); _ = errW.Close() })

	if _, err := outW.Write([]byte("hello stdout\n")); err != nil {
		t.Fatalf("write stdout: %v", err)
	}
	if _, err := errW.Write([]byte("hello stderr\n")); err != nil {
		t.Fatalf("write stderr: %v", err)
	}
	for _, name := range []string{"analytics-bot.stdout.log", "analytics-bot.stderr.log"} {
		if !fileExists(filepath.Join(dir, name)) {
			t.Fatalf("missing log file %s", name)
		}
	}
}

func TestWritersExplicitPathsOverrideDir(t *testing.T) {
	dir := t.TempDir()
	c := Config{Dir: dir, StdoutPath: filepath.Join(dir, "custom.log")}
	outW, errW := c.Writers("bot")
	t.Cleanup(func() { _ = outW.Close(); _ = errW.Close() })
	if _, err := outW.Write([]byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !fileExists(filepath.Join(dir, "custom.log")) {
		t.Fatalf("explicit stdout path ignored")
	}
}

func TestColorTextHandlerLevels(t *testing.T) {
	var buf bytes.Buffer
	h := NewColorTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}, false)
	log := slog.New(h)
	log.Info("worker started", "worker", "analytics-bot")
	out := buf.String()
	if !strings.Contains(out, "worker started") || !strings.Contains(out, "analytics-bot") {
		t.Fatalf("unexpected output: %q", out)
	}
}
