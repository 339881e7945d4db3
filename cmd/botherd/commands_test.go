package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestBuildRootCommands(t *testing.T) {
	root := buildRoot()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"run", "seed", "status"} {
		if !names[want] {
			t.Fatalf("missing %q command", want)
		}
	}
}

func TestPrintStatuses(t *testing.T) {
	var buf bytes.Buffer
	err := printStatuses(&buf, []statusView{
		{Name: "analytics-bot", State: "running", PID: 42, Restarts: 1, StartedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)},
		{Name: "persona-bot", State: "restart-pending"},
	})
	if err != nil {
		t.Fatalf("print: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"NAME", "analytics-bot", "running", "42", "persona-bot", "restart-pending"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestStatusCommandAgainstAPI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/status" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode([]statusView{{Name: "analytics-bot", State: "running", PID: 7}})
	}))
	defer srv.Close()

	root := buildRoot()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"status", "--api-url", srv.URL})
	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out.String(), "analytics-bot") {
		t.Fatalf("status output missing worker:\n%s", out.String())
	}
}
