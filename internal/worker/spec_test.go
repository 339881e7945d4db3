package worker

import (
	"errors"
	"testing"
)

func TestBuildCommandPlain(t *testing.T) {
	s := Spec{Name: "bot", Command: "python3 -m analytics_bot"}
	cmd := s.BuildCommand()
	if len(cmd.Args) != 3 || cmd.Args[1] != "-m" || cmd.Args[2] != "analytics_bot" {
		t.Fatalf("unexpected args: %v", cmd.Args)
	}
}

func TestBuildCommandShellMeta(t *testing.T) {
	s := Spec{Name: "bot", Command: "python3 -m bot 2>&1 | tee out.log"}
	cmd := s.BuildCommand()
	if cmd.Args[0] != "/bin/sh" || cmd.Args[1] != "-c" {
		t.Fatalf("expected shell wrapping, got %v", cmd.Args)
	}
}

func TestBuildCommandExplicitShell(t *testing.T) {
	s := Spec{Name: "bot", Command: `sh -c 'sleep 1'`}
	cmd := s.BuildCommand()
	if cmd.Args[0] != "/bin/sh" || cmd.Args[1] != "-c" || cmd.Args[2] != "sleep 1" {
		t.Fatalf("explicit shell not honored: %v", cmd.Args)
	}
}

func TestMissingEnvSorted(t *testing.T) {
	missing := MissingEnv([]string{"ZTOKEN", "ATOKEN", "PRESENT"}, []string{"PRESENT=1", "OTHER=2"})
	if len(missing) != 2 || missing[0] != "ATOKEN" || missing[1] != "ZTOKEN" {
		t.Fatalf("unexpected missing set: %v", missing)
	}
}

func TestValidateEnv(t *testing.T) {
	s := Spec{Name: "moderator", RequiredEnv: []string{"DISCORD_TOKEN"}}
	err := s.ValidateEnv([]string{"PATH=/usr/bin"})
	var mc *MissingConfigurationError
	if !errors.As(err, &mc) {
		t.Fatalf("expected MissingConfigurationError, got %v", err)
	}
	if mc.Worker != "moderator" || len(mc.Missing) != 1 || mc.Missing[0] != "DISCORD_TOKEN" {
		t.Fatalf("unexpected error detail: %+v", mc)
	}
	if err := s.ValidateEnv([]string{"DISCORD_TOKEN=abc"}); err != nil {
		t.Fatalf("expected valid env, got %v", err)
	}
}

func TestStateAlive(t *testing.T) {
	for st, want := range map[State]bool{
		StateStarting:       true,
		StateRunning:        true,
		StateExited:         false,
		StateCrashed:        false,
		StateRestartPending: false,
		StateStopped:        false,
	} {
		if st.Alive() != want {
			t.Fatalf("Alive(%s) = %v, want %v", st, st.Alive(), want)
		}
	}
}
