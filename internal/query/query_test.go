package query

import (
	"context"
	"errors"
	"os/exec"
	"testing"

	"github.com/rkovacs/medit/internal/config"
)

func commandAvailable(t *testing.T, name string) {
	t.Helper()
	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not available", name)
	}
}

func TestRunFiltersContent(t *testing.T) {
	commandAvailable(t, "head")
	cfg := config.Query{Command: "head", Args: []string{"-n"}}
	got, err := Run(context.Background(), cfg, "one\ntwo\nthree\n", "2")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got != "one\ntwo\n" {
		t.Fatalf("Run() = %q, want %q", got, "one\ntwo\n")
	}
}

func TestRunCommandFailure(t *testing.T) {
	commandAvailable(t, "sh")
	cfg := config.Query{Command: "sh", Args: []string{"-c", "echo bad query >&2; exit 1", "sh"}}
	_, err := Run(context.Background(), cfg, "content", "ignored")
	if err == nil {
		t.Fatal("Run() succeeded, want failure")
	}
	var qerr *Error
	if !errors.As(err, &qerr) {
		t.Fatalf("error type = %T, want *Error", err)
	}
	if qerr.Output != "bad query" {
		t.Errorf("Output = %q, want %q", qerr.Output, "bad query")
	}
}

func TestRunMissingCommand(t *testing.T) {
	cfg := config.Query{Command: "no-such-binary-xyz"}
	_, err := Run(context.Background(), cfg, "content", "q")
	var qerr *Error
	if !errors.As(err, &qerr) {
		t.Fatalf("error = %v (%T), want *Error", err, err)
	}
}
