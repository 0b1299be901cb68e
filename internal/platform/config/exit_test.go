package config_test

import (
	"errors"
	"os"
	"os/exec"
	"strings"
	"testing"

	"github.com/chaosarchitect/missions/internal/platform/config"
)

// The child process calls Exitf; os.Exit cannot be observed in-process.
func TestExitfWritesStderrAndExitsNonZero(t *testing.T) {
	if os.Getenv("CHAOS_ARCHITECT_EXITF_CHILD") == "1" {
		config.Exitf("roster import: %s", "file missing")
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=^TestExitfWritesStderrAndExitsNonZero$")
	cmd.Env = append(os.Environ(), "CHAOS_ARCHITECT_EXITF_CHILD=1")

	out, err := cmd.CombinedOutput()

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected *exec.ExitError, got %T: %v", err, err)
	}
	if exitErr.ExitCode() != 1 {
		t.Fatalf("exit code = %d, want 1", exitErr.ExitCode())
	}
	if !strings.Contains(string(out), "roster import: file missing") {
		t.Fatalf("output = %q, want roster import message", string(out))
	}
}
