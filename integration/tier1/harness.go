//go:build integration

package tier1

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

const defaultTimeout = 10 * time.Minute

// Harness builds the cratevendor binary and runs it against a scratch cargo
// workspace that resolves against the real crates.io registry.
type Harness struct {
	t          *testing.T
	binary     string
	workspace  string
	keepOnFail bool
}

// NewHarness creates a harness, skipping the test when cargo is not installed.
func NewHarness(t *testing.T) *Harness {
	t.Helper()
	for _, tool := range []string{"cargo", "git"} {
		if _, err := exec.LookPath(tool); err != nil {
			t.Skipf("%s not available: %v", tool, err)
		}
	}

	workspace, err := os.MkdirTemp("", "cratevendor-tier1-")
	if err != nil {
		t.Fatalf("create workspace: %v", err)
	}
	return &Harness{
		t:          t,
		binary:     filepath.Join(t.TempDir(), "cratevendor"),
		workspace:  workspace,
		keepOnFail: os.Getenv("INTEGRATION_KEEP_WORKSPACE") == "1",
	}
}

// BuildBinary compiles ./cmd/cratevendor from the project root
func (h *Harness) BuildBinary(ctx context.Context) error {
	h.t.Helper()

	projectRoot, err := findProjectRoot()
	if err != nil {
		return fmt.Errorf("get project root: %w", err)
	}

	h.t.Logf("Building %s", h.binary)
	cmd := exec.CommandContext(ctx, "go", "build", "-o", h.binary, "./cmd/cratevendor")
	cmd.Dir = projectRoot
	cmd.Stdout = &testWriter{t: h.t, prefix: "[build] "}
	cmd.Stderr = &testWriter{t: h.t, prefix: "[build] "}

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("go build: %w", err)
	}
	return nil
}

// Cleanup removes the workspace
func (h *Harness) Cleanup() {
	h.t.Helper()
	if h.keepOnFail && h.t.Failed() {
		h.t.Logf("Test failed and INTEGRATION_KEEP_WORKSPACE=1, keeping %s", h.workspace)
		return
	}
	if err := os.RemoveAll(h.workspace); err != nil {
		h.t.Logf("Warning: failed to remove workspace: %v", err)
	}
}

// Path returns a path inside the workspace.
func (h *Harness) Path(elem ...string) string {
	return filepath.Join(append([]string{h.workspace}, elem...)...)
}

// Run executes cratevendor with the workspace config prepended to args.
func (h *Harness) Run(ctx context.Context, t *testing.T, args ...string) (string, string, int, error) {
	t.Helper()

	full := append([]string{"--config", h.Path("cratevendor.yaml"), "--log-format", "json"}, args...)
	cmd := exec.CommandContext(ctx, h.binary, full...)
	cmd.Dir = h.workspace

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return "", "", 0, fmt.Errorf("run failed: %w", err)
		}
	}

	return stdout.String(), stderr.String(), exitCode, nil
}

// MustRun runs cratevendor and fails t on a non-zero exit
func (h *Harness) MustRun(ctx context.Context, t *testing.T, args ...string) string {
	t.Helper()
	stdout, stderr, exitCode, err := h.Run(ctx, t, args...)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if exitCode != 0 {
		t.Fatalf("cratevendor failed with exit code %d\nstdout: %s\nstderr: %s\nargs: %v",
			exitCode, stdout, stderr, args)
	}
	return stdout
}

// WriteFile writes a file below the workspace, creating parent directories.
func (h *Harness) WriteFile(t *testing.T, rel, content string) {
	t.Helper()
	path := h.Path(rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir parent: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}
}

// ReadFile reads a file below the workspace.
func (h *Harness) ReadFile(rel string) (string, error) {
	data, err := os.ReadFile(h.Path(rel))
	return string(data), err
}

// Exists reports whether a path below the workspace exists
func (h *Harness) Exists(rel string) bool {
	_, err := os.Stat(h.Path(rel))
	return err == nil
}

// testWriter wraps test logging for command output
type testWriter struct {
	t      *testing.T
	prefix string
}

func (w *testWriter) Write(p []byte) (n int, err error) {
	for _, line := range strings.Split(string(p), "\n") {
		if line != "" {
			w.t.Log(w.prefix + line)
		}
	}
	return len(p), nil
}

var _ io.Writer = (*testWriter)(nil)

// findProjectRoot walks up from this source file to the directory holding go.mod
func findProjectRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("failed to get caller information")
	}

	dir := filepath.Dir(filename)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found in any parent directory")
		}
		dir = parent
	}
}
