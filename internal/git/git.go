// Package git wraps the git commands cratevendor shells out to.
package git

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// ApplyOptions configures a `git apply` invocation.
type ApplyOptions struct {
	// Dir is the working directory git runs in.
	Dir string
	// Strip is the number of leading path components removed from patch paths (-p).
	Strip int
	// Directory is prepended to every patched path after stripping (--directory).
	Directory string
	// Verbose asks git to report every hunk it tries (-v).
	Verbose bool
}

// Client provides git operations
type Client interface {
	// Apply applies patch with the given options and returns git's combined output.
	Apply(ctx context.Context, opts ApplyOptions, patch []byte) (string, error)
	// TopLevel returns the root of the work tree containing dir. It fails
	// when dir is not inside a git repository.
	TopLevel(ctx context.Context, dir string) (string, error)
}

// ShellClient implements Client by shelling out to the git command
type ShellClient struct {
	git string
}

// NewShellClient creates a new git client that uses the given git binary ("git" when empty)
func NewShellClient(git string) *ShellClient {
	if git == "" {
		git = "git"
	}
	return &ShellClient{git: git}
}

// Apply runs `git apply` with the patch on stdin
func (c *ShellClient) Apply(ctx context.Context, opts ApplyOptions, patch []byte) (string, error) {
	cmd := exec.CommandContext(ctx, c.git, applyArgs(opts)...)
	cmd.Dir = opts.Dir
	cmd.Stdin = bytes.NewReader(patch)

	output, err := c.runCommand(cmd)
	if err != nil {
		return output, fmt.Errorf("git apply failed: %w", err)
	}
	return output, nil
}

// TopLevel runs `git rev-parse --show-toplevel` in dir
func (c *ShellClient) TopLevel(ctx context.Context, dir string) (string, error) {
	cmd := exec.CommandContext(ctx, c.git, "rev-parse", "--show-toplevel")
	cmd.Dir = dir

	output, err := c.runCommand(cmd)
	if err != nil {
		return "", fmt.Errorf("git rev-parse failed: %w", err)
	}
	return strings.TrimSpace(output), nil
}

// applyArgs builds the argument list of `git apply`, reading the patch from stdin.
func applyArgs(opts ApplyOptions) []string {
	args := []string{"apply", "-p" + strconv.Itoa(opts.Strip)}
	if opts.Directory != "" {
		args = append(args, "--directory="+opts.Directory)
	}
	if opts.Verbose {
		args = append(args, "-v")
	}
	return append(args, "-")
}

// runCommand executes a command and returns an error with its output on failure
func (c *ShellClient) runCommand(cmd *exec.Cmd) (string, error) {
	output, err := cmd.CombinedOutput()
	if err != nil {
		return string(output), fmt.Errorf("%w: %s", err, string(output))
	}
	return string(output), nil
}
