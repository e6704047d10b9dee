package cargo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Client collects the dependency graph of a cargo workspace.
type Client interface {
	// Metadata returns the full resolved package set of the workspace at cargoRoot.
	Metadata(ctx context.Context, cargoRoot string) (*Metadata, error)
}

// ShellClient implements Client by shelling out to cargo.
type ShellClient struct {
	cargo string
}

// NewShellClient creates a client running the given cargo binary ("cargo" when empty).
func NewShellClient(cargo string) *ShellClient {
	if cargo == "" {
		cargo = "cargo"
	}
	return &ShellClient{cargo: cargo}
}

// Metadata runs `cargo metadata` against the real registry. A checked-in
// .cargo/config.toml usually redirects crates-io to the vendor directory, which
// is exactly what is being rebuilt, so it is moved aside for the duration.
func (c *ShellClient) Metadata(ctx context.Context, cargoRoot string) (*Metadata, error) {
	var out []byte
	err := WithoutConfigToml(cargoRoot, func() error {
		cmd := exec.CommandContext(ctx, c.cargo, "metadata", "--format-version", "1")
		cmd.Dir = cargoRoot

		var err error
		out, err = cmd.Output()
		if err != nil {
			var stderr string
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				stderr = strings.TrimSpace(string(exitErr.Stderr))
			}
			return fmt.Errorf("cargo metadata failed: %w: %s", err, stderr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return Parse(out)
}

// ConfigTomlPath returns the cargo config file of a workspace.
func ConfigTomlPath(cargoRoot string) string {
	return filepath.Join(cargoRoot, ".cargo", "config.toml")
}

// WithoutConfigToml runs fn while the workspace's .cargo/config.toml is moved
// aside, and puts it back afterwards even when fn fails.
func WithoutConfigToml(cargoRoot string, fn func() error) (err error) {
	path := ConfigTomlPath(cargoRoot)
	stash := path + ".stash"

	if err := os.Rename(path, stash); err != nil {
		if os.IsNotExist(err) {
			return fn()
		}
		return fmt.Errorf("failed to move %s aside: %w", path, err)
	}
	defer func() {
		if restoreErr := os.Rename(stash, path); restoreErr != nil {
			err = errors.Join(err, fmt.Errorf("failed to restore %s: %w", path, restoreErr))
		}
	}()

	return fn()
}
