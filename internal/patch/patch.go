// Package patch applies the local patch series recorded for vendored crates.
package patch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/schaermu/cratevendor/internal/git"
)

// Error reports a patch that failed to apply. The crate directory it was
// applied to has already been removed.
type Error struct {
	Patch string
	Dir   string
	Err   error
	// Verbose is the output of the diagnostic `git apply -v` re-run.
	Verbose string
	// VerboseErr is the re-run's own error, reported when it printed nothing.
	VerboseErr error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("failed to apply patch %s to %s: %v", e.Patch, e.Dir, e.Err)
	if out := strings.TrimSpace(e.Verbose); out != "" {
		return msg + "\n" + out
	}
	if e.VerboseErr != nil {
		return fmt.Sprintf("%s (verbose re-run: %v)", msg, e.VerboseErr)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// SkipPolicy selects crates whose patches are not applied.
type SkipPolicy struct {
	all   bool
	names mapset.Set[string]
}

// SkipNone applies every patch.
func SkipNone() SkipPolicy { return SkipPolicy{} }

// SkipAll disables patching entirely.
func SkipAll() SkipPolicy { return SkipPolicy{all: true} }

// SkipCrates disables patching for the named crates.
func SkipCrates(names ...string) SkipPolicy {
	return SkipPolicy{names: mapset.NewThreadUnsafeSet(names...)}
}

// Skips reports whether patches for the crate are skipped.
func (p SkipPolicy) Skips(name string) bool {
	return p.all || (p.names != nil && p.names.Contains(name))
}

// Applier applies patches from patchesDir/<crate>/ to freshly vendored crates.
type Applier struct {
	git        git.Client
	patchesDir string
	sourceRoot string
	skip       SkipPolicy
	logger     *slog.Logger
}

// NewApplier creates an applier. Patch paths are relative to sourceRoot.
func NewApplier(client git.Client, patchesDir, sourceRoot string, skip SkipPolicy, logger *slog.Logger) *Applier {
	return &Applier{
		git:        client,
		patchesDir: patchesDir,
		sourceRoot: sourceRoot,
		skip:       skip,
		logger:     logger,
	}
}

// Patches returns the patch files recorded for a crate in application order.
func (a *Applier) Patches(name string) ([]string, error) {
	dir := filepath.Join(a.patchesDir, name)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list patches for %s: %w", name, err)
	}

	// os.ReadDir sorts by file name.
	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	return paths, nil
}

// Apply applies the crate's patch series to crateDir. On the first failing
// patch the crate directory is deleted so the next run fetches it again.
func (a *Applier) Apply(ctx context.Context, name, crateDir string) error {
	paths, err := a.Patches(name)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return nil
	}

	if a.skip.Skips(name) {
		a.logger.Warn("skipped applying patches", "crate", name, "patches", len(paths))
		return nil
	}

	// Read the whole series up front so a missing file is noticed before git touches anything.
	contents := make([][]byte, len(paths))
	for i, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read patch %s: %w", path, err)
		}
		contents[i] = data
	}

	rel, err := filepath.Rel(a.sourceRoot, crateDir)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("crate directory %s is not inside source root %s", crateDir, a.sourceRoot)
	}
	rel = filepath.ToSlash(rel)

	workDir, dir, err := a.workTree(ctx, crateDir, rel)
	if err != nil {
		return err
	}

	// Patches carry the crate path below the source root plus git's a/ prefix.
	opts := git.ApplyOptions{
		Dir:       workDir,
		Strip:     len(strings.Split(rel, "/")) + 1,
		Directory: dir,
	}

	for i, path := range paths {
		a.logger.Info("applying patch", "crate", name, "patch", filepath.Base(path))
		if _, err := a.git.Apply(ctx, opts, contents[i]); err != nil {
			return a.rollback(ctx, opts, path, contents[i], crateDir, err)
		}
	}
	return nil
}

// workTree returns the directory git apply runs in and the crate directory
// relative to it. Inside a repository git resolves --directory against the
// top level of the work tree and ignores paths outside its working directory,
// so it has to run from the top level. Outside a repository the source root
// is used as is.
func (a *Applier) workTree(ctx context.Context, crateDir, rel string) (string, string, error) {
	top, err := a.git.TopLevel(ctx, a.sourceRoot)
	if err != nil {
		a.logger.Debug("source root is not inside a git work tree", "dir", a.sourceRoot, "error", err)
		return a.sourceRoot, rel, nil
	}

	// git reports the top level with symlinks resolved.
	realTop, err := filepath.EvalSymlinks(top)
	if err != nil {
		return "", "", fmt.Errorf("failed to resolve git work tree %s: %w", top, err)
	}
	realDir, err := filepath.EvalSymlinks(crateDir)
	if err != nil {
		return "", "", fmt.Errorf("failed to resolve crate directory %s: %w", crateDir, err)
	}
	dir, err := filepath.Rel(realTop, realDir)
	if err != nil || dir == ".." || strings.HasPrefix(dir, ".."+string(filepath.Separator)) {
		return "", "", fmt.Errorf("crate directory %s is not inside git work tree %s", crateDir, top)
	}
	return realTop, filepath.ToSlash(dir), nil
}

// rollback re-runs the failing patch verbosely for diagnostics and removes the crate directory.
func (a *Applier) rollback(ctx context.Context, opts git.ApplyOptions, path string, patch []byte, crateDir string, applyErr error) error {
	a.logger.Error("failed to apply patch", "patch", path, "dir", crateDir, "error", applyErr)

	verboseOpts := opts
	verboseOpts.Verbose = true
	verbose, verboseErr := a.git.Apply(ctx, verboseOpts, patch)
	a.logger.Error("verbose patch output", "patch", path, "output", verbose)

	patchErr := &Error{Patch: path, Dir: crateDir, Err: applyErr, Verbose: verbose, VerboseErr: verboseErr}

	a.logger.Error("removing crate directory after failed patch", "dir", crateDir)
	if err := os.RemoveAll(crateDir); err != nil {
		return errors.Join(patchErr, fmt.Errorf("failed to remove %s: %w", crateDir, err))
	}
	return patchErr
}
