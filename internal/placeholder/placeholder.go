// Package placeholder synthesizes stand-in crates for dependencies that are
// excluded from the build but must still exist for cargo's lock file checks.
package placeholder

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/schaermu/cratevendor/internal/cargo"
	"github.com/schaermu/cratevendor/internal/crates"
	"github.com/schaermu/cratevendor/internal/fsutil"
	"github.com/schaermu/cratevendor/internal/manifest"
	"github.com/schaermu/cratevendor/internal/render"
)

// ErrUndeclaredDependency means cargo resolved an edge the crate does not declare.
var ErrUndeclaredDependency = errors.New("resolved dependency has no matching declaration")

// Crate is the template input for a placeholder.
type Crate struct {
	Name         string
	Version      string
	Dependencies []Dependency
	Features     []string
}

// Dependency is one dependency of a placeholder. Package is set when the
// dependency is imported under a different name.
type Dependency struct {
	Name            string
	Package         string
	Version         string
	DefaultFeatures bool
	Features        []string
}

// Metadata derives the placeholder of pkg from the dependency edges cargo
// actually resolved for it. Dev-only edges are dropped; every remaining edge
// must match a declared dependency, whose requirement and feature settings
// are carried over unchanged.
func Metadata(pkg *cargo.Package, meta *cargo.Metadata) (Crate, error) {
	node, ok := meta.Node(pkg.ID)
	if !ok {
		return Crate{}, fmt.Errorf("package %s has no resolve node", pkg.ID)
	}

	c := Crate{
		Name:     pkg.Name,
		Version:  pkg.Version.String(),
		Features: make([]string, 0, len(pkg.Features)),
	}
	for feature := range pkg.Features {
		c.Features = append(c.Features, feature)
	}
	sort.Strings(c.Features)

	for _, edge := range node.Deps {
		if !edge.IsBuildOrNormal() {
			continue
		}
		target, ok := meta.Package(edge.Pkg)
		if !ok {
			return Crate{}, fmt.Errorf("%s depends on unknown package %s", pkg.Name, edge.Pkg)
		}
		decl, ok := declaration(pkg, target)
		if !ok {
			return Crate{}, fmt.Errorf("%s %s: %w: %s %s",
				pkg.Name, pkg.Version, ErrUndeclaredDependency, target.Name, target.Version)
		}

		dep := Dependency{
			Name:            target.Name,
			Version:         decl.Req,
			DefaultFeatures: decl.UsesDefaultFeatures,
			Features:        append([]string{}, decl.Features...),
		}
		if decl.Rename != "" {
			dep.Name = decl.Rename
			dep.Package = target.Name
		}
		c.Dependencies = append(c.Dependencies, dep)
	}
	return c, nil
}

// declaration finds the declared dependency of pkg that resolved to target.
// Non-dev declarations win; among several, the first whose requirement
// accepts the resolved version is used.
func declaration(pkg *cargo.Package, target *cargo.Package) (cargo.Dependency, bool) {
	var candidates []cargo.Dependency
	for _, d := range pkg.Dependencies {
		if d.Name == target.Name && d.Kind.IsBuildOrNormal() {
			candidates = append(candidates, d)
		}
	}
	if len(candidates) == 0 {
		return cargo.Dependency{}, false
	}
	for _, d := range candidates {
		if accepts(d.Req, target.Version) {
			return d, true
		}
	}
	return candidates[0], true
}

// accepts reports whether a cargo version requirement matches v. Cargo reads
// a bare requirement as a caret requirement.
func accepts(req string, v *semver.Version) bool {
	parts := strings.Split(req, ",")
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" && p[0] >= '0' && p[0] <= '9' {
			p = "^" + p
		}
		parts[i] = p
	}
	c, err := semver.NewConstraint(strings.Join(parts, ", "))
	if err != nil {
		return false
	}
	return c.Check(v)
}

// Synthesizer writes placeholder crates into the vendor directory.
type Synthesizer struct {
	renderer  render.Renderer
	vendorDir string
	logger    *slog.Logger

	// beforeFinish runs once every file is written but before the incomplete
	// marker is cleared. Tests use it to simulate an interruption.
	beforeFinish func(dir string) error
}

// NewSynthesizer creates a synthesizer rendering with the given templates.
func NewSynthesizer(renderer render.Renderer, vendorDir string, logger *slog.Logger) *Synthesizer {
	return &Synthesizer{renderer: renderer, vendorDir: vendorDir, logger: logger}
}

// Synthesize replaces the vendor directory of pkg with a placeholder crate
// and returns the directory. The directory carries the incomplete marker until
// every file is written, so an interrupted run is redone by the next one.
func (s *Synthesizer) Synthesize(pkg *cargo.Package, meta *cargo.Metadata) (string, error) {
	s.logger.Info("generating placeholder for removed crate", "crate", pkg.Name, "version", pkg.Version.String())

	data, err := Metadata(pkg, meta)
	if err != nil {
		return "", err
	}
	cargoToml, err := s.renderer.Render(render.RemovedManifest, data)
	if err != nil {
		return "", err
	}
	libRs, err := s.renderer.Render(render.RemovedLib, data)
	if err != nil {
		return "", err
	}

	dir := filepath.Join(s.vendorDir, crates.VendorDirName(pkg.Name, pkg.Version))
	if err := fsutil.EnsureDir(dir); err != nil {
		return "", err
	}
	if err := fsutil.ClearDir(dir); err != nil {
		return "", err
	}
	if err := fsutil.MarkIncomplete(dir); err != nil {
		return "", err
	}
	if err := fsutil.EnsureDir(filepath.Join(dir, "src")); err != nil {
		return "", err
	}
	if err := fsutil.WriteFile(filepath.Join(dir, "src", "lib.rs"), []byte(libRs)); err != nil {
		return "", err
	}
	if err := fsutil.WriteChecksumStub(dir); err != nil {
		return "", err
	}
	// The manifest goes last: it is what marks the directory as vendored.
	if err := fsutil.WriteFile(filepath.Join(dir, manifest.FileName), []byte(cargoToml)); err != nil {
		return "", err
	}
	if s.beforeFinish != nil {
		if err := s.beforeFinish(dir); err != nil {
			return "", err
		}
	}
	if err := fsutil.ClearIncomplete(dir); err != nil {
		return "", err
	}
	return dir, nil
}
