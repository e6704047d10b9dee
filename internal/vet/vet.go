// Package vet writes the supply-chain vetting policy covering every vendored crate.
package vet

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/schaermu/cratevendor/internal/cargo"
	"github.com/schaermu/cratevendor/internal/config"
	"github.com/schaermu/cratevendor/internal/fsutil"
	"github.com/schaermu/cratevendor/internal/render"
)

// DumpFileName is written next to the policy file in dump mode.
const DumpFileName = "vet-template-input.json"

// Audit criteria assigned by policy.
const (
	CriteriaSafeToDeploy = "safe-to-deploy"
	CriteriaSafeToRun    = "safe-to-run"
	CriteriaCryptoSafe   = "crypto-safe"
	CriteriaUBRisk2      = "ub-risk-2"
	CriteriaUBRisk3      = "ub-risk-3"
)

// Attributes looks up the attributes the policy depends on.
type Attributes interface {
	Group(pkg *cargo.Package) config.Group
	Shipped(pkg *cargo.Package) bool
}

// Crate is one policy entry.
type Crate struct {
	Name     string       `json:"name"`
	Version  string       `json:"version"`
	Removed  bool         `json:"removed"`
	Group    config.Group `json:"group"`
	Shipped  bool         `json:"shipped"`
	Criteria []string     `json:"criteria"`
}

// Policy is the vet template input.
type Policy struct {
	Crates []Crate `json:"crates"`
}

// Criteria returns the audit criteria a crate in group must meet, sorted.
func Criteria(group config.Group, shipped bool) []string {
	var criteria []string
	switch group {
	case config.GroupTest:
		criteria = append(criteria, CriteriaSafeToRun)
	case config.GroupSandbox:
		criteria = append(criteria, CriteriaSafeToDeploy, CriteriaUBRisk3)
	default:
		criteria = append(criteria, CriteriaSafeToDeploy, CriteriaUBRisk2)
	}
	if shipped {
		criteria = append(criteria, CriteriaCryptoSafe)
	}
	sort.Strings(criteria)
	return criteria
}

// NewPolicy builds the policy for pkgs, sorted by name and version. Removed
// crates are listed without criteria.
func NewPolicy(pkgs []*cargo.Package, removed mapset.Set[cargo.PackageID], attrs Attributes) Policy {
	sorted := append([]*cargo.Package(nil), pkgs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Name != sorted[j].Name {
			return sorted[i].Name < sorted[j].Name
		}
		return sorted[i].Version.LessThan(sorted[j].Version)
	})

	policy := Policy{Crates: make([]Crate, 0, len(sorted))}
	for _, pkg := range sorted {
		c := Crate{
			Name:     pkg.Name,
			Version:  pkg.Version.String(),
			Removed:  removed.Contains(pkg.ID),
			Group:    attrs.Group(pkg),
			Shipped:  attrs.Shipped(pkg),
			Criteria: []string{},
		}
		if !c.Removed {
			c.Criteria = Criteria(c.Group, c.Shipped)
		}
		policy.Crates = append(policy.Crates, c)
	}
	return policy
}

// Writer renders the policy file.
type Writer struct {
	renderer render.Renderer
	attrs    Attributes
	path     string
	dump     bool
	logger   *slog.Logger
}

// NewWriter creates a policy writer for path. In dump mode the template input
// is written as JSON next to path instead.
func NewWriter(renderer render.Renderer, attrs Attributes, path string, dump bool, logger *slog.Logger) *Writer {
	return &Writer{
		renderer: renderer,
		attrs:    attrs,
		path:     path,
		dump:     dump,
		logger:   logger,
	}
}

// Write renders the policy for pkgs.
func (w *Writer) Write(pkgs []*cargo.Package, removed mapset.Set[cargo.PackageID]) error {
	policy := NewPolicy(pkgs, removed, w.attrs)

	dir := filepath.Dir(w.path)
	if err := fsutil.EnsureDir(dir); err != nil {
		return err
	}

	path := w.path
	var content []byte
	if w.dump {
		path = filepath.Join(dir, DumpFileName)
		out, err := json.MarshalIndent(policy, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode vet template input: %w", err)
		}
		content = append(out, '\n')
	} else {
		out, err := w.renderer.Render(render.Vet, policy)
		if err != nil {
			return fmt.Errorf("failed to render vet config: %w", err)
		}
		content = []byte(out)
	}

	if err := fsutil.WriteFile(path, content); err != nil {
		return err
	}
	w.logger.Info("wrote vet config", "path", path, "crates", len(policy.Crates))
	return nil
}
