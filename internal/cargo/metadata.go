// Package cargo models and collects the resolved dependency graph of a cargo workspace.
package cargo

import (
	"encoding/json"
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// PackageID is cargo's opaque package identifier.
type PackageID string

// DependencyKind is the kind of a dependency edge. Normal edges are reported
// by cargo as null, which decodes to the empty string.
type DependencyKind string

const (
	KindNormal DependencyKind = ""
	KindBuild  DependencyKind = "build"
	KindDev    DependencyKind = "dev"
)

// IsBuildOrNormal reports whether the edge is needed to build the crate for the target.
func (k DependencyKind) IsBuildOrNormal() bool {
	return k == KindNormal || k == KindBuild
}

// Metadata is the subset of `cargo metadata --format-version 1` the vendoring core uses.
type Metadata struct {
	Packages []*Package `json:"packages"`
	Resolve  *Resolve   `json:"resolve"`

	byID   map[PackageID]*Package
	nodeOf map[PackageID]*Node
}

// Package is a crate in the full package set.
type Package struct {
	Name         string              `json:"name"`
	Version      *semver.Version     `json:"version"`
	ID           PackageID           `json:"id"`
	Source       string              `json:"source"`
	License      string              `json:"license"`
	Description  string              `json:"description"`
	Repository   string              `json:"repository"`
	Authors      []string            `json:"authors"`
	Dependencies []Dependency        `json:"dependencies"`
	Features     map[string][]string `json:"features"`
	ManifestPath string              `json:"manifest_path"`
}

// IsLocal reports whether the package is a workspace member rather than a
// registry crate. Local packages are never vendored.
func (p *Package) IsLocal() bool {
	return p.Source == ""
}

// Dependency is a dependency as declared in the crate's Cargo.toml.
type Dependency struct {
	Name                string         `json:"name"`
	Req                 string         `json:"req"`
	Kind                DependencyKind `json:"kind"`
	Rename              string         `json:"rename"`
	Optional            bool           `json:"optional"`
	UsesDefaultFeatures bool           `json:"uses_default_features"`
	Features            []string       `json:"features"`
	Target              string         `json:"target"`
}

// Resolve is the resolved dependency graph.
type Resolve struct {
	Nodes []*Node   `json:"nodes"`
	Root  PackageID `json:"root"`
}

// Node lists the dependency edges cargo actually resolved for one package.
type Node struct {
	ID       PackageID `json:"id"`
	Deps     []NodeDep `json:"deps"`
	Features []string  `json:"features"`
}

// NodeDep is one resolved edge. Name is the (possibly renamed) import name.
type NodeDep struct {
	Name     string    `json:"name"`
	Pkg      PackageID `json:"pkg"`
	DepKinds []DepKind `json:"dep_kinds"`
}

// DepKind is one kind under which a resolved edge is used.
type DepKind struct {
	Kind   DependencyKind `json:"kind"`
	Target string         `json:"target"`
}

// IsBuildOrNormal reports whether any of the edge's kinds is build or normal.
func (d NodeDep) IsBuildOrNormal() bool {
	for _, k := range d.DepKinds {
		if k.Kind.IsBuildOrNormal() {
			return true
		}
	}
	return false
}

// UnmarshalJSON decodes the kind, mapping JSON null to KindNormal.
func (k *DependencyKind) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*k = KindNormal
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "normal" {
		s = ""
	}
	*k = DependencyKind(s)
	return nil
}

// Parse decodes cargo metadata JSON and indexes it.
func Parse(data []byte) (*Metadata, error) {
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse cargo metadata: %w", err)
	}
	if err := m.index(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Metadata) index() error {
	if m.Resolve == nil {
		return fmt.Errorf("cargo metadata has no resolve graph")
	}
	m.byID = make(map[PackageID]*Package, len(m.Packages))
	for _, p := range m.Packages {
		if p.Version == nil {
			return fmt.Errorf("package %s has no version", p.ID)
		}
		m.byID[p.ID] = p
	}
	m.nodeOf = make(map[PackageID]*Node, len(m.Resolve.Nodes))
	for _, n := range m.Resolve.Nodes {
		if _, ok := m.byID[n.ID]; !ok {
			return fmt.Errorf("resolve node %s has no package", n.ID)
		}
		m.nodeOf[n.ID] = n
	}
	return nil
}

// Package returns the package with the given id.
func (m *Metadata) Package(id PackageID) (*Package, bool) {
	p, ok := m.byID[id]
	return p, ok
}

// Node returns the resolve node of the given package.
func (m *Metadata) Node(id PackageID) (*Node, bool) {
	n, ok := m.nodeOf[id]
	return n, ok
}

// PackageByName returns the first package with the given name.
func (m *Metadata) PackageByName(name string) (*Package, bool) {
	for _, p := range m.Packages {
		if p.Name == name {
			return p, true
		}
	}
	return nil, false
}

// NewMetadata builds indexed metadata from already decoded parts.
func NewMetadata(packages []*Package, resolve *Resolve) (*Metadata, error) {
	m := &Metadata{Packages: packages, Resolve: resolve}
	if err := m.index(); err != nil {
		return nil, err
	}
	return m, nil
}
