// Package inherit resolves crate attributes that flow down the dependency graph.
//
// A crate's privilege group and its security-critical and shipped flags come
// from its own entry in the config when present. Otherwise they are inherited
// from the crates that depend on it, walking up to the root crate. A crate
// reachable over several paths takes the most permissive value: the most
// privileged group, and true for a flag if any parent has it set.
package inherit

import (
	"fmt"

	"github.com/schaermu/cratevendor/internal/cargo"
	"github.com/schaermu/cratevendor/internal/config"
)

// groupRank orders groups from most to least privileged.
var groupRank = map[config.Group]int{
	config.GroupSafe:    0,
	config.GroupSandbox: 1,
	config.GroupTest:    2,
}

// Attributes answers per-crate attribute lookups for one dependency graph.
type Attributes struct {
	cfg     *config.Config
	meta    *cargo.Metadata
	parents map[cargo.PackageID][]cargo.PackageID

	groups           map[cargo.PackageID]config.Group
	securityCritical map[cargo.PackageID]bool
	shipped          map[cargo.PackageID]bool
}

// New indexes the build and normal edges reachable from the configured root crate.
func New(cfg *config.Config, meta *cargo.Metadata) (*Attributes, error) {
	root, ok := meta.PackageByName(cfg.Resolve.Root)
	if !ok {
		return nil, fmt.Errorf("root crate %s not found in cargo metadata", cfg.Resolve.Root)
	}

	parents := make(map[cargo.PackageID][]cargo.PackageID)
	seen := map[cargo.PackageID]bool{root.ID: true}
	queue := []cargo.PackageID{root.ID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		node, ok := meta.Node(id)
		if !ok {
			return nil, fmt.Errorf("package %s has no resolve node", id)
		}
		for _, dep := range node.Deps {
			if !dep.IsBuildOrNormal() {
				continue
			}
			parents[dep.Pkg] = append(parents[dep.Pkg], id)
			if !seen[dep.Pkg] {
				seen[dep.Pkg] = true
				queue = append(queue, dep.Pkg)
			}
		}
	}

	return &Attributes{
		cfg:              cfg,
		meta:             meta,
		parents:          parents,
		groups:           make(map[cargo.PackageID]config.Group),
		securityCritical: make(map[cargo.PackageID]bool),
		shipped:          make(map[cargo.PackageID]bool),
	}, nil
}

// Group returns the privilege group of pkg. Unconfigured crates without
// parents are safe.
func (a *Attributes) Group(pkg *cargo.Package) config.Group {
	own := func(cc config.CrateConfig) (config.Group, bool) {
		return cc.Group, cc.Group != ""
	}
	pick := func(x, y config.Group) config.Group {
		if groupRank[y] < groupRank[x] {
			return y
		}
		return x
	}
	return lookup(a, pkg.ID, own, pick, config.GroupSafe, a.groups, map[cargo.PackageID]bool{})
}

// SecurityCritical reports whether pkg is security critical. Defaults to true.
func (a *Attributes) SecurityCritical(pkg *cargo.Package) bool {
	own := func(cc config.CrateConfig) (bool, bool) {
		if cc.SecurityCritical == nil {
			return false, false
		}
		return *cc.SecurityCritical, true
	}
	return lookup(a, pkg.ID, own, or, true, a.securityCritical, map[cargo.PackageID]bool{})
}

// Shipped reports whether pkg ends up in shipped binaries. Defaults to true.
func (a *Attributes) Shipped(pkg *cargo.Package) bool {
	own := func(cc config.CrateConfig) (bool, bool) {
		if cc.Shipped == nil {
			return false, false
		}
		return *cc.Shipped, true
	}
	return lookup(a, pkg.ID, own, or, true, a.shipped, map[cargo.PackageID]bool{})
}

// License returns the configured license override of pkg, or "". Licenses are not inherited.
func (a *Attributes) License(pkg *cargo.Package) string {
	cc, _ := a.cfg.Crate(pkg.Name)
	return cc.License
}

func or(x, y bool) bool { return x || y }

// lookup resolves one attribute of id, memoizing results in memo. A parent
// already on the current path is skipped.
func lookup[T any](
	a *Attributes,
	id cargo.PackageID,
	own func(config.CrateConfig) (T, bool),
	combine func(T, T) T,
	def T,
	memo map[cargo.PackageID]T,
	onPath map[cargo.PackageID]bool,
) T {
	if v, ok := memo[id]; ok {
		return v
	}
	if pkg, ok := a.meta.Package(id); ok {
		if cc, ok := a.cfg.Crate(pkg.Name); ok {
			if v, ok := own(cc); ok {
				memo[id] = v
				return v
			}
		}
	}

	onPath[id] = true
	defer delete(onPath, id)

	var (
		result T
		found  bool
	)
	for _, parent := range a.parents[id] {
		if onPath[parent] {
			continue
		}
		v := lookup(a, parent, own, combine, def, memo, onPath)
		if !found {
			result, found = v, true
			continue
		}
		result = combine(result, v)
	}
	if !found {
		result = def
	}
	memo[id] = result
	return result
}
