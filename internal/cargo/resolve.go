package cargo

import (
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"
)

// ResolvedIDs returns the ids of every package reachable from the root crate
// over build and normal edges. Dev-only edges are not followed, so crates only
// needed for tests are absent from the result.
func ResolvedIDs(m *Metadata, rootCrate string) (mapset.Set[PackageID], error) {
	root, ok := m.PackageByName(rootCrate)
	if !ok {
		return nil, fmt.Errorf("root crate %s not found in cargo metadata", rootCrate)
	}

	seen := mapset.NewThreadUnsafeSet(root.ID)
	queue := []PackageID{root.ID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		node, ok := m.Node(id)
		if !ok {
			return nil, fmt.Errorf("package %s has no resolve node", id)
		}
		for _, dep := range node.Deps {
			if !dep.IsBuildOrNormal() || seen.Contains(dep.Pkg) {
				continue
			}
			seen.Add(dep.Pkg)
			queue = append(queue, dep.Pkg)
		}
	}
	return seen, nil
}
