// Package manifest reads crate identity from vendored Cargo.toml files.
package manifest

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/schaermu/cratevendor/internal/crates"
)

// FileName is the crate manifest file name.
const FileName = "Cargo.toml"

// ReadPackageID extracts the [package] name and version from dir/Cargo.toml.
//
// The manifest is decoded as a generic TOML document instead of the typed cargo
// metadata model so that it works without a lock file or a cargo invocation.
// Any read, parse or shape problem yields ok == false.
func ReadPackageID(dir string) (id crates.PackageID, ok bool) {
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		return crates.PackageID{}, false
	}

	var doc map[string]any
	if err := toml.Unmarshal(data, &doc); err != nil {
		return crates.PackageID{}, false
	}

	pkg, ok := doc["package"].(map[string]any)
	if !ok {
		return crates.PackageID{}, false
	}
	name, ok := pkg["name"].(string)
	if !ok {
		return crates.PackageID{}, false
	}
	version, ok := pkg["version"].(string)
	if !ok {
		return crates.PackageID{}, false
	}

	id, err = crates.NewPackageID(name, version)
	if err != nil {
		return crates.PackageID{}, false
	}
	return id, true
}
