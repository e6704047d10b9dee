// Package crates names crate versions on disk: vendor directory names,
// semver epochs and per-crate output directories.
package crates

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// ErrInvalidEpoch is returned when a string is not a valid epoch identifier.
var ErrInvalidEpoch = errors.New("invalid epoch")

// PackageID identifies a single crate release.
type PackageID struct {
	Name    string
	Version *semver.Version
}

// NewPackageID creates a PackageID from a name and a strict semver string.
func NewPackageID(name, version string) (PackageID, error) {
	v, err := semver.StrictNewVersion(version)
	if err != nil {
		return PackageID{}, fmt.Errorf("invalid version %q for crate %s: %w", version, name, err)
	}
	return PackageID{Name: name, Version: v}, nil
}

// Matches reports whether id identifies the crate name@version.
func (id PackageID) Matches(name string, version *semver.Version) bool {
	return id.Name == name && id.Version != nil && version != nil && id.Version.Equal(version)
}

// String returns name@version.
func (id PackageID) String() string {
	return id.Name + "@" + id.Version.String()
}

// VendorDirName returns the directory name a crate release is vendored under.
// Distinct releases never share a directory because the full version is part of it.
func VendorDirName(name string, version *semver.Version) string {
	return name + "-" + version.String()
}

// ArchiveDirName is the top-level directory a registry archive of name@version contains.
func ArchiveDirName(name string, version *semver.Version) string {
	return name + "-" + version.String()
}

// NormalizedName converts a crate name into the form used for output directories.
func NormalizedName(name string) string {
	return strings.ReplaceAll(name, "-", "_")
}

// Epoch is a semver compatibility bucket. Releases within one epoch are
// considered compatible with each other.
type Epoch struct {
	major uint64
	minor uint64
	patch uint64
}

// EpochFromVersion returns the epoch a version belongs to.
func EpochFromVersion(v *semver.Version) Epoch {
	switch {
	case v.Major() > 0:
		return Epoch{major: v.Major()}
	case v.Minor() > 0:
		return Epoch{minor: v.Minor()}
	default:
		return Epoch{patch: v.Patch()}
	}
}

// String renders the epoch as a directory name: v1, v0_3 or v0_0_7.
func (e Epoch) String() string {
	switch {
	case e.major > 0:
		return fmt.Sprintf("v%d", e.major)
	case e.minor > 0:
		return fmt.Sprintf("v0_%d", e.minor)
	default:
		return fmt.Sprintf("v0_0_%d", e.patch)
	}
}

// ParseEpoch parses an epoch directory name.
func ParseEpoch(s string) (Epoch, error) {
	rest, ok := strings.CutPrefix(s, "v")
	if !ok {
		return Epoch{}, fmt.Errorf("%w: %q: missing v prefix", ErrInvalidEpoch, s)
	}

	parts := strings.Split(rest, "_")
	nums := make([]uint64, 0, len(parts))
	for _, p := range parts {
		n, err := parseComponent(p)
		if err != nil {
			return Epoch{}, fmt.Errorf("%w: %q: %v", ErrInvalidEpoch, s, err)
		}
		nums = append(nums, n)
	}

	switch {
	case len(nums) == 1 && nums[0] > 0:
		return Epoch{major: nums[0]}, nil
	case len(nums) == 2 && nums[0] == 0 && nums[1] > 0:
		return Epoch{minor: nums[1]}, nil
	case len(nums) == 3 && nums[0] == 0 && nums[1] == 0:
		return Epoch{patch: nums[2]}, nil
	}
	return Epoch{}, fmt.Errorf("%w: %q", ErrInvalidEpoch, s)
}

// IsEpochName reports whether s parses as an epoch identifier.
func IsEpochName(s string) bool {
	_, err := ParseEpoch(s)
	return err == nil
}

func parseComponent(s string) (uint64, error) {
	if s == "" {
		return 0, errors.New("empty component")
	}
	if len(s) > 1 && s[0] == '0' {
		return 0, errors.New("leading zero")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("non-digit %q", r)
		}
	}
	return strconv.ParseUint(s, 10, 64)
}

// OutputDir returns the per-epoch output directory of a crate release.
func OutputDir(outputRoot, name string, version *semver.Version) string {
	return filepath.Join(outputRoot, NormalizedName(name), EpochFromVersion(version).String())
}
