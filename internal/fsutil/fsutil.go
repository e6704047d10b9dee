// Package fsutil holds the filesystem helpers shared by the vendoring components.
package fsutil

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/moby/sys/atomicwriter"
)

const (
	// ChecksumFileName is the per-crate checksum manifest cargo expects in vendor dirs.
	ChecksumFileName = ".cargo-checksum.json"

	// ChecksumStub declares that no per-file checksums are recorded.
	ChecksumStub = "{\"files\":{}}\n"

	// IncompleteMarker flags a crate directory whose fetch or patching has not finished.
	IncompleteMarker = ".cratevendor-incomplete"

	dirPerm  = 0755
	filePerm = 0644
)

// WriteChecksumStub writes the empty checksum manifest into a crate directory.
func WriteChecksumStub(crateDir string) error {
	return WriteFile(filepath.Join(crateDir, ChecksumFileName), []byte(ChecksumStub))
}

// MarkIncomplete flags crateDir as not yet fully vendored.
func MarkIncomplete(crateDir string) error {
	return WriteFile(filepath.Join(crateDir, IncompleteMarker), nil)
}

// ClearIncomplete removes the in-progress flag. A missing flag is not an error.
func ClearIncomplete(crateDir string) error {
	if err := os.Remove(filepath.Join(crateDir, IncompleteMarker)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear incomplete marker in %s: %w", crateDir, err)
	}
	return nil
}

// IsIncomplete reports whether crateDir still carries the in-progress flag.
func IsIncomplete(crateDir string) bool {
	return Exists(filepath.Join(crateDir, IncompleteMarker))
}

// WriteFile atomically replaces path with data.
func WriteFile(path string, data []byte) error {
	if err := atomicwriter.WriteFile(path, data, filePerm); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// EnsureDir creates dir and any missing parents.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}

// ClearDir removes every entry of dir, keeping dir itself.
func ClearDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read directory %s: %w", dir, err)
	}
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if entry.IsDir() {
			if err := os.RemoveAll(path); err != nil {
				return fmt.Errorf("failed to remove dir %s: %w", path, err)
			}
			continue
		}
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("failed to remove file %s: %w", path, err)
		}
	}
	return nil
}

// SubDirs returns the names of the immediate child directories of dir.
// Symlinks are resolved, matching what a later os.Stat of the child would see.
func SubDirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		info, err := os.Stat(filepath.Join(dir, entry.Name()))
		if err != nil {
			// Dangling symlinks and entries that vanished are not directories.
			continue
		}
		if info.IsDir() {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
