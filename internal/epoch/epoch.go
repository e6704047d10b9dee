// Package epoch removes per-epoch output directories that no crate produces anymore.
package epoch

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/schaermu/cratevendor/internal/crates"
	"github.com/schaermu/cratevendor/internal/fsutil"
)

// Collector deletes stale epoch directories under an output root laid out as
// <crate>/<epoch>/.
type Collector struct {
	outputRoot string
	logger     *slog.Logger
}

// NewCollector creates a collector for outputRoot.
func NewCollector(outputRoot string, logger *slog.Logger) *Collector {
	return &Collector{outputRoot: outputRoot, logger: logger}
}

// Stale returns every epoch directory under the output root that is not in
// produced. Directories whose name is not an epoch identifier are never stale.
func (c *Collector) Stale(produced mapset.Set[string]) ([]string, error) {
	if !fsutil.Exists(c.outputRoot) {
		return nil, nil
	}
	crateDirs, err := fsutil.SubDirs(c.outputRoot)
	if err != nil {
		return nil, err
	}

	var stale []string
	for _, crate := range crateDirs {
		epochs, err := fsutil.SubDirs(filepath.Join(c.outputRoot, crate))
		if err != nil {
			return nil, err
		}
		for _, name := range epochs {
			if !crates.IsEpochName(name) {
				continue
			}
			dir := filepath.Join(c.outputRoot, crate, name)
			if !produced.Contains(dir) {
				stale = append(stale, dir)
			}
		}
	}
	sort.Strings(stale)
	return stale, nil
}

// Collect deletes the stale epoch directories and returns them. A crate
// directory left empty is removed as well.
func (c *Collector) Collect(produced mapset.Set[string]) ([]string, error) {
	stale, err := c.Stale(produced)
	if err != nil {
		return nil, err
	}

	for _, dir := range stale {
		c.logger.Info("deleting directory", "dir", dir)
		if err := os.RemoveAll(dir); err != nil {
			return nil, fmt.Errorf("failed to delete %s: %w", dir, err)
		}

		parent := filepath.Dir(dir)
		entries, err := os.ReadDir(parent)
		if err == nil && len(entries) == 0 {
			if err := os.Remove(parent); err != nil && !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to delete %s: %w", parent, err)
			}
		}
	}
	return stale, nil
}
