// Package readme writes the per-crate README outputs under the output root.
package readme

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/schaermu/cratevendor/internal/cargo"
	"github.com/schaermu/cratevendor/internal/config"
	"github.com/schaermu/cratevendor/internal/crates"
	"github.com/schaermu/cratevendor/internal/fsutil"
	"github.com/schaermu/cratevendor/internal/render"
)

// DumpFileName is written instead of the README in dump mode.
const DumpFileName = "template-input.json"

// Attributes looks up per-crate attributes. inherit.Attributes is the
// implementation used by the CLI.
type Attributes interface {
	Group(pkg *cargo.Package) config.Group
	SecurityCritical(pkg *cargo.Package) bool
	Shipped(pkg *cargo.Package) bool
	// License returns a license overriding the manifest's, or "".
	License(pkg *cargo.Package) string
}

// Data is the README template input.
type Data struct {
	Name             string       `json:"name"`
	Version          string       `json:"version"`
	Epoch            string       `json:"epoch"`
	Description      string       `json:"description"`
	Repository       string       `json:"repository"`
	License          string       `json:"license"`
	Authors          []string     `json:"authors"`
	Group            config.Group `json:"group"`
	SecurityCritical bool         `json:"security_critical"`
	Shipped          bool         `json:"shipped"`
}

// NewData collects the template input of pkg.
func NewData(pkg *cargo.Package, attrs Attributes) Data {
	license := attrs.License(pkg)
	if license == "" {
		license = pkg.License
	}
	authors := pkg.Authors
	if authors == nil {
		authors = []string{}
	}
	return Data{
		Name:             pkg.Name,
		Version:          pkg.Version.String(),
		Epoch:            crates.EpochFromVersion(pkg.Version).String(),
		Description:      pkg.Description,
		Repository:       pkg.Repository,
		License:          license,
		Authors:          authors,
		Group:            attrs.Group(pkg),
		SecurityCritical: attrs.SecurityCritical(pkg),
		Shipped:          attrs.Shipped(pkg),
	}
}

// Writer renders README files into outputRoot/<normalized name>/<epoch>/.
type Writer struct {
	renderer   render.Renderer
	attrs      Attributes
	outputRoot string
	fileName   string
	dump       bool
	logger     *slog.Logger
}

// NewWriter creates a README writer. In dump mode the template input is
// written as JSON instead of rendering the README.
func NewWriter(renderer render.Renderer, attrs Attributes, outputRoot, fileName string, dump bool, logger *slog.Logger) *Writer {
	return &Writer{
		renderer:   renderer,
		attrs:      attrs,
		outputRoot: outputRoot,
		fileName:   fileName,
		dump:       dump,
		logger:     logger,
	}
}

// Write produces the outputs of pkgs and returns the output directories it wrote.
func (w *Writer) Write(pkgs []*cargo.Package) (mapset.Set[string], error) {
	produced := mapset.NewThreadUnsafeSet[string]()
	for _, pkg := range pkgs {
		dir := crates.OutputDir(w.outputRoot, pkg.Name, pkg.Version)
		if err := fsutil.EnsureDir(dir); err != nil {
			return nil, err
		}

		data := NewData(pkg, w.attrs)
		var (
			path    string
			content []byte
		)
		if w.dump {
			path = filepath.Join(dir, DumpFileName)
			out, err := json.MarshalIndent(data, "", "  ")
			if err != nil {
				return nil, fmt.Errorf("failed to encode template input for %s: %w", pkg.Name, err)
			}
			content = append(out, '\n')
		} else {
			path = filepath.Join(dir, w.fileName)
			out, err := w.renderer.Render(render.Readme, data)
			if err != nil {
				return nil, fmt.Errorf("failed to render readme for %s %s: %w", pkg.Name, pkg.Version, err)
			}
			content = []byte(out)
		}

		if err := fsutil.WriteFile(path, content); err != nil {
			return nil, err
		}
		w.logger.Debug("wrote crate output", "crate", pkg.Name, "version", pkg.Version.String(), "path", path)
		produced.Add(dir)
	}
	return produced, nil
}
