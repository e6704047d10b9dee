// Package config loads and validates the cratevendor YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Group is the privilege level a vendored crate may be used at.
type Group string

const (
	GroupSafe    Group = "safe"
	GroupSandbox Group = "sandbox"
	GroupTest    Group = "test"
)

const (
	// DefaultRegistryURL is the crates.io API root.
	DefaultRegistryURL = "https://crates.io/api/v1"

	// DefaultReadmeFileName is written into every produced output directory.
	DefaultReadmeFileName = "README.md"

	// DefaultVetConfigFile is the vetting policy location relative to cargo_root.
	DefaultVetConfigFile = "supply-chain/config.toml"
)

// Config represents the complete cratevendor configuration
type Config struct {
	Paths     PathsConfig            `yaml:"paths"`
	Registry  RegistryConfig         `yaml:"registry"`
	Resolve   ResolveConfig          `yaml:"resolve"`
	Templates TemplatesConfig        `yaml:"templates"`
	Readme    ReadmeConfig           `yaml:"readme"`
	Crates    map[string]CrateConfig `yaml:"crates"`

	// dir is the directory of the loaded config file; templates resolve against it.
	dir string
}

// PathsConfig configures local filesystem paths
type PathsConfig struct {
	SourceRoot string `yaml:"source_root"`
	CargoRoot  string `yaml:"cargo_root"`
	OutputRoot string `yaml:"output_root"`
	// VetConfigFile receives the rendered vetting policy.
	VetConfigFile string `yaml:"vet_config_file"`
}

// RegistryConfig configures where crate archives are downloaded from
type RegistryConfig struct {
	URL string `yaml:"url"`
}

// ResolveConfig configures which crates end up in the build
type ResolveConfig struct {
	Root         string   `yaml:"root"`
	RemoveCrates []string `yaml:"remove_crates"`
}

// TemplatesConfig names template files. Empty entries use the built-in templates.
type TemplatesConfig struct {
	Readme          string `yaml:"readme"`
	RemovedManifest string `yaml:"removed_manifest"`
	RemovedLib      string `yaml:"removed_lib"`
	Vet             string `yaml:"vet"`
}

// ReadmeConfig configures the per-crate README outputs
type ReadmeConfig struct {
	FileName string `yaml:"file_name"`
}

// CrateConfig holds per-crate overrides. Unset booleans inherit the defaults.
type CrateConfig struct {
	Group            Group  `yaml:"group"`
	SecurityCritical *bool  `yaml:"security_critical"`
	Shipped          *bool  `yaml:"shipped"`
	License          string `yaml:"license"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	path = os.ExpandEnv(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}
	cfg.dir = filepath.Dir(abs)

	cfg.expandEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// expandEnv expands environment variables in all path-like string fields
func (c *Config) expandEnv() {
	c.Paths.SourceRoot = os.ExpandEnv(c.Paths.SourceRoot)
	c.Paths.CargoRoot = os.ExpandEnv(c.Paths.CargoRoot)
	c.Paths.OutputRoot = os.ExpandEnv(c.Paths.OutputRoot)
	c.Paths.VetConfigFile = os.ExpandEnv(c.Paths.VetConfigFile)
	c.Registry.URL = os.ExpandEnv(c.Registry.URL)
	c.Templates.Readme = os.ExpandEnv(c.Templates.Readme)
	c.Templates.RemovedManifest = os.ExpandEnv(c.Templates.RemovedManifest)
	c.Templates.RemovedLib = os.ExpandEnv(c.Templates.RemovedLib)
	c.Templates.Vet = os.ExpandEnv(c.Templates.Vet)
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Paths.SourceRoot == "" {
		c.Paths.SourceRoot = c.Paths.CargoRoot
	}
	if c.Paths.VetConfigFile == "" && c.Paths.CargoRoot != "" {
		c.Paths.VetConfigFile = filepath.Join(c.Paths.CargoRoot, DefaultVetConfigFile)
	}
	if c.Registry.URL == "" {
		c.Registry.URL = DefaultRegistryURL
	}
	c.Registry.URL = strings.TrimRight(c.Registry.URL, "/")
	if c.Readme.FileName == "" {
		c.Readme.FileName = DefaultReadmeFileName
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Paths.CargoRoot == "" {
		return fmt.Errorf("paths.cargo_root is required")
	}
	if c.Paths.OutputRoot == "" {
		return fmt.Errorf("paths.output_root is required")
	}

	for name, p := range map[string]string{
		"paths.source_root":     c.Paths.SourceRoot,
		"paths.cargo_root":      c.Paths.CargoRoot,
		"paths.output_root":     c.Paths.OutputRoot,
		"paths.vet_config_file": c.Paths.VetConfigFile,
	} {
		if p != "" && !filepath.IsAbs(p) {
			return fmt.Errorf("%s must be an absolute path: %s", name, p)
		}
	}

	if c.Paths.SourceRoot != "" {
		rel, err := filepath.Rel(c.Paths.SourceRoot, c.Paths.CargoRoot)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return fmt.Errorf("paths.cargo_root %s must be inside paths.source_root %s", c.Paths.CargoRoot, c.Paths.SourceRoot)
		}
	}

	if c.Resolve.Root == "" {
		return fmt.Errorf("resolve.root is required")
	}

	if !strings.HasPrefix(c.Registry.URL, "https://") && !strings.HasPrefix(c.Registry.URL, "http://") {
		return fmt.Errorf("registry.url must be an http(s) URL: %s", c.Registry.URL)
	}

	if strings.ContainsAny(c.Readme.FileName, `/\`) {
		return fmt.Errorf("readme.file_name must be a plain file name: %s", c.Readme.FileName)
	}

	for _, name := range c.CrateNames() {
		switch c.Crates[name].Group {
		case "", GroupSafe, GroupSandbox, GroupTest:
			// valid
		default:
			return fmt.Errorf("invalid group for crate %s: %s (must be safe, sandbox, or test)", name, c.Crates[name].Group)
		}
	}

	return nil
}

// VendorDir returns the directory crates are vendored into
func (c *Config) VendorDir() string {
	return filepath.Join(c.Paths.CargoRoot, "vendor")
}

// PatchesDir returns the directory holding per-crate patch directories
func (c *Config) PatchesDir() string {
	return filepath.Join(c.Paths.CargoRoot, "patches")
}

// LockFilePath returns the workspace Cargo.lock
func (c *Config) LockFilePath() string {
	return filepath.Join(c.Paths.CargoRoot, "Cargo.lock")
}

// ManifestPath returns the workspace Cargo.toml
func (c *Config) ManifestPath() string {
	return filepath.Join(c.Paths.CargoRoot, "Cargo.toml")
}

// TemplatePath resolves a configured template file. Relative paths are taken
// from the config file's directory; empty names stay empty.
func (c *Config) TemplatePath(name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.dir, name)
}

// CrateNames returns the names of all configured crates, sorted.
func (c *Config) CrateNames() []string {
	names := make([]string, 0, len(c.Crates))
	for name := range c.Crates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Crate returns the configuration of a crate, if any.
func (c *Config) Crate(name string) (CrateConfig, bool) {
	cc, ok := c.Crates[name]
	return cc, ok
}
