package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/schaermu/cratevendor/internal/cargo"
	"github.com/schaermu/cratevendor/internal/config"
	"github.com/schaermu/cratevendor/internal/epoch"
	"github.com/schaermu/cratevendor/internal/git"
	"github.com/schaermu/cratevendor/internal/inherit"
	"github.com/schaermu/cratevendor/internal/patch"
	"github.com/schaermu/cratevendor/internal/placeholder"
	"github.com/schaermu/cratevendor/internal/readme"
	"github.com/schaermu/cratevendor/internal/registry"
	"github.com/schaermu/cratevendor/internal/render"
	"github.com/schaermu/cratevendor/internal/vendor"
	"github.com/schaermu/cratevendor/internal/vet"
)

// skipAllPatches is the value --no-patches takes when given without names.
const skipAllPatches = "*"

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile   string
	logLevel  string
	logFormat string
	cargoBin  string
	gitBin    string

	// Vendor flags
	dryRun            bool
	noPatches         []string
	dumpTemplateInput bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "cratevendor",
	Short: "Reconcile a vendored crates directory with cargo's dependency graph",
	Long: `cratevendor keeps a checked-in cargo vendor directory in sync with the
dependency graph of a cargo workspace.

Crates the build uses are downloaded from the registry and patched with the
local patch series; crates that are only part of the full graph are replaced
by minimal placeholders. Stale directories are removed.`,
	SilenceUsage: true,
}

var vendorCmd = &cobra.Command{
	Use:   "vendor",
	Short: "Bring the vendor directory in line with the dependency graph",
	Long: `Vendor runs cargo metadata against the real registry, then downloads,
patches, or replaces with placeholders every crate whose vendor directory is
missing or outdated, and deletes directories no crate claims.

Afterwards a README is written for every vendored crate under the output root
and epoch directories no crate produces anymore are deleted. The vetting
policy covering every registry crate is rendered last.`,
	Args: cobra.NoArgs,
	RunE: runVendor,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("cratevendor %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./cratevendor.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")
	rootCmd.PersistentFlags().StringVar(&cargoBin, "cargo", "cargo", "cargo binary")
	rootCmd.PersistentFlags().StringVar(&gitBin, "git", "git", "git binary used to apply patches")

	// Vendor command flags
	vendorCmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be done without making changes")
	vendorCmd.Flags().StringSliceVar(&noPatches, "no-patches", nil, "skip applying patches, for all crates or only the named ones")
	vendorCmd.Flags().Lookup("no-patches").NoOptDefVal = skipAllPatches
	vendorCmd.Flags().BoolVar(&dumpTemplateInput, "dump-template-input", false, "write README template input as JSON instead of README files")

	// Add commands
	rootCmd.AddCommand(vendorCmd)
	rootCmd.AddCommand(versionCmd)
}

func runVendor(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.Info("collecting cargo metadata", "manifest", cfg.ManifestPath())
	meta, err := cargo.NewShellClient(cargoBin).Metadata(ctx, cfg.Paths.CargoRoot)
	if err != nil {
		return fmt.Errorf("failed to collect cargo metadata: %w", err)
	}
	resolved, err := cargo.ResolvedIDs(meta, cfg.Resolve.Root)
	if err != nil {
		return fmt.Errorf("failed to resolve dependencies: %w", err)
	}

	engine, err := newEngine(cfg, meta, skipPolicy(), logger)
	if err != nil {
		return err
	}

	if err := engine.Run(ctx, meta, resolved); err != nil {
		logger.Error("vendor failed", "error", err)
		return err
	}

	return nil
}

// newEngine wires the vendoring components for cfg and the collected metadata.
func newEngine(cfg *config.Config, meta *cargo.Metadata, skip patch.SkipPolicy, logger *slog.Logger) (*vendor.Engine, error) {
	tmpls, err := render.Load(map[string]string{
		render.Readme:          cfg.TemplatePath(cfg.Templates.Readme),
		render.RemovedManifest: cfg.TemplatePath(cfg.Templates.RemovedManifest),
		render.RemovedLib:      cfg.TemplatePath(cfg.Templates.RemovedLib),
		render.Vet:             cfg.TemplatePath(cfg.Templates.Vet),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}

	attrs, err := inherit.New(cfg, meta)
	if err != nil {
		return nil, err
	}

	comp := vendor.Components{
		Fetcher:     registry.NewFetcher(cfg.Registry.URL, cfg.VendorDir(), nil, logger),
		Patcher:     patch.NewApplier(git.NewShellClient(gitBin), cfg.PatchesDir(), cfg.Paths.SourceRoot, skip, logger),
		Synthesizer: placeholder.NewSynthesizer(tmpls, cfg.VendorDir(), logger),
		Outputs: readme.NewWriter(tmpls, attrs,
			cfg.Paths.OutputRoot, cfg.Readme.FileName, dumpTemplateInput, logger),
		Collector: epoch.NewCollector(cfg.Paths.OutputRoot, logger),
		Policy:    vet.NewWriter(tmpls, attrs, cfg.Paths.VetConfigFile, dumpTemplateInput, logger),
	}
	return vendor.NewEngine(cfg, comp, logger, dryRun), nil
}

// skipPolicy translates --no-patches into a patch.SkipPolicy.
func skipPolicy() patch.SkipPolicy {
	switch {
	case len(noPatches) == 0:
		return patch.SkipNone()
	case slices.Contains(noPatches, skipAllPatches):
		return patch.SkipAll()
	default:
		return patch.SkipCrates(noPatches...)
	}
}

func setupLogger() *slog.Logger {
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func loadConfig(logger *slog.Logger) (*config.Config, error) {
	configPath := cfgFile
	if configPath == "" {
		configPath = "cratevendor.yaml"
	}

	logger.Info("loading configuration", "path", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger.Debug("configuration loaded",
		"cargo_root", cfg.Paths.CargoRoot,
		"output_root", cfg.Paths.OutputRoot,
		"registry", cfg.Registry.URL,
		"root", cfg.Resolve.Root)

	return cfg, nil
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	return ctx, cancel
}
