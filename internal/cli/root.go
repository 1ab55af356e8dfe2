// Package cli implements the command-line interface for OVC.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kilupskalvis/ovc/internal/config"
	"github.com/kilupskalvis/ovc/internal/core"
	"github.com/kilupskalvis/ovc/internal/snapshot"
	"github.com/kilupskalvis/ovc/internal/store"
)

// cmdContext holds common resources for CLI commands
type cmdContext struct {
	Config    *config.Config
	Registry  *store.Registry
	Snapshots *snapshot.BoltStore
	Service   *core.BranchService
}

// Close releases resources held by cmdContext
func (c *cmdContext) Close() {
	if c.Registry != nil {
		c.Registry.Close()
	}
	if c.Snapshots != nil {
		c.Snapshots.Close()
	}
}

// initContext loads config, opens both stores, and wires the service
// graph with explicit dependency injection.
func initContext() *cmdContext {
	cfg, err := config.Load()
	if err != nil {
		exitError("%v", err)
	}

	registry, err := store.Open(cfg.RegistryPath())
	if err != nil {
		exitError("failed to open registry: %v", err)
	}
	if err := registry.Initialize(); err != nil {
		registry.Close()
		exitError("failed to initialize registry: %v", err)
	}

	snapshots, err := snapshot.OpenBolt(cfg.SnapshotPath())
	if err != nil {
		registry.Close()
		exitError("failed to open snapshot store: %v", err)
	}

	hints, err := registry.LoadHints()
	if err != nil {
		registry.Close()
		snapshots.Close()
		exitError("failed to load merge hints: %v", err)
	}

	logger := cfg.NewLogger(os.Stderr)

	retryCfg := core.DefaultRetryConfig()
	if cfg.MaxRetries > 0 {
		retryCfg.MaxRetries = cfg.MaxRetries
	}
	retried := core.NewRetryingStore(snapshots, retryCfg)

	diff := core.NewDiffEngine(retried, hints)
	resolver := core.NewConflictResolver(hints)
	merge := core.NewMergeEngine(retried, diff, resolver, logger)
	service := core.NewBranchService(registry, retried, diff, merge, core.BranchServiceOptions{
		ProtectedBranches: cfg.ProtectedBranches,
		MergeTimeout:      cfg.MergeTimeout(),
		Logger:            logger,
	})

	return &cmdContext{
		Config:    cfg,
		Registry:  registry,
		Snapshots: snapshots,
		Service:   service,
	}
}

var rootCmd = &cobra.Command{
	Use:   "ovc",
	Short: "Ontology Version Control",
	Long: `OVC (Ontology Version Control) is a git-like tool for version controlling
document-graph ontologies. Branch a schema graph, diff branch states,
and three-way merge concurrent edits with domain-aware conflict
detection.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(branchCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(mergeCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(hintsCmd)
}

// exitError prints an error and exits
func exitError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

// shortID returns first 8 characters of an ID
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
