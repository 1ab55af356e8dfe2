package cli

import (
	"context"
	"fmt"
	"os"
	"os/user"

	"github.com/spf13/cobra"

	"github.com/kilupskalvis/ovc/internal/config"
	"github.com/kilupskalvis/ovc/internal/core"
	"github.com/kilupskalvis/ovc/internal/snapshot"
	"github.com/kilupskalvis/ovc/internal/store"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new OVC repository",
	Long: `Create a .ovc directory in the current directory with an empty root
commit and a 'main' branch pointing at it.`,
	Run: runInit,
}

func runInit(cmd *cobra.Command, args []string) {
	ctx := context.Background()

	cfg, err := config.Initialize()
	if err != nil {
		exitError("%v", err)
	}

	registry, err := store.Open(cfg.RegistryPath())
	if err != nil {
		exitError("failed to open registry: %v", err)
	}
	defer registry.Close()
	if err := registry.Initialize(); err != nil {
		exitError("failed to initialize registry: %v", err)
	}

	snapshots, err := snapshot.OpenBolt(cfg.SnapshotPath())
	if err != nil {
		exitError("failed to open snapshot store: %v", err)
	}
	defer snapshots.Close()

	author := currentUser()
	rootRef, err := snapshots.Commit(ctx, snapshot.CommitRequest{
		Author:  author,
		Message: "Initial commit",
	})
	if err != nil {
		exitError("failed to create root commit: %v", err)
	}

	hints, err := registry.LoadHints()
	if err != nil {
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
		Logger:            logger,
	})

	if _, err := service.CreateRootBranch(ctx, "main", rootRef, author); err != nil {
		exitError("failed to create main branch: %v", err)
	}

	fmt.Printf("Initialized empty OVC repository in %s\n", cfg.OVCPath())
	fmt.Printf("Created branch 'main' at %s\n", shortID(rootRef))
}

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "unknown"
}
