package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kilupskalvis/ovc/internal/models"
)

var mergeCmd = &cobra.Command{
	Use:   "merge <source>",
	Short: "Merge a branch into another branch",
	Long: `Three-way merge the source branch into the target branch.

If manual-resolution conflicts are detected, the merge is blocked and
the conflict list is printed; nothing is committed.

Examples:
  ovc merge feature                    # Merge 'feature' into main
  ovc merge feature --into develop     # Merge 'feature' into develop
  ovc merge feature -m "merge msg"     # Custom merge commit message`,
	Args: cobra.ExactArgs(1),
	Run:  runMerge,
}

var (
	mergeInto    string
	mergeMessage string
)

func init() {
	mergeCmd.Flags().StringVar(&mergeInto, "into", "main", "Target branch to merge into")
	mergeCmd.Flags().StringVarP(&mergeMessage, "message", "m", "", "Custom merge commit message")
}

func runMerge(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	c := initContext()
	defer c.Close()

	result, err := c.Service.MergeBranches(ctx, args[0], mergeInto, currentUser(), mergeMessage)
	if err != nil {
		exitError("%v", err)
	}

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed, color.Bold)

	switch result.Status {
	case models.MergeBlocked:
		red.Printf("Merge blocked: %d conflict(s) require manual resolution\n\n", len(result.BlockingConflicts()))
		for _, conflict := range result.Conflicts {
			if !conflict.Blocking() {
				continue
			}
			fmt.Printf("  %s  %s\n", conflict.Type, conflict.Path)
			if conflict.Description != "" {
				fmt.Printf("    %s\n", conflict.Description)
			}
		}
		return
	case models.MergePartial:
		yellow.Println("Merge left in a partial state; operator attention needed:")
		for _, warning := range result.Warnings {
			fmt.Printf("  %s\n", warning)
		}
		return
	}

	if result.FastForward {
		green.Printf("Fast-forwarded '%s' to %s\n", result.TargetBranch, shortID(result.MergeCommit))
	} else {
		green.Printf("Merged '%s' into '%s' at %s\n", result.SourceBranch, result.TargetBranch, shortID(result.MergeCommit))
	}

	for _, conflict := range result.Conflicts {
		if conflict.Resolution == models.ResolutionAutoMerged && conflict.Resolved != nil {
			fmt.Printf("  auto-merged %s\n", conflict.Path)
		}
	}
	for _, warning := range result.Warnings {
		yellow.Printf("  warning: %s\n", warning)
	}
}
