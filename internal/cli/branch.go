package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var branchCmd = &cobra.Command{
	Use:   "branch [name] [parent]",
	Short: "List, create, or delete branches",
	Long: `Manage branches in the OVC repository.

Without arguments, lists all branches.
With a name argument, creates a new branch forked from a parent branch
(default 'main').

Examples:
  ovc branch                   # List all branches
  ovc branch feature           # Create 'feature' forked from main
  ovc branch feature develop   # Create 'feature' forked from develop
  ovc branch -d feature        # Delete 'feature' branch`,
	Run: runBranch,
}

var (
	branchDelete      bool
	branchDescription string
)

func init() {
	branchCmd.Flags().BoolVarP(&branchDelete, "delete", "d", false, "Delete a branch")
	branchCmd.Flags().StringVar(&branchDescription, "description", "", "Branch description")
}

func runBranch(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	c := initContext()
	defer c.Close()

	// Delete branch
	if branchDelete {
		if len(args) == 0 {
			exitError("branch name required for deletion")
		}
		if err := c.Service.DeleteBranch(ctx, args[0]); err != nil {
			exitError("%v", err)
		}
		fmt.Printf("Deleted branch '%s'\n", args[0])
		return
	}

	// Create branch
	if len(args) > 0 {
		name := args[0]
		parent := "main"
		if len(args) > 1 {
			parent = args[1]
		}

		branch, err := c.Service.CreateBranch(ctx, name, parent, currentUser(), branchDescription)
		if err != nil {
			exitError("%v", err)
		}
		fmt.Printf("Created branch '%s' from '%s' at %s\n", name, parent, shortID(branch.HeadCommit))
		return
	}

	// List branches
	branches, err := c.Service.ListBranches(ctx)
	if err != nil {
		exitError("failed to list branches: %v", err)
	}

	if len(branches) == 0 {
		fmt.Println("No branches yet. Run 'ovc init' first.")
		return
	}

	yellow := color.New(color.FgYellow)
	for _, branch := range branches {
		if branch.Locked {
			yellow.Printf("  %s (merge in flight)\n", branch.Name)
			continue
		}
		fmt.Printf("  %s %s\n", branch.Name, shortID(branch.HeadCommit))
	}
}
