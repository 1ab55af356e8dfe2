package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var logCmd = &cobra.Command{
	Use:   "log [branch]",
	Short: "Show commit history of a branch",
	Args:  cobra.MaximumNArgs(1),
	Run:   runLog,
}

var logLimit int

func init() {
	logCmd.Flags().IntVarP(&logLimit, "limit", "n", 20, "Maximum number of commits to show")
}

func runLog(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	c := initContext()
	defer c.Close()

	name := "main"
	if len(args) > 0 {
		name = args[0]
	}

	branch, err := c.Service.GetBranch(ctx, name)
	if err != nil {
		exitError("%v", err)
	}

	yellow := color.New(color.FgYellow)
	ref := branch.HeadCommit
	for i := 0; ref != "" && i < logLimit; i++ {
		commit, err := c.Snapshots.GetCommit(ctx, ref)
		if err != nil {
			exitError("%v", err)
		}

		yellow.Printf("commit %s", commit.ID)
		if commit.IsMergeCommit() {
			fmt.Printf("  (merge of %s)", shortID(commit.MergeParentID))
		}
		fmt.Println()
		if commit.Author != "" {
			fmt.Printf("Author: %s\n", commit.Author)
		}
		fmt.Printf("Date:   %s\n", commit.Timestamp.Local().Format("Mon Jan 2 15:04:05 2006"))
		fmt.Printf("\n    %s\n\n", commit.Message)

		ref = commit.ParentID
	}
}
