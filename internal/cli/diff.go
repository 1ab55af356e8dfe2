package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kilupskalvis/ovc/internal/models"
)

var diffCmd = &cobra.Command{
	Use:   "diff <from> <to>",
	Short: "Show the structural delta between two refs",
	Long: `Compute the field-level delta between two branch heads or commits.

Examples:
  ovc diff main feature      # Changes on feature relative to main
  ovc diff abc1234 def5678   # Compare two commits directly`,
	Args: cobra.ExactArgs(2),
	Run:  runDiff,
}

func runDiff(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	c := initContext()
	defer c.Close()

	delta, err := c.Service.GetDiff(ctx, args[0], args[1])
	if err != nil {
		exitError("%v", err)
	}

	if delta.Empty() {
		fmt.Println("No changes.")
		return
	}

	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)

	for _, change := range delta.Changes {
		switch change.Kind {
		case models.ChangeAdded:
			green.Printf("+ %s", change.Path)
			printValue(change.After)
		case models.ChangeRemoved:
			red.Printf("- %s", change.Path)
			printValue(change.Before)
		case models.ChangeModified:
			yellow.Printf("~ %s", change.Path)
			fmt.Printf("  %s -> %s", compactValue(change.Before), compactValue(change.After))
			fmt.Println()
		}
	}

	fmt.Printf("\n%d change(s)\n", len(delta.Changes))
}

func printValue(v any) {
	s := compactValue(v)
	if s != "" {
		fmt.Printf("  %s", s)
	}
	fmt.Println()
}

func compactValue(v any) string {
	if v == nil {
		return ""
	}
	if node, ok := v.(*models.Node); ok {
		return fmt.Sprintf("(%s)", node.Kind)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	if len(data) > 60 {
		return string(data[:57]) + "..."
	}
	return string(data)
}
