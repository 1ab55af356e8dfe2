package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/kilupskalvis/ovc/internal/models"
)

var hintsCmd = &cobra.Command{
	Use:   "hints",
	Short: "Show the effective merge-hint configuration",
	Long: `List the merge hints in effect: the built-in defaults layered with
any hints persisted in the registry. Fields without an explicit hint
fall back to keyed-map-merge on "name" for lists of named objects,
and atomic-replace otherwise.`,
	Run: runHints,
}

func runHints(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	hints, err := c.Registry.LoadHints()
	if err != nil {
		exitError("%v", err)
	}

	kinds := make([]string, 0, len(hints))
	for kind := range hints {
		kinds = append(kinds, string(kind))
	}
	sort.Strings(kinds)

	for _, kind := range kinds {
		fmt.Printf("%s:\n", kind)
		fields := hints[models.NodeKind(kind)]

		names := make([]string, 0, len(fields))
		for field := range fields {
			names = append(names, field)
		}
		sort.Strings(names)

		for _, field := range names {
			hint := fields[field]
			line := fmt.Sprintf("  %-14s %s", field, hint.Strategy)
			if hint.IdentityKey != "" {
				line += fmt.Sprintf(" (key: %s)", hint.IdentityKey)
			}
			line += fmt.Sprintf(", on conflict: %s", hint.ConflictPolicy)
			if hint.PreserveOrder {
				line += ", preserve order"
			}
			fmt.Println(line)
		}
	}
}
