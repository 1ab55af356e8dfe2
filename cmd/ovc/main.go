// Command ovc is the Ontology Version Control CLI.
package main

import (
	"os"

	"github.com/kilupskalvis/ovc/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
