package main

import (
	"fmt"
	"os"

	"github.com/hbomb79/Stash/internal/cli"
)

// main() is the entry point to the program. All behaviour
// is provided by the commands inside of the cli package.
func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
