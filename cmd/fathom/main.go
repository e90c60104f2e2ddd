package main

import (
	"errors"
	"fmt"
	"os"

	"fathom/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		// Run failures already printed their own diagnostics.
		if !errors.Is(err, cli.ErrRunFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
