// Command axebergos boots and drives the kernel core from the command line.
package main

import (
	"fmt"
	"os"

	"github.com/axeberg/axebergos/cmd/axebergos/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "axebergos: %v\n", err)
		os.Exit(1)
	}
}
