// ./main.go
package main

import (
	"github.com/Attta-pangestu/venus-autofill/cmd"
)

// main is the entry point for the venus-autofill CLI.
func main() {
	// Execute the root command defined in the cmd package.
	// This handles all command-line parsing, configuration, and execution.
	cmd.Execute()
}
