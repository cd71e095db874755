// ./main.go
package main

import (
	"github.com/cicerone-dev/cicerone/cmd"
)

// main is the entry point for the cicerone CLI.
func main() {
	// Execute the root command defined in the cmd package. It handles
	// command-line parsing, configuration, and execution.
	cmd.Execute()
}
