// Package cli provides the command-line interface for PolyCortex
package cli

import (
	"fmt"
	"os"
)

// Version is set at build time with -ldflags "-X".
var Version = "dev"

// Run starts the CLI application
func Run() {
	rootCmd := NewRootCmd()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
