// Package main is the entry point for the pdfedit command line tool.
package main

import (
	"fmt"
	"os"

	"github.com/Shimizu-Technology/pdf-tools-api/cmd/pdfedit/commands"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	if err := commands.NewRootCmd(Version).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
