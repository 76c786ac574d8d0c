// Package main provides the entry point for the pairpad CLI.
package main

import (
	"fmt"
	"os"

	"github.com/pairpad/pairpad/cmd/pairpad/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
