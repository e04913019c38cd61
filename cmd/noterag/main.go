// Package main provides the entry point for the noterag CLI.
package main

import (
	"os"

	"github.com/noterag/noterag/cmd/noterag/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
