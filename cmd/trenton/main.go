// Package main provides the entry point for the trenton CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/trenton/cmd/trenton/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
