// Package main is the entry point for the pulseloom CLI.
package main

import (
	"os"

	"github.com/PulseLoom/PulseLoom/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
