// Package main is the entry point for the proclat procedure latency analyzer.
package main

import (
	"fmt"
	"os"

	"firestige.xyz/proclat/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
