// Package main is the entry point for the branchcheck CLI binary.
package main

import (
	"os"

	"branchcheck/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
