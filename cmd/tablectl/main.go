// Package main is the entry point for the tablectl CLI binary.
package main

import (
	"os"

	"tablelens/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
