// Package main is the offlinesync command line entry point.
package main

import (
	"context"
	"os"

	"github.com/saludcampo/offlinesync/internal/cli"
)

// Version is set at build time
var Version = "0.1.0"

func main() {
	cli.Version = Version
	os.Exit(cli.Execute(context.Background(), os.Args[1:]))
}
