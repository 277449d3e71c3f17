// Package main is the entry point for the pagechat CLI.
package main

import (
	"os"

	"github.com/tOgg1/pagechat/internal/cli"
)

// Version information (set by goreleaser)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cli.SetVersion(version, commit, date)
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
