// Package main is the single-binary entrypoint for avalia.
package main

import "github.com/avalia-ganha/avalia/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
