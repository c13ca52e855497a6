// Copyright (c) 2026 Launchpad Team
// Launchpad - service build and launch manager
// This source code is licensed under the MIT license found in the LICENSE file.

// Command-line entrypoint for Launchpad.
//
// Usage:
//
//	go run . [flags]
//	./launchpad deploy -f render.yaml -r requirements.txt
//
// See --help for the available commands.
package main

import (
	"os"

	"github.com/charmbracelet/log"
	"github.com/toeirei/launchpad/ui/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		log.Error("launchpad", "err", err)
		os.Exit(1)
	}
}
