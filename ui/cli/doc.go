// Copyright (c) 2026 Launchpad Team
// Launchpad - service build and launch manager
// This source code is licensed under the MIT license found in the LICENSE file.
//
// Package cli implements the command-line interface for Launchpad using Cobra.
// It wires configuration, logging, translations and the store, and provides
// commands that delegate to the internal packages. CLI code should remain
// thin and keep business logic in internal/.
package cli
