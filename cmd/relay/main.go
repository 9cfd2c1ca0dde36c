// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "relay",
	Short: "A peer-to-peer gossip relay for authored lines of poetry",
	Long: `relay runs one instance of a small-fanout gossip network. Each period it
contributes one line from its local poem, exchanges signed payloads with
its trusted peers, and forwards the lines it received a period ago, within
a TTL bound.

Trust is anchored in long-lived Ed25519 identities; every payload is
signed over canonical JSON.`,
}

func main() {
	// Load .env ahead of config so local secrets (RELAY_SECRET_KEY, the
	// archive password) stay out of the YAML.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	// Disable default completion command
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	// Note: Commands are registered in their respective files
	// - serve.go: serveCmd
	// - keygen.go: keygenCmd
	// - version.go: versionCmd
}
