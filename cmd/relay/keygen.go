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
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lineswarm/relay/crypto/keys"
)

var (
	keygenJSON   bool
	keygenEnvOut string
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a new relay identity",
	Long: `Generate a new Ed25519 key pair. The public key is this relay's identity:
hand it to peers for their trusted-peer lists. The secret key belongs in
RELAY_SECRET_KEY (or relay.secret_key), never in shared config.`,
	Example: `  # Print a new identity
  relay keygen

  # Append the secret to a .env file and print only the public key
  relay keygen --env-file .env`,
	RunE: runKeygen,
}

func init() {
	rootCmd.AddCommand(keygenCmd)

	keygenCmd.Flags().BoolVar(&keygenJSON, "json", false, "Output as JSON")
	keygenCmd.Flags().StringVar(&keygenEnvOut, "env-file", "", "Append RELAY_SECRET_KEY=... to this file instead of printing the secret")
}

func runKeygen(cmd *cobra.Command, args []string) error {
	kp, err := keys.GenerateEd25519KeyPair()
	if err != nil {
		return fmt.Errorf("failed to generate key pair: %w", err)
	}

	pub := keys.EncodePublicKey(kp.PublicKey().(ed25519.PublicKey))
	priv := keys.EncodePrivateKey(kp.PrivateKey().(ed25519.PrivateKey))

	if keygenEnvOut != "" {
		f, err := os.OpenFile(keygenEnvOut, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("open env file: %w", err)
		}
		defer f.Close()

		if _, err := fmt.Fprintf(f, "RELAY_SECRET_KEY=%s\n", priv); err != nil {
			return fmt.Errorf("write env file: %w", err)
		}

		fmt.Printf("public key: %s\n", pub)
		fmt.Printf("secret key appended to %s\n", keygenEnvOut)
		return nil
	}

	if keygenJSON {
		return json.NewEncoder(os.Stdout).Encode(map[string]string{
			"public_key": pub,
			"secret_key": priv,
		})
	}

	fmt.Printf("public key: %s\n", pub)
	fmt.Printf("secret key: %s\n", priv)
	return nil
}
