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

// Package message holds the in-memory record types signed and exchanged by
// the relay: authored line contents, the certificates that bind them to an
// identity, and the per-hop envelope that carries them between peers.
package message

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	relaycrypto "github.com/lineswarm/relay/crypto"
	"github.com/lineswarm/relay/crypto/keys"
)

// MessageContents is the authored payload of a Message: a fresh identifier,
// a free-form display author, and the line text itself.
type MessageContents struct {
	UUID   string `json:"uuid"`
	Author string `json:"author"`
	Line   string `json:"line"`
}

// NewMessageContents builds contents with a fresh RFC-4122 v4 identifier.
func NewMessageContents(author, line string) MessageContents {
	return MessageContents{
		UUID:   uuid.NewString(),
		Author: author,
		Line:   line,
	}
}

// CanonicalJSON returns the canonical bytes that a Certificate signs.
func (c MessageContents) CanonicalJSON() ([]byte, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal message contents: %w", err)
	}
	return relaycrypto.Canonicalize(raw)
}

// Certificate binds an identity (base64 Ed25519 public key) to a signature
// over the canonical JSON bytes of whatever object it authenticates.
type Certificate struct {
	Key       string `json:"key"`
	Signature string `json:"signature"`
}

// Sign produces a Certificate for kp over canonical. kp must be an
// Ed25519-backed crypto.KeyPair; this is the only key type the relay
// supports.
func Sign(kp relaycrypto.KeyPair, canonical []byte) (Certificate, error) {
	sig, err := kp.Sign(canonical)
	if err != nil {
		return Certificate{}, fmt.Errorf("sign: %w", err)
	}

	pub, ok := kp.PublicKey().(ed25519.PublicKey)
	if !ok {
		return Certificate{}, fmt.Errorf("sign: unsupported key type")
	}

	return Certificate{
		Key:       keys.EncodePublicKey(pub),
		Signature: keys.EncodeSignature(sig),
	}, nil
}

// Message is an immutable, signed, authored unit: contents plus the
// certificate that binds them to the author of record. The certificate's
// key, not Contents.Author, is the identity used for routing and dedup.
type Message struct {
	Certificate Certificate     `json:"certificate"`
	Contents    MessageContents `json:"contents"`
}

// NewSignedMessage builds and signs a Message for the given contents.
func NewSignedMessage(kp relaycrypto.KeyPair, contents MessageContents) (Message, error) {
	canon, err := contents.CanonicalJSON()
	if err != nil {
		return Message{}, err
	}
	cert, err := Sign(kp, canon)
	if err != nil {
		return Message{}, err
	}
	return Message{Certificate: cert, Contents: contents}, nil
}

// Key returns the deduplication key for this message: its signature. Ed25519
// signing is deterministic for a fixed key and message, so signature
// equality is equivalent to full-field equality in practice.
func (m Message) Key() string {
	return m.Certificate.Signature
}

// Envelope is a per-hop container: a message plus routing metadata.
type Envelope struct {
	Forwarded []string `json:"forwarded"`
	TTL       uint8    `json:"ttl"`
	Message   Message  `json:"message"`
}

// WithDecrementedTTL returns a copy of e with its TTL reduced and the
// relayer's public key appended to Forwarded. The caller is responsible for
// dropping the envelope if the returned TTL is zero.
func (e Envelope) WithDecrementedTTL(newTTL uint8, relayer string) Envelope {
	forwarded := make([]string, len(e.Forwarded), len(e.Forwarded)+1)
	copy(forwarded, e.Forwarded)
	forwarded = append(forwarded, relayer)
	return Envelope{
		Forwarded: forwarded,
		TTL:       newTTL,
		Message:   e.Message,
	}
}
