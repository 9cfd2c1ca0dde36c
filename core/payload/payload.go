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

// Package payload implements the trust pipeline that turns a received JSON
// document into either a TrustedPayload or a rejection, and serializes
// outgoing envelope bundles with an outer signature.
package payload

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"

	relaycrypto "github.com/lineswarm/relay/crypto"
	"github.com/lineswarm/relay/crypto/keys"
	"github.com/lineswarm/relay/core/message"
)

// Trust pipeline error kinds. These are compared with errors.Is; HTTP
// status mapping lives at the exchange layer, not here.
var (
	ErrCannotParseJSON     = errors.New("payload: cannot parse json")
	ErrMalformedPublicKey  = errors.New("payload: malformed public key")
	ErrPublicKeyNotTrusted = errors.New("payload: public key not trusted")
	ErrCannotVerify        = errors.New("payload: cannot verify signature")
)

// TrustedKeys answers whether a base64-encoded public key is currently
// trusted. A plain map or a config-backed, reader-lock-guarded set both
// satisfy it.
type TrustedKeys interface {
	IsTrusted(key string) bool
}

// KeySet is the simplest TrustedKeys implementation: a fixed set of keys.
type KeySet map[string]struct{}

// IsTrusted reports whether key is a member of the set.
func (s KeySet) IsTrusted(key string) bool {
	_, ok := s[key]
	return ok
}

// NewKeySet builds a KeySet from a slice of base64 public keys.
func NewKeySet(keys ...string) KeySet {
	s := make(KeySet, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

// wireEnvelope mirrors Envelope but keeps the inner message contents as raw
// bytes, so the inner certificate's signature can be verified over exactly
// what the sender signed rather than a re-serialization.
type wireEnvelope struct {
	Forwarded []string          `json:"forwarded"`
	TTL       uint8             `json:"ttl"`
	Message   wireInnerMessage  `json:"message"`
}

type wireInnerMessage struct {
	Certificate message.Certificate `json:"certificate"`
	Contents    json.RawMessage     `json:"contents"`
}

// UntrustedPayload is a parsed-but-unverified wire payload. The envelopes
// subtree is kept as raw bytes: canonicalization and signature verification
// must operate on the bytes the sender actually signed, not on a
// reformatted tree.
type UntrustedPayload struct {
	Certificate  message.Certificate
	RawEnvelopes json.RawMessage
}

// ParsePayload extracts the outer certificate eagerly but defers parsing of
// envelopes until trust has been established.
func ParsePayload(data []byte) (*UntrustedPayload, error) {
	var wire struct {
		Certificate message.Certificate `json:"certificate"`
		Envelopes   json.RawMessage     `json:"envelopes"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCannotParseJSON, err)
	}
	if wire.Envelopes == nil {
		return nil, fmt.Errorf("%w: missing envelopes", ErrCannotParseJSON)
	}
	return &UntrustedPayload{
		Certificate:  wire.Certificate,
		RawEnvelopes: wire.Envelopes,
	}, nil
}

// TrustedPayload is the output of a successful trust attempt: the sender's
// public key and the envelopes it forwarded whose inner signatures verified.
type TrustedPayload struct {
	PublicKey               string
	Envelopes               []message.Envelope
	UnverifiedMessagesCount int
}

// TryTrust runs the five-step trust pipeline: decode the outer key, check
// trust, verify the outer signature over the canonical raw envelopes bytes,
// then parse and verify each inner envelope independently. An envelope
// whose inner signature fails is dropped and counted, not propagated as an
// error; the outer sender is still trusted.
func (u *UntrustedPayload) TryTrust(trusted TrustedKeys) (*TrustedPayload, error) {
	outerPub, err := keys.DecodePublicKey(u.Certificate.Key)
	if err != nil {
		return nil, ErrMalformedPublicKey
	}

	if !trusted.IsTrusted(u.Certificate.Key) {
		return nil, ErrPublicKeyNotTrusted
	}

	outerSig, err := keys.DecodeSignature(u.Certificate.Signature)
	if err != nil {
		return nil, ErrCannotVerify
	}

	canonEnvelopes, err := relaycrypto.Canonicalize(u.RawEnvelopes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCannotParseJSON, err)
	}

	if !ed25519.Verify(outerPub, canonEnvelopes, outerSig) {
		return nil, ErrCannotVerify
	}

	var wireEnvelopes []wireEnvelope
	if err := json.Unmarshal(u.RawEnvelopes, &wireEnvelopes); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCannotParseJSON, err)
	}

	out := &TrustedPayload{PublicKey: u.Certificate.Key}
	for _, we := range wireEnvelopes {
		msg, ok := verifyInnerMessage(we.Message)
		if !ok {
			out.UnverifiedMessagesCount++
			continue
		}
		out.Envelopes = append(out.Envelopes, message.Envelope{
			Forwarded: we.Forwarded,
			TTL:       we.TTL,
			Message:   msg,
		})
	}

	return out, nil
}

func verifyInnerMessage(wm wireInnerMessage) (message.Message, bool) {
	pub, err := keys.DecodePublicKey(wm.Certificate.Key)
	if err != nil {
		return message.Message{}, false
	}
	sig, err := keys.DecodeSignature(wm.Certificate.Signature)
	if err != nil {
		return message.Message{}, false
	}
	canon, err := relaycrypto.Canonicalize(wm.Contents)
	if err != nil {
		return message.Message{}, false
	}
	if !ed25519.Verify(pub, canon, sig) {
		return message.Message{}, false
	}

	var contents message.MessageContents
	if err := json.Unmarshal(wm.Contents, &contents); err != nil {
		return message.Message{}, false
	}

	return message.Message{Certificate: wm.Certificate, Contents: contents}, true
}

// CreatePayload serializes envelopes, signs the canonical bytes of that
// serialization with kp, and returns the wire-ready payload JSON.
func CreatePayload(kp relaycrypto.KeyPair, envelopes []message.Envelope) ([]byte, error) {
	if envelopes == nil {
		envelopes = []message.Envelope{}
	}

	envelopesJSON, err := json.Marshal(envelopes)
	if err != nil {
		return nil, fmt.Errorf("marshal envelopes: %w", err)
	}

	canon, err := relaycrypto.Canonicalize(envelopesJSON)
	if err != nil {
		return nil, fmt.Errorf("canonicalize envelopes: %w", err)
	}

	cert, err := message.Sign(kp, canon)
	if err != nil {
		return nil, fmt.Errorf("sign envelopes: %w", err)
	}

	out := struct {
		Certificate message.Certificate `json:"certificate"`
		Envelopes   json.RawMessage     `json:"envelopes"`
	}{
		Certificate: cert,
		Envelopes:   envelopesJSON,
	}

	return json.Marshal(out)
}
