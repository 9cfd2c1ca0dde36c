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

// Package exchange drives the relay's peer interaction: a scheduler tick
// fans outbound POSTs to every peer with an endpoint, and a listener
// handler admits inbound POSTs and replies in kind. Both paths funnel
// through the mailroom.
package exchange

import (
	"sync"

	"github.com/lineswarm/relay/core/mailroom"
	"github.com/lineswarm/relay/core/payload"
)

// Peer is one trusted relay. Endpoint may be empty for listen-only peers
// we accept from but never POST to.
type Peer struct {
	Key      string
	Endpoint string
	Nickname string
}

// Roster is the reader-biased view of the relay's trust configuration:
// the peer set and the outgoing tick parameters. An external updater may
// swap it at any time; the sender and listener re-read it on every tick
// and request.
type Roster struct {
	mu       sync.RWMutex
	peers    []Peer
	outgoing mailroom.OutgoingConfig
}

// NewRoster builds a roster from an initial peer set and tick config.
func NewRoster(peers []Peer, outgoing mailroom.OutgoingConfig) *Roster {
	r := &Roster{}
	r.Replace(peers, outgoing)
	return r
}

// Replace swaps the whole configuration, for hot reload.
func (r *Roster) Replace(peers []Peer, outgoing mailroom.OutgoingConfig) {
	copied := make([]Peer, len(peers))
	copy(copied, peers)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers = copied
	r.outgoing = outgoing
}

// Peers returns a snapshot of the current peer set.
func (r *Roster) Peers() []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Peer, len(r.peers))
	copy(out, r.peers)
	return out
}

// Outgoing returns the current tick configuration.
func (r *Roster) Outgoing() mailroom.OutgoingConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.outgoing
}

// TrustedKeys returns the current peer keys as a trust set for the payload
// pipeline.
func (r *Roster) TrustedKeys() payload.KeySet {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := make(payload.KeySet, len(r.peers))
	for _, p := range r.peers {
		set[p.Key] = struct{}{}
	}
	return set
}

// Lookup returns the peer with the given key, if present.
func (r *Roster) Lookup(key string) (Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.peers {
		if p.Key == key {
			return p, true
		}
	}
	return Peer{}, false
}
