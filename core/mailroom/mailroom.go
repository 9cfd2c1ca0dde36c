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

// Package mailroom implements the per-period state machine at the center of
// the relay: it decides what to send to each peer, what to accept from each
// peer, and when the relay's own contribution rolls over. One mailroom
// operation runs at a time; the internal mutex is the relay's single point
// of mutual exclusion.
package mailroom

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	relaycrypto "github.com/lineswarm/relay/crypto"
	"github.com/lineswarm/relay/crypto/keys"
	"github.com/lineswarm/relay/core/message"
	"github.com/lineswarm/relay/core/payload"
	"github.com/lineswarm/relay/internal/archive"
)

// TTL defaults applied when a deployment does not configure its own.
const (
	DefaultInitialTTL       uint8 = 8
	DefaultMaxForwardingTTL uint8 = 8
)

// ErrAlreadyReceivedFromKey is returned when a sender delivers a second
// payload within one period. Within a period, at most one payload per
// sender key is admitted.
var ErrAlreadyReceivedFromKey = errors.New("mailroom: already received payload from this key")

// ArchiveError wraps a failure from the archive backend. The operation that
// hit it is aborted and period state is left unchanged.
type ArchiveError struct {
	Err error
}

func (e *ArchiveError) Error() string {
	return fmt.Sprintf("mailroom: archive failure: %v", e.Err)
}

func (e *ArchiveError) Unwrap() error {
	return e.Err
}

// NextLine is one authored contribution from a line source.
type NextLine struct {
	Line   string
	Author string
}

// GetNextLine is the line-source capability the mailroom depends on: the
// policy that produces this relay's next contributed line, or reports that
// there is none. Implementations live in internal/lines.
type GetNextLine interface {
	GetNextLine() (NextLine, bool)
}

// FlattenTime projects a wall-clock instant onto its period key. Two
// instants with the same projection belong to the same period. Period
// boundaries are absolute (everyone agrees on the top of the hour), so
// projections use wall-clock truncation, never monotonic arithmetic.
type FlattenTime func(time.Time) time.Time

// TTLConfig bounds how far envelopes spread.
type TTLConfig struct {
	InitialTTL       uint8
	MaxForwardingTTL uint8
}

// DefaultTTLConfig returns the standard eight-hop bounds.
func DefaultTTLConfig() TTLConfig {
	return TTLConfig{InitialTTL: DefaultInitialTTL, MaxForwardingTTL: DefaultMaxForwardingTTL}
}

// OutgoingConfig controls one sending tick. SendOnMinute, when set,
// restricts origination to ticks whose wall-clock minute matches, so a
// deployment can stagger authorship across peers within a period; nil means
// originate on every tick. Forwarding happens regardless.
type OutgoingConfig struct {
	SendOnMinute *int
	TTL          TTLConfig
}

// DefaultOutgoingConfig originates at minute zero with default TTL bounds.
func DefaultOutgoingConfig() OutgoingConfig {
	zero := 0
	return OutgoingConfig{SendOnMinute: &zero, TTL: DefaultTTLConfig()}
}

// Mailroom owns the relay's signing identity, its line source, the archive,
// and the period-scoped forwarding state. All exported operations serialize
// on an internal mutex; callers never hold it across network I/O.
type Mailroom struct {
	mu sync.Mutex

	keyPair   relaycrypto.KeyPair
	publicKey string

	lines   GetNextLine
	archive archive.Archive

	flattenTime FlattenTime
	interval    time.Duration

	// newMessages holds the dedup keys of messages admitted from peers
	// this period. forwardingThisPeriod maps each sender key to the
	// envelopes it delivered this period; forwardingLastPeriod is the
	// previous period's map and the source of everything forwarded now.
	newMessages          map[string]struct{}
	forwardingThisPeriod map[string][]message.Envelope
	forwardingLastPeriod map[string][]message.Envelope

	currentMessage         *message.Message
	lastSeenTime           time.Time
	lastUpdatedMessageTime time.Time
}

// New creates a mailroom with the production period: hour-truncated
// flattening and a one-hour interval.
func New(keyPair relaycrypto.KeyPair, lines GetNextLine, arch archive.Archive) (*Mailroom, error) {
	return NewWithPeriod(keyPair, lines, arch, func(t time.Time) time.Time {
		return t.UTC().Truncate(time.Hour)
	}, time.Hour)
}

// NewWithPeriod creates a mailroom with a custom period projection and
// interval, used by tests and fast-mode deployments with second- or
// minute-granularity periods. interval must equal the distance between
// adjacent projections or period rotation will treat every boundary as a
// gap.
func NewWithPeriod(keyPair relaycrypto.KeyPair, lines GetNextLine, arch archive.Archive, flatten FlattenTime, interval time.Duration) (*Mailroom, error) {
	pub, ok := keyPair.PublicKey().(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("mailroom: unsupported key type %s", keyPair.Type())
	}

	return &Mailroom{
		keyPair:              keyPair,
		publicKey:            keys.EncodePublicKey(pub),
		lines:                lines,
		archive:              arch,
		flattenTime:          flatten,
		interval:             interval,
		newMessages:          make(map[string]struct{}),
		forwardingThisPeriod: make(map[string][]message.Envelope),
		forwardingLastPeriod: make(map[string][]message.Envelope),
	}, nil
}

// MinutePeriod returns a projection/interval pair for a period of the given
// number of minutes, for fast-mode deployments.
func MinutePeriod(minutes int) (FlattenTime, time.Duration) {
	d := time.Duration(minutes) * time.Minute
	return func(t time.Time) time.Time { return t.UTC().Truncate(d) }, d
}

// SecondPeriod returns a projection/interval pair for a period of the given
// number of seconds, for tests.
func SecondPeriod(seconds int) (FlattenTime, time.Duration) {
	d := time.Duration(seconds) * time.Second
	return func(t time.Time) time.Time { return t.UTC().Truncate(d) }, d
}

// PublicKey returns the relay's own base64-encoded public key.
func (m *Mailroom) PublicKey() string {
	return m.publicKey
}

// ReceivePayload admits a trusted payload at the current wall-clock time.
func (m *Mailroom) ReceivePayload(ctx context.Context, p *payload.TrustedPayload) error {
	return m.ReceivePayloadAtTime(ctx, p, time.Now())
}

// ReceivePayloadAtTime admits a trusted payload as of now. The payload must
// already have passed the trust pipeline.
//
// Envelopes are processed in list order. A message seen for the first time
// this period (neither in newMessages nor in the archive) is admitted and
// queued for forwarding next period under the sender's key; a message
// already archived is recorded but not forwarded again. Admission to the
// period state is staged and committed only after every archive write
// succeeds, so an ArchiveError mid-payload leaves the period state exactly
// as it was and a retry from the same sender is not rejected as a
// duplicate.
func (m *Mailroom) ReceivePayloadAtTime(ctx context.Context, p *payload.TrustedPayload, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.receivePayloadLocked(ctx, p, now)
}

func (m *Mailroom) receivePayloadLocked(ctx context.Context, p *payload.TrustedPayload, now time.Time) error {
	m.handleTime(now, false)

	if _, ok := m.forwardingThisPeriod[p.PublicKey]; ok {
		return ErrAlreadyReceivedFromKey
	}

	staged := make(map[string]struct{})
	var forwarding []message.Envelope

	for _, env := range p.Envelopes {
		key := env.Message.Key()

		_, isNew := m.newMessages[key]
		if !isNew {
			_, isNew = staged[key]
		}

		if isNew {
			forwarding = append(forwarding, env)
		} else {
			archived, err := m.archive.IsMessageInArchive(ctx, env.Message)
			if err != nil {
				return &ArchiveError{Err: err}
			}
			if !archived {
				staged[key] = struct{}{}
				forwarding = append(forwarding, env)
			}
		}

		if err := m.archive.AddEnvelopeToArchive(ctx, p.PublicKey, env); err != nil {
			return &ArchiveError{Err: err}
		}
	}

	for key := range staged {
		m.newMessages[key] = struct{}{}
	}
	m.forwardingThisPeriod[p.PublicKey] = forwarding

	return nil
}

// Outgoing is the result of one get-outgoing call: the envelopes to send
// and the signing identity needed to wrap them in a payload.
type Outgoing struct {
	Envelopes []message.Envelope

	keyPair relaycrypto.KeyPair
}

// CreatePayload serializes and signs the outgoing envelopes as wire JSON.
func (o *Outgoing) CreatePayload() ([]byte, error) {
	return payload.CreatePayload(o.keyPair, o.Envelopes)
}

// GetOutgoing builds the envelope list for dest at the current wall-clock
// time.
func (m *Mailroom) GetOutgoing(ctx context.Context, dest string, cfg OutgoingConfig) (*Outgoing, error) {
	return m.GetOutgoingAtTime(ctx, dest, cfg, time.Now())
}

// GetOutgoingAtTime builds the envelope list for dest as of now: last
// period's forwarding buffer minus anything that came from dest or was
// originated by dest, TTL-decremented and capped. On an originating tick
// a fresh envelope carrying the relay's own current message is appended.
func (m *Mailroom) GetOutgoingAtTime(ctx context.Context, dest string, cfg OutgoingConfig, now time.Time) (*Outgoing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getOutgoingLocked(ctx, dest, cfg, now)
}

func (m *Mailroom) getOutgoingLocked(ctx context.Context, dest string, cfg OutgoingConfig, now time.Time) (*Outgoing, error) {
	sending := messageThisTick(now, cfg)
	m.handleTime(now, sending)

	// Sorted sender order keeps output deterministic across calls.
	fromKeys := make([]string, 0, len(m.forwardingLastPeriod))
	for fromKey := range m.forwardingLastPeriod {
		fromKeys = append(fromKeys, fromKey)
	}
	sort.Strings(fromKeys)

	var sendingEnvelopes []message.Envelope
	for _, fromKey := range fromKeys {
		if fromKey == dest {
			continue
		}
		for _, env := range m.forwardingLastPeriod[fromKey] {
			// Loopback suppression: a peer never receives its own
			// originations back.
			if env.Message.Certificate.Key == dest {
				continue
			}
			if env.TTL <= 1 {
				continue
			}
			newTTL := env.TTL - 1
			if newTTL > cfg.TTL.MaxForwardingTTL {
				newTTL = cfg.TTL.MaxForwardingTTL
			}
			sendingEnvelopes = append(sendingEnvelopes, env.WithDecrementedTTL(newTTL, m.publicKey))
		}
	}

	if sending && m.currentMessage != nil {
		env := message.Envelope{
			Forwarded: []string{},
			TTL:       cfg.TTL.InitialTTL,
			Message:   *m.currentMessage,
		}
		if err := m.archive.AddEnvelopeToArchive(ctx, env.Message.Certificate.Key, env); err != nil {
			return nil, &ArchiveError{Err: err}
		}
		sendingEnvelopes = append(sendingEnvelopes, env)
	}

	return &Outgoing{Envelopes: sendingEnvelopes, keyPair: m.keyPair}, nil
}

// ReceiveAndRespond admits a trusted payload and builds the reply for its
// sender under a single lock acquisition, so the listener's
// receive-then-reply is one critical section.
func (m *Mailroom) ReceiveAndRespond(ctx context.Context, p *payload.TrustedPayload, cfg OutgoingConfig, now time.Time) (*Outgoing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.receivePayloadLocked(ctx, p, now); err != nil {
		return nil, err
	}
	return m.getOutgoingLocked(ctx, p.PublicKey, cfg, now)
}

// handleTime advances period state to now. On an adjacent-period boundary
// the forwarding buffers rotate; on a gap longer than one interval (or
// clock skew) everything period-scoped is cleared. When isSending and the
// contribution has not yet rolled over this period, a new current message
// is drawn from the line source.
func (m *Mailroom) handleTime(now time.Time, isSending bool) {
	nowFlattened := m.flattenTime(now)

	if !m.lastSeenTime.IsZero() && !nowFlattened.Equal(m.lastSeenTime) {
		if nowFlattened.Equal(m.lastSeenTime.Add(m.interval)) {
			m.forwardingLastPeriod = m.forwardingThisPeriod
		} else {
			m.forwardingLastPeriod = make(map[string][]message.Envelope)
		}
		m.forwardingThisPeriod = make(map[string][]message.Envelope)
		m.newMessages = make(map[string]struct{})
	}

	m.lastSeenTime = nowFlattened

	if isSending && !m.lastUpdatedMessageTime.Equal(nowFlattened) {
		m.setNewMessage()
		m.lastUpdatedMessageTime = nowFlattened
	}
}

func (m *Mailroom) setNewMessage() {
	next, ok := m.lines.GetNextLine()
	if !ok {
		m.currentMessage = nil
		return
	}

	contents := message.NewMessageContents(next.Author, next.Line)
	msg, err := message.NewSignedMessage(m.keyPair, contents)
	if err != nil {
		// Signing plain string contents cannot fail in practice; if it
		// somehow does, this period simply has no contribution.
		m.currentMessage = nil
		return
	}
	m.currentMessage = &msg
}

func messageThisTick(now time.Time, cfg OutgoingConfig) bool {
	return cfg.SendOnMinute == nil || now.UTC().Minute() == *cfg.SendOnMinute
}
