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

package exchange

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lineswarm/relay/core/mailroom"
	"github.com/lineswarm/relay/core/payload"
	"github.com/lineswarm/relay/internal/events"
	"github.com/lineswarm/relay/internal/metrics"
)

// DefaultPostTimeout bounds one outbound exchange round trip. It is far
// below any reasonable period so a hung peer cannot eat into the next
// tick.
const DefaultPostTimeout = 30 * time.Second

// maxResponseBytes caps how much of a peer's reply we will read.
const maxResponseBytes = 1 << 22 // 4 MiB

// Sender runs the outbound half of the exchange loop: one Tick contacts
// every peer that has an endpoint, concurrently, and feeds each response
// back into the mailroom.
type Sender struct {
	mailroom *mailroom.Mailroom
	roster   *Roster
	events   events.Handler
	client   *http.Client
	now      func() time.Time
}

// NewSender creates a sender with the default POST timeout.
func NewSender(m *mailroom.Mailroom, roster *Roster, handler events.Handler) *Sender {
	if handler == nil {
		handler = events.Discard
	}
	return &Sender{
		mailroom: m,
		roster:   roster,
		events:   handler,
		client:   &http.Client{Timeout: DefaultPostTimeout},
		now:      time.Now,
	}
}

// Tick runs one scheduled exchange round. All peers with endpoints are
// contacted in parallel; per-peer failures are emitted as events, never
// returned. Tick returns once every peer interaction has finished.
func (s *Sender) Tick(ctx context.Context) {
	metrics.SenderTicks.Inc()
	s.events.HandleEvent(events.Event{Type: events.SenderTickStarted})

	g, ctx := errgroup.WithContext(ctx)
	for _, peer := range s.roster.Peers() {
		if peer.Endpoint == "" {
			continue
		}
		g.Go(func() error {
			s.exchangeWith(ctx, peer)
			return nil
		})
	}
	_ = g.Wait()

	s.events.HandleEvent(events.Event{Type: events.SenderTickFinished})
}

// exchangeWith runs the full send-receive round trip with one peer. The
// mailroom lock is taken twice (once to build the outgoing payload, once
// to admit the response) and never held across the network I/O between
// them.
func (s *Sender) exchangeWith(ctx context.Context, peer Peer) {
	evPeer := &events.Peer{Key: peer.Key, Nickname: peer.Nickname}
	start := s.now()

	out, err := s.mailroom.GetOutgoingAtTime(ctx, peer.Key, s.roster.Outgoing(), start)
	if err != nil {
		metrics.SenderPosts.WithLabelValues("db_error").Inc()
		metrics.ArchiveErrors.WithLabelValues("sender").Inc()
		s.events.HandleEvent(events.Event{Type: events.SenderDBError, Peer: evPeer, Detail: err.Error()})
		return
	}

	body, err := out.CreatePayload()
	if err != nil {
		metrics.SenderPosts.WithLabelValues("transport_error").Inc()
		s.events.HandleEvent(events.Event{Type: events.SenderFailedSending, Peer: evPeer, Detail: err.Error()})
		return
	}
	metrics.PayloadSize.Observe(float64(len(body)))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, peer.Endpoint, bytes.NewReader(body))
	if err != nil {
		metrics.SenderPosts.WithLabelValues("transport_error").Inc()
		s.events.HandleEvent(events.Event{Type: events.SenderFailedSending, Peer: evPeer, Detail: err.Error()})
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		metrics.SenderPosts.WithLabelValues("transport_error").Inc()
		s.events.HandleEvent(events.Event{Type: events.SenderFailedSending, Peer: evPeer, Detail: err.Error()})
		return
	}
	defer resp.Body.Close()

	metrics.SenderPostDuration.Observe(s.now().Sub(start).Seconds())
	metrics.EnvelopesSent.Add(float64(len(out.Envelopes)))
	s.events.HandleEvent(events.Event{Type: events.SenderSentToListener, Peer: evPeer, Envelopes: out.Envelopes})

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.SenderPosts.WithLabelValues("http_error").Inc()
		s.events.HandleEvent(events.Event{
			Type:   events.SenderReceivedHTTPError,
			Peer:   evPeer,
			Detail: fmt.Sprintf("%d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
		})
		return
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		metrics.SenderPosts.WithLabelValues("bad_response").Inc()
		s.events.HandleEvent(events.Event{Type: events.SenderReceivedBadResponse, Peer: evPeer, Detail: err.Error()})
		return
	}

	trusted, err := trustPayload(respBody, s.roster.TrustedKeys())
	if err != nil {
		metrics.SenderPosts.WithLabelValues("bad_response").Inc()
		s.events.HandleEvent(events.Event{Type: events.SenderReceivedBadResponse, Peer: evPeer, Detail: err.Error()})
		return
	}

	switch err := s.mailroom.ReceivePayloadAtTime(ctx, trusted, s.now()); {
	case err == nil:
		metrics.SenderPosts.WithLabelValues("ok").Inc()
		metrics.EnvelopesReceived.Add(float64(len(trusted.Envelopes)))
		s.events.HandleEvent(events.Event{Type: events.SenderReceivedFromListener, Peer: evPeer, Envelopes: trusted.Envelopes})
	case errors.Is(err, mailroom.ErrAlreadyReceivedFromKey):
		metrics.SenderPosts.WithLabelValues("duplicate").Inc()
		s.events.HandleEvent(events.Event{Type: events.SenderAlreadyReceivedFromListener, Peer: evPeer})
	default:
		metrics.SenderPosts.WithLabelValues("db_error").Inc()
		metrics.ArchiveErrors.WithLabelValues("sender").Inc()
		s.events.HandleEvent(events.Event{Type: events.SenderDBError, Peer: evPeer, Detail: err.Error()})
	}
}

// trustPayload parses and trust-checks a wire payload, recording the
// outcome.
func trustPayload(body []byte, trusted payload.KeySet) (*payload.TrustedPayload, error) {
	parsed, err := payload.ParsePayload(body)
	if err != nil {
		metrics.PayloadTrustChecks.WithLabelValues("cannot_parse").Inc()
		return nil, err
	}

	tp, err := parsed.TryTrust(trusted)
	if err != nil {
		metrics.PayloadTrustChecks.WithLabelValues(trustOutcome(err)).Inc()
		return nil, err
	}

	metrics.PayloadTrustChecks.WithLabelValues("trusted").Inc()
	metrics.UnverifiedMessages.Add(float64(tp.UnverifiedMessagesCount))
	return tp, nil
}

func trustOutcome(err error) string {
	switch {
	case errors.Is(err, payload.ErrMalformedPublicKey):
		return "malformed_key"
	case errors.Is(err, payload.ErrPublicKeyNotTrusted):
		return "not_trusted"
	case errors.Is(err, payload.ErrCannotVerify):
		return "cannot_verify"
	default:
		return "cannot_parse"
	}
}
