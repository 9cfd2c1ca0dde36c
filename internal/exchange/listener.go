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
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/lineswarm/relay/core/mailroom"
	"github.com/lineswarm/relay/core/payload"
	"github.com/lineswarm/relay/internal/events"
	"github.com/lineswarm/relay/internal/metrics"
)

// maxRequestBytes caps inbound request bodies.
const maxRequestBytes = 1 << 22 // 4 MiB

// Listener is the inbound half of the exchange loop: an http.Handler that
// admits one payload per POST and replies with this relay's outgoing
// bundle for the sender. Receive-then-reply runs as a single mailroom
// critical section.
type Listener struct {
	mailroom *mailroom.Mailroom
	roster   *Roster
	events   events.Handler
	now      func() time.Time
}

// NewListener creates the exchange handler.
func NewListener(m *mailroom.Mailroom, roster *Roster, handler events.Handler) *Listener {
	if handler == nil {
		handler = events.Discard
	}
	return &Listener{
		mailroom: m,
		roster:   roster,
		events:   handler,
		now:      time.Now,
	}
}

// ServeHTTP handles one exchange request. Status mapping: 200 on success,
// 400 on malformed payloads, 403 on untrusted senders and duplicates this
// period, 500 on archive failure.
func (l *Listener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		metrics.ListenerRequests.WithLabelValues("bad_payload").Inc()
		l.events.HandleEvent(events.Event{Type: events.ListenerReceivedBadPayload, Detail: err.Error()})
		http.Error(w, "cannot read body", http.StatusBadRequest)
		return
	}
	metrics.PayloadSize.Observe(float64(len(body)))

	trusted, err := trustPayload(body, l.roster.TrustedKeys())
	if err != nil {
		l.rejectUntrusted(w, err)
		return
	}

	evPeer := &events.Peer{Key: trusted.PublicKey}
	if peer, ok := l.roster.Lookup(trusted.PublicKey); ok {
		evPeer.Nickname = peer.Nickname
	}

	out, err := l.mailroom.ReceiveAndRespond(r.Context(), trusted, l.roster.Outgoing(), l.now())
	switch {
	case errors.Is(err, mailroom.ErrAlreadyReceivedFromKey):
		metrics.ListenerRequests.WithLabelValues("duplicate").Inc()
		l.events.HandleEvent(events.Event{Type: events.ListenerAlreadyReceivedFromSender, Peer: evPeer})
		http.Error(w, "already received from this key this period", http.StatusForbidden)
		return
	case err != nil:
		metrics.ListenerRequests.WithLabelValues("db_error").Inc()
		metrics.ArchiveErrors.WithLabelValues("listener").Inc()
		l.events.HandleEvent(events.Event{Type: events.ListenerDBError, Peer: evPeer, Detail: err.Error()})
		http.Error(w, "archive failure", http.StatusInternalServerError)
		return
	}

	reply, err := out.CreatePayload()
	if err != nil {
		metrics.ListenerRequests.WithLabelValues("db_error").Inc()
		l.events.HandleEvent(events.Event{Type: events.ListenerDBError, Peer: evPeer, Detail: err.Error()})
		http.Error(w, "cannot build reply", http.StatusInternalServerError)
		return
	}

	metrics.ListenerRequests.WithLabelValues("ok").Inc()
	metrics.EnvelopesReceived.Add(float64(len(trusted.Envelopes)))
	metrics.EnvelopesSent.Add(float64(len(out.Envelopes)))
	l.events.HandleEvent(events.Event{Type: events.ListenerReceivedFromSender, Peer: evPeer, Envelopes: trusted.Envelopes})
	l.events.HandleEvent(events.Event{Type: events.ListenerSentToSender, Peer: evPeer, Envelopes: out.Envelopes})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(reply)
}

func (l *Listener) rejectUntrusted(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, payload.ErrPublicKeyNotTrusted), errors.Is(err, payload.ErrCannotVerify):
		metrics.ListenerRequests.WithLabelValues("untrusted").Inc()
		l.events.HandleEvent(events.Event{Type: events.ListenerReceivedFromUntrustedSender, Detail: err.Error()})
		http.Error(w, "untrusted sender", http.StatusForbidden)
	default:
		metrics.ListenerRequests.WithLabelValues("bad_payload").Inc()
		l.events.HandleEvent(events.Event{Type: events.ListenerReceivedBadPayload, Detail: err.Error()})
		http.Error(w, "malformed payload", http.StatusBadRequest)
	}
}
