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

// Package events defines the fire-and-forget stream of tagged values the
// exchange loop emits as it runs. Consumers (the CLI's logger, UIs) observe
// what happened without the exchange loop ever blocking on them.
package events

import (
	"github.com/lineswarm/relay/core/message"
)

// Type tags one exchange-loop occurrence.
type Type string

const (
	// Lifecycle.
	StartedListener       Type = "started_listener"
	StartedSenderSchedule Type = "started_sender_schedule"
	SenderTickStarted     Type = "sender_tick_started"
	SenderTickFinished    Type = "sender_tick_finished"

	// Sender side, one per peer per tick.
	SenderSentToListener              Type = "sender_sent_to_listener"
	SenderReceivedFromListener        Type = "sender_received_from_listener"
	SenderFailedSending               Type = "sender_failed_sending"
	SenderReceivedHTTPError           Type = "sender_received_http_error"
	SenderReceivedBadResponse         Type = "sender_received_bad_response"
	SenderAlreadyReceivedFromListener Type = "sender_already_received_from_listener"
	SenderDBError                     Type = "sender_db_error"

	// Listener side, one per inbound request.
	ListenerReceivedFromSender          Type = "listener_received_from_sender"
	ListenerSentToSender                Type = "listener_sent_to_sender"
	ListenerReceivedBadPayload          Type = "listener_received_bad_payload"
	ListenerReceivedFromUntrustedSender Type = "listener_received_from_untrusted_sender"
	ListenerAlreadyReceivedFromSender   Type = "listener_already_received_from_sender"
	ListenerDBError                     Type = "listener_db_error"

	// Archive.
	MessageArchived Type = "message_archived"
)

// Peer identifies the remote relay an event concerns. Nickname is the
// operator-assigned display name and may be empty.
type Peer struct {
	Key      string
	Nickname string
}

// Event is one tagged occurrence. Only Type is always set; the other
// fields are populated where they make sense for the tag.
type Event struct {
	Type      Type
	Peer      *Peer
	Envelopes []message.Envelope
	Detail    string
	Port      int
}

// Handler consumes events. Implementations must not block; the exchange
// loop calls HandleEvent inline.
type Handler interface {
	HandleEvent(Event)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(Event)

// HandleEvent calls f.
func (f HandlerFunc) HandleEvent(e Event) {
	f(e)
}

// Discard drops every event, for tests and dry runs.
var Discard Handler = HandlerFunc(func(Event) {})

// Stream is a buffered, drop-on-overflow event channel: emission never
// blocks the exchange loop, and a slow consumer loses events rather than
// stalling sends.
type Stream struct {
	ch chan Event
}

// NewStream creates a stream with the given buffer size.
func NewStream(buffer int) *Stream {
	return &Stream{ch: make(chan Event, buffer)}
}

// HandleEvent enqueues e, dropping it if the buffer is full.
func (s *Stream) HandleEvent(e Event) {
	select {
	case s.ch <- e:
	default:
	}
}

// Events returns the receive side of the stream.
func (s *Stream) Events() <-chan Event {
	return s.ch
}

// Close closes the stream. Emitting after Close panics; close only once
// every producer has stopped.
func (s *Stream) Close() {
	close(s.ch)
}

// Tee fans one event out to several handlers in order.
type Tee []Handler

// HandleEvent forwards e to every handler in the tee.
func (t Tee) HandleEvent(e Event) {
	for _, h := range t {
		h.HandleEvent(e)
	}
}
