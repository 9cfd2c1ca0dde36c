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

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SenderTicks tracks scheduled sender ticks
	SenderTicks = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sender",
			Name:      "ticks_total",
			Help:      "Total number of scheduled sender ticks",
		},
	)

	// SenderPosts tracks outbound POSTs by outcome
	SenderPosts = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sender",
			Name:      "posts_total",
			Help:      "Total number of outbound peer POSTs by outcome",
		},
		[]string{"outcome"}, // ok, transport_error, http_error, bad_response, duplicate, db_error
	)

	// SenderPostDuration tracks the full per-peer send round trip
	SenderPostDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sender",
			Name:      "post_duration_seconds",
			Help:      "Outbound POST round-trip duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		},
	)

	// ListenerRequests tracks inbound exchange requests by outcome
	ListenerRequests = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "listener",
			Name:      "requests_total",
			Help:      "Total number of inbound exchange requests by outcome",
		},
		[]string{"outcome"}, // ok, bad_payload, untrusted, duplicate, db_error
	)

	// EnvelopesSent tracks envelopes sent to peers
	EnvelopesSent = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "exchange",
			Name:      "envelopes_sent_total",
			Help:      "Total number of envelopes sent to peers",
		},
	)

	// EnvelopesReceived tracks envelopes accepted from peers
	EnvelopesReceived = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "exchange",
			Name:      "envelopes_received_total",
			Help:      "Total number of envelopes accepted from peers",
		},
	)
)
