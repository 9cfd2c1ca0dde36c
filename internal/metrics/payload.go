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
	// PayloadTrustChecks tracks trust pipeline outcomes
	PayloadTrustChecks = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payload",
			Name:      "trust_checks_total",
			Help:      "Total number of payload trust attempts by outcome",
		},
		[]string{"outcome"}, // trusted, cannot_parse, malformed_key, not_trusted, cannot_verify
	)

	// UnverifiedMessages tracks inner envelopes dropped for bad signatures
	UnverifiedMessages = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payload",
			Name:      "unverified_messages_total",
			Help:      "Total number of envelopes dropped because their inner signature did not verify",
		},
	)

	// PayloadSize tracks wire payload sizes
	PayloadSize = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "payload",
			Name:      "size_bytes",
			Help:      "Wire payload size in bytes",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 10), // 64B to 16MB
		},
	)
)
