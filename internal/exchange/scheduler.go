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
	"context"
	"time"

	"github.com/lineswarm/relay/internal/events"
)

// Scheduler wakes the sender once per period, aligned to absolute period
// boundaries (the top of the hour in production) so that all relays agree
// on when a period begins.
type Scheduler struct {
	sender   *Sender
	interval time.Duration
	events   events.Handler
	now      func() time.Time
}

// NewScheduler creates a scheduler firing every interval.
func NewScheduler(sender *Sender, interval time.Duration, handler events.Handler) *Scheduler {
	if handler == nil {
		handler = events.Discard
	}
	return &Scheduler{
		sender:   sender,
		interval: interval,
		events:   handler,
		now:      time.Now,
	}
}

// Run ticks until ctx is cancelled. Each tick fires at the next absolute
// boundary of the interval; a tick that overruns simply delays the next
// one to the following boundary. Cancellation between ticks drops the
// pending tick. A tick in flight receives the cancelled ctx, so its
// outstanding POSTs are aborted; Run returns only after that tick returns.
func (s *Scheduler) Run(ctx context.Context) error {
	s.events.HandleEvent(events.Event{Type: events.StartedSenderSchedule})

	for {
		now := s.now()
		next := now.UTC().Truncate(s.interval).Add(s.interval)

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		s.sender.Tick(ctx)
	}
}
