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

package health

import (
	"context"
	"time"
)

// Pinger is the slice of an archive backend the checker needs. The
// in-memory archive has no connection to probe; pass a nil Pinger and the
// archive reports healthy.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker performs health checks
type Checker struct {
	backend string
	pinger  Pinger
}

// NewChecker creates a new health checker for the named archive backend.
func NewChecker(backend string, pinger Pinger) *Checker {
	return &Checker{
		backend: backend,
		pinger:  pinger,
	}
}

// CheckAll performs all health checks
func (c *Checker) CheckAll(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Timestamp: time.Now(),
		Status:    StatusHealthy,
		Errors:    make([]string, 0),
	}

	status.ArchiveStatus = c.checkArchive(ctx)
	if status.ArchiveStatus.Status != StatusHealthy {
		status.Status = status.ArchiveStatus.Status
		if status.ArchiveStatus.Error != "" {
			status.Errors = append(status.Errors, "Archive: "+status.ArchiveStatus.Error)
		}
	}

	status.SystemStatus = CheckSystem()
	if status.SystemStatus.Status != StatusHealthy {
		if status.Status == StatusHealthy {
			status.Status = status.SystemStatus.Status
		} else if status.SystemStatus.Status == StatusUnhealthy {
			status.Status = StatusUnhealthy
		}
		if status.SystemStatus.Error != "" {
			status.Errors = append(status.Errors, "System: "+status.SystemStatus.Error)
		}
	}

	return status
}

// checkArchive probes the archive backend connection.
func (c *Checker) checkArchive(ctx context.Context) *ArchiveHealth {
	health := &ArchiveHealth{
		Status:    StatusHealthy,
		Connected: true,
		Backend:   c.backend,
	}

	if c.pinger == nil {
		return health
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	start := time.Now()
	if err := c.pinger.Ping(pingCtx); err != nil {
		health.Status = StatusUnhealthy
		health.Connected = false
		health.Error = err.Error()
		return health
	}
	health.Latency = time.Since(start).String()

	return health
}
