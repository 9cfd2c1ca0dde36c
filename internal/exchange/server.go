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
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/lineswarm/relay/internal/events"
)

// DefaultListenPort is the port peers POST to unless configured otherwise.
const DefaultListenPort = 7070

// Server wraps the listener handler in an HTTP server on the exchange
// endpoint.
type Server struct {
	listener *Listener
	events   events.Handler
	srv      *http.Server
}

// NewServer builds the exchange HTTP server for addr (host:port).
func NewServer(addr string, listener *Listener, handler events.Handler) *Server {
	if handler == nil {
		handler = events.Discard
	}

	mux := http.NewServeMux()
	mux.Handle("/", listener)

	return &Server{
		listener: listener,
		events:   handler,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start serves until Shutdown. It blocks; run it in its own goroutine.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}

	port := 0
	if tcp, ok := ln.Addr().(*net.TCPAddr); ok {
		port = tcp.Port
	}
	s.events.HandleEvent(events.Event{Type: events.StartedListener, Port: port})

	if err := s.srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
