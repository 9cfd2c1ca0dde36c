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

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lineswarm/relay/config"
	"github.com/lineswarm/relay/core/mailroom"
	"github.com/lineswarm/relay/core/message"
	relaycrypto "github.com/lineswarm/relay/crypto"
	"github.com/lineswarm/relay/crypto/keys"
	"github.com/lineswarm/relay/internal/archive"
	"github.com/lineswarm/relay/internal/archive/postgresarchive"
	"github.com/lineswarm/relay/internal/events"
	"github.com/lineswarm/relay/internal/exchange"
	"github.com/lineswarm/relay/internal/lines"
	"github.com/lineswarm/relay/internal/logger"
	"github.com/lineswarm/relay/internal/metrics"
	"github.com/lineswarm/relay/pkg/health"
)

var (
	configDir   string
	environment string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the relay daemon",
	Long: `Run the relay: the exchange listener, the period scheduler, and the
metrics and health surfaces, as configured by the YAML config chain
(<env>.yaml, default.yaml, config.yaml) plus RELAY_* environment
overrides.`,
	Example: `  # Run with ./config/default.yaml and a secret from the environment
  RELAY_SECRET_KEY=... relay serve

  # Run a staging instance from another config directory
  relay serve --config-dir /etc/relay --environment staging`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&configDir, "config-dir", "c", "config", "Directory containing config files")
	serveCmd.Flags().StringVarP(&environment, "environment", "e", "", "Environment override (development, staging, production)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(config.LoaderOptions{
		ConfigDir:   configDir,
		Environment: environment,
	})
	if err != nil {
		return err
	}

	log := newLogger(cfg.Logging)

	priv, err := keys.DecodePrivateKey(cfg.Relay.SecretKey)
	if err != nil {
		return fmt.Errorf("decode relay secret key: %w", err)
	}
	kp := keys.FromPrivateKey(priv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Event stream feeds the structured log; archive admissions ride the
	// same stream.
	// Never closed: late ticks may still emit during shutdown, and the
	// process is exiting anyway.
	stream := events.NewStream(256)
	go logEvents(log, stream)

	onAdded := func(fromKey string, msg message.Message) {
		metrics.MessagesArchived.Inc()
		stream.HandleEvent(events.Event{
			Type:   events.MessageArchived,
			Peer:   &events.Peer{Key: fromKey},
			Detail: fmt.Sprintf("%q (%s)", msg.Contents.Line, msg.Contents.Author),
		})
	}

	arch, pinger, closeArchive, err := buildArchive(ctx, cfg.Archive, onAdded)
	if err != nil {
		return err
	}
	defer closeArchive()

	room, err := buildMailroom(kp, cfg, arch)
	if err != nil {
		return err
	}

	roster := exchange.NewRoster(peersFromConfig(cfg.Peers), outgoingFromConfig(cfg.Relay))

	listener := exchange.NewListener(room, roster, stream)
	server := exchange.NewServer(cfg.Relay.ListenAddr, listener, stream)

	sender := exchange.NewSender(room, roster, stream)
	scheduler := exchange.NewScheduler(sender, cfg.Relay.Period, stream)

	if cfg.Metrics.Enabled {
		go func() {
			if err := metrics.StartServer(cfg.Metrics.Addr); err != nil {
				log.Error("Metrics server error", logger.Error(err))
			}
		}()
	}

	var healthServer *health.Server
	if cfg.Health.Enabled {
		checker := health.NewChecker(cfg.Archive.Backend, pinger)
		healthServer = health.NewServer(checker, log, cfg.Health.Addr)
		if err := healthServer.Start(); err != nil {
			return fmt.Errorf("start health server: %w", err)
		}
	}

	serverErr := make(chan error, 1)
	go func() { serverErr <- server.Start() }()
	go func() {
		if err := scheduler.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error("Scheduler stopped", logger.Error(err))
		}
	}()

	log.Info("Relay running",
		logger.String("public_key", room.PublicKey()),
		logger.String("listen_addr", cfg.Relay.ListenAddr),
		logger.Duration("period", cfg.Relay.Period),
		logger.Int("peers", len(cfg.Peers)),
	)

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if healthServer != nil {
		_ = healthServer.Stop(shutdownCtx)
	}
	return server.Shutdown(shutdownCtx)
}

// buildArchive selects the configured backend. The returned Pinger is nil
// for backends with no connection to probe.
func buildArchive(ctx context.Context, cfg *config.ArchiveConfig, onAdded archive.MessageAddedFunc) (archive.Archive, health.Pinger, func(), error) {
	switch cfg.Backend {
	case "memory":
		return archive.NewMemoryArchive(onAdded), nil, func() {}, nil
	case "postgres":
		store, err := postgresarchive.NewStore(ctx, postgresarchive.Config{
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			Database: cfg.Postgres.Database,
			SSLMode:  cfg.Postgres.SSLMode,
		}, onAdded)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open postgres archive: %w", err)
		}
		return store, store, store.Close, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown archive backend %q", cfg.Backend)
	}
}

// buildMailroom assembles the line source and period projection from
// config.
func buildMailroom(kp relaycrypto.KeyPair, cfg *config.Config, arch archive.Archive) (*mailroom.Mailroom, error) {
	var source mailroom.GetNextLine
	switch cfg.Poem.Mode {
	case "loop":
		source = lines.NewPoemLoop(cfg.Relay.Name, cfg.Poem.Lines)
	case "once":
		source = lines.NewOnce(cfg.Relay.Name, cfg.Poem.Lines)
	case "none":
		source = lines.Null{}
	default:
		return nil, fmt.Errorf("unknown poem mode %q", cfg.Poem.Mode)
	}

	if cfg.Relay.Period == time.Hour {
		return mailroom.New(kp, source, arch)
	}

	period := cfg.Relay.Period
	flatten := func(t time.Time) time.Time { return t.UTC().Truncate(period) }
	return mailroom.NewWithPeriod(kp, source, arch, flatten, period)
}

func peersFromConfig(peers []config.PeerConfig) []exchange.Peer {
	out := make([]exchange.Peer, len(peers))
	for i, p := range peers {
		out[i] = exchange.Peer{
			Key:      p.PublicKey,
			Endpoint: p.Endpoint,
			Nickname: p.Nickname,
		}
	}
	return out
}

func outgoingFromConfig(cfg *config.RelayConfig) mailroom.OutgoingConfig {
	return mailroom.OutgoingConfig{
		SendOnMinute: cfg.SendOnMinute,
		TTL: mailroom.TTLConfig{
			InitialTTL:       cfg.InitialTTL,
			MaxForwardingTTL: cfg.MaxForwardingTTL,
		},
	}
}

// newLogger builds the process logger from the logging section.
func newLogger(cfg *config.LoggingConfig) logger.Logger {
	level := logger.InfoLevel
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = logger.DebugLevel
	case "warn":
		level = logger.WarnLevel
	case "error":
		level = logger.ErrorLevel
	}

	out := os.Stdout
	if cfg.Output == "stderr" {
		out = os.Stderr
	}

	l := logger.NewLogger(out, level)
	if cfg.Format == "text" {
		l.SetPrettyPrint(true)
	}
	return l
}

// logEvents drains the event stream into the structured log.
func logEvents(log logger.Logger, stream *events.Stream) {
	for e := range stream.Events() {
		fields := []logger.Field{logger.String("event", string(e.Type))}
		if e.Peer != nil {
			fields = append(fields, logger.String("peer", peerLabel(e.Peer)))
		}
		if e.Envelopes != nil {
			fields = append(fields, logger.Int("envelopes", len(e.Envelopes)))
		}
		if e.Detail != "" {
			fields = append(fields, logger.String("detail", e.Detail))
		}
		if e.Port != 0 {
			fields = append(fields, logger.Int("port", e.Port))
		}

		switch e.Type {
		case events.SenderFailedSending, events.SenderReceivedHTTPError,
			events.SenderReceivedBadResponse, events.SenderDBError,
			events.ListenerDBError:
			log.Error("Exchange problem", fields...)
		case events.ListenerReceivedBadPayload, events.ListenerReceivedFromUntrustedSender,
			events.ListenerAlreadyReceivedFromSender, events.SenderAlreadyReceivedFromListener:
			log.Warn("Exchange rejected", fields...)
		default:
			log.Info("Exchange event", fields...)
		}
	}
}

func peerLabel(p *events.Peer) string {
	if p.Nickname != "" {
		return p.Nickname
	}
	if len(p.Key) > 12 {
		return p.Key[:12] + "…"
	}
	return p.Key
}
