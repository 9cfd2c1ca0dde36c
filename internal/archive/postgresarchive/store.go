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

// Package postgresarchive is a PostgreSQL-backed Archive. Message dedup
// uses a transactional check-then-insert keyed on the deterministic
// message signature.
package postgresarchive

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lineswarm/relay/core/message"
	"github.com/lineswarm/relay/internal/archive"
)

// Schema is the DDL required by Store. NewStore applies it on every open;
// the statements are idempotent. Migrations beyond that are out of scope
// for this relay.
const Schema = `
CREATE TABLE IF NOT EXISTS relay_messages (
	signature  TEXT PRIMARY KEY,
	uuid       TEXT NOT NULL,
	author     TEXT NOT NULL,
	line       TEXT NOT NULL,
	cert_key   TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS relay_envelopes (
	id                 BIGSERIAL PRIMARY KEY,
	message_signature  TEXT NOT NULL REFERENCES relay_messages(signature),
	from_key           TEXT NOT NULL,
	ttl                SMALLINT NOT NULL,
	received_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS relay_envelope_forwarded (
	envelope_id BIGINT NOT NULL REFERENCES relay_envelopes(id),
	seq         INT NOT NULL,
	public_key  TEXT NOT NULL,
	PRIMARY KEY (envelope_id, seq)
);
`

// Store implements archive.Archive against a PostgreSQL connection pool.
type Store struct {
	pool    *pgxpool.Pool
	onAdded archive.MessageAddedFunc
}

// Config holds PostgreSQL connection configuration.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// NewStore opens a pool, pings it, and ensures the schema exists.
func NewStore(ctx context.Context, cfg Config, onAdded archive.MessageAddedFunc) (*Store, error) {
	connString := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, Schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	return &Store{pool: pool, onAdded: onAdded}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// IsMessageInArchive reports whether msg has already been recorded.
func (s *Store) IsMessageInArchive(ctx context.Context, msg message.Message) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM relay_messages WHERE signature = $1)`,
		msg.Key(),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check message: %w", err)
	}
	return exists, nil
}

// AddEnvelopeToArchive atomically checks and inserts the message row (only
// on first sight), then always inserts the envelope and forwarded-key rows.
func (s *Store) AddEnvelopeToArchive(ctx context.Context, fromKey string, env message.Envelope) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM relay_messages WHERE signature = $1)`,
		env.Message.Key(),
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check message: %w", err)
	}

	if !exists {
		_, err = tx.Exec(ctx,
			`INSERT INTO relay_messages (signature, uuid, author, line, cert_key, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			env.Message.Key(), env.Message.Contents.UUID, env.Message.Contents.Author,
			env.Message.Contents.Line, env.Message.Certificate.Key, time.Now(),
		)
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
	}

	var envelopeID int64
	err = tx.QueryRow(ctx,
		`INSERT INTO relay_envelopes (message_signature, from_key, ttl, received_at)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		env.Message.Key(), fromKey, env.TTL, time.Now(),
	).Scan(&envelopeID)
	if err != nil {
		return fmt.Errorf("insert envelope: %w", err)
	}

	for i, key := range env.Forwarded {
		_, err = tx.Exec(ctx,
			`INSERT INTO relay_envelope_forwarded (envelope_id, seq, public_key) VALUES ($1, $2, $3)`,
			envelopeID, i, key,
		)
		if err != nil {
			return fmt.Errorf("insert forwarded key: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	if !exists && s.onAdded != nil {
		s.onAdded(fromKey, env.Message)
	}
	return nil
}

// CountMessages returns the total number of distinct archived messages.
func (s *Store) CountMessages(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM relay_messages`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return count, nil
}
