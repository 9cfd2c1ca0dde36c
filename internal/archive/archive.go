// Package archive defines the durable store of messages and envelopes the
// mailroom consults for deduplication. Implementations are swappable: an
// in-memory store for tests and small deployments, a PostgreSQL-backed
// store for production.
package archive

import (
	"context"
	"errors"

	"github.com/lineswarm/relay/core/message"
)

// ErrClosed is returned by operations on a closed archive.
var ErrClosed = errors.New("archive: closed")

// Archive answers "have I seen this message?" and records envelopes as they
// arrive. Equality is by the message's signature (Message.Key), the
// cheapest unique key since Ed25519 signatures are deterministic over a
// fixed key and contents.
type Archive interface {
	// IsMessageInArchive reports whether msg has already been recorded.
	IsMessageInArchive(ctx context.Context, msg message.Message) (bool, error)

	// AddEnvelopeToArchive records env as having arrived from fromKey.
	// Idempotent on the message component: a duplicate signature adds
	// another envelope row but never re-admits the message. Implementations
	// must invoke their MessageAddedFunc exactly once per truly new message.
	AddEnvelopeToArchive(ctx context.Context, fromKey string, env message.Envelope) error
}

// MessageAddedFunc is invoked exactly once per message the first time it is
// archived, useful for UIs/event streams that want to know about genuinely
// new content.
type MessageAddedFunc func(fromKey string, msg message.Message)
