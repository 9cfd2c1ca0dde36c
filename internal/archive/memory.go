package archive

import (
	"context"
	"sync"

	"github.com/lineswarm/relay/core/message"
)

// envelopeRecord is a stored envelope plus the sender it arrived from:
// messages keyed by signature, envelopes carrying their sender, TTL and
// forwarding log.
type envelopeRecord struct {
	fromKey string
	env     message.Envelope
}

// MemoryArchive is an in-process Archive backed by a mutex-guarded map.
// It is the default for tests and for deployments that can afford to
// forget on restart.
type MemoryArchive struct {
	mu        sync.RWMutex
	messages  map[string]message.Message
	envelopes []envelopeRecord
	onAdded   MessageAddedFunc
}

// NewMemoryArchive creates an empty in-memory archive. onAdded may be nil.
func NewMemoryArchive(onAdded MessageAddedFunc) *MemoryArchive {
	return &MemoryArchive{
		messages: make(map[string]message.Message),
		onAdded:  onAdded,
	}
}

// IsMessageInArchive reports whether msg has already been recorded.
func (a *MemoryArchive) IsMessageInArchive(_ context.Context, msg message.Message) (bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.messages[msg.Key()]
	return ok, nil
}

// AddEnvelopeToArchive records env as having arrived from fromKey.
func (a *MemoryArchive) AddEnvelopeToArchive(_ context.Context, fromKey string, env message.Envelope) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := env.Message.Key()
	_, seen := a.messages[key]
	if !seen {
		a.messages[key] = env.Message
	}

	a.envelopes = append(a.envelopes, envelopeRecord{fromKey: fromKey, env: env})

	if !seen && a.onAdded != nil {
		a.onAdded(fromKey, env.Message)
	}
	return nil
}

// EnvelopesFrom returns the envelopes recorded as arriving from fromKey,
// in arrival order, for tests and diagnostics.
func (a *MemoryArchive) EnvelopesFrom(fromKey string) []message.Envelope {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var out []message.Envelope
	for _, rec := range a.envelopes {
		if rec.fromKey == fromKey {
			out = append(out, rec.env)
		}
	}
	return out
}

// Len returns the number of distinct messages archived, for tests and
// diagnostics.
func (a *MemoryArchive) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.messages)
}
