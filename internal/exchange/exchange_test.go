package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	relaycrypto "github.com/lineswarm/relay/crypto"
	"github.com/lineswarm/relay/crypto/keys"
	"github.com/lineswarm/relay/core/mailroom"
	"github.com/lineswarm/relay/core/message"
	"github.com/lineswarm/relay/internal/archive"
	"github.com/lineswarm/relay/internal/events"
)

// recorder captures events across goroutines.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) HandleEvent(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) types() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]events.Type, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func (r *recorder) has(t events.Type) bool {
	for _, got := range r.types() {
		if got == t {
			return true
		}
	}
	return false
}

// relayFixture is one full relay: identity, mailroom, archive, and a
// record of admitted lines.
type relayFixture struct {
	kp       relaycrypto.KeyPair
	mailroom *mailroom.Mailroom
	archive  *archive.MemoryArchive

	mu       sync.Mutex
	received []string
}

func newRelayFixture(t *testing.T, poem ...string) *relayFixture {
	t.Helper()

	kp, err := keys.GenerateEd25519KeyPair()
	require.NoError(t, err)

	f := &relayFixture{kp: kp}
	f.archive = archive.NewMemoryArchive(func(_ string, msg message.Message) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.received = append(f.received, msg.Contents.Line)
	})

	f.mailroom, err = mailroom.NewWithPeriod(kp, &poemSource{poem: poem}, f.archive,
		func(tm time.Time) time.Time { return tm.UTC().Truncate(time.Minute) }, time.Minute)
	require.NoError(t, err)
	return f
}

type poemSource struct {
	poem []string
	next int
}

func (s *poemSource) GetNextLine() (mailroom.NextLine, bool) {
	if len(s.poem) == 0 {
		return mailroom.NextLine{}, false
	}
	line := s.poem[s.next]
	s.next = (s.next + 1) % len(s.poem)
	return mailroom.NextLine{Line: line, Author: "test"}, true
}

func (f *relayFixture) key() string {
	return f.mailroom.PublicKey()
}

func (f *relayFixture) hasLine(line string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.received {
		if l == line {
			return true
		}
	}
	return false
}

func everyTick() mailroom.OutgoingConfig {
	return mailroom.OutgoingConfig{SendOnMinute: nil, TTL: mailroom.DefaultTTLConfig()}
}

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// startListener serves fixture b's exchange handler over httptest, with
// time pinned to at.
func startListener(t *testing.T, b *relayFixture, roster *Roster, rec events.Handler, at time.Time) *httptest.Server {
	t.Helper()

	l := NewListener(b.mailroom, roster, rec)
	l.now = func() time.Time { return at }

	srv := httptest.NewServer(l)
	t.Cleanup(srv.Close)
	return srv
}

func TestTwoPeerExchangeOverHTTP(t *testing.T) {
	a := newRelayFixture(t, "a's line")
	b := newRelayFixture(t, "b's line")

	bRoster := NewRoster([]Peer{{Key: a.key(), Nickname: "a"}}, everyTick())
	srv := startListener(t, b, bRoster, events.Discard, fixedNow)

	aRec := &recorder{}
	aRoster := NewRoster([]Peer{{Key: b.key(), Endpoint: srv.URL, Nickname: "b"}}, everyTick())
	sender := NewSender(a.mailroom, aRoster, aRec)
	sender.now = func() time.Time { return fixedNow }

	sender.Tick(context.Background())

	require.True(t, b.hasLine("a's line"), "b should have admitted a's contribution")
	require.True(t, a.hasLine("b's line"), "a should have admitted b's reply")

	require.True(t, aRec.has(events.SenderSentToListener))
	require.True(t, aRec.has(events.SenderReceivedFromListener))
}

func TestListenerRejectsMalformedPayload(t *testing.T) {
	b := newRelayFixture(t, "b's line")
	rec := &recorder{}
	roster := NewRoster(nil, everyTick())
	srv := startListener(t, b, roster, rec, fixedNow)

	resp, err := http.Post(srv.URL, "application/json", strings.NewReader(`{"fact":"this json is nonsense"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.True(t, rec.has(events.ListenerReceivedBadPayload))
	require.Zero(t, b.archive.Len(), "state must be unchanged")
}

func TestListenerRejectsUntrustedSender(t *testing.T) {
	a := newRelayFixture(t, "a's line")
	b := newRelayFixture(t, "b's line")

	// B does not trust A.
	rec := &recorder{}
	bRoster := NewRoster(nil, everyTick())
	srv := startListener(t, b, bRoster, rec, fixedNow)

	out, err := a.mailroom.GetOutgoingAtTime(context.Background(), b.key(), everyTick(), fixedNow)
	require.NoError(t, err)
	body, err := out.CreatePayload()
	require.NoError(t, err)

	resp, err := http.Post(srv.URL, "application/json", strings.NewReader(string(body)))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.True(t, rec.has(events.ListenerReceivedFromUntrustedSender))
	require.Zero(t, b.archive.Len(), "state must be unchanged")
}

func TestListenerRejectsDuplicateInPeriod(t *testing.T) {
	a := newRelayFixture(t, "a's line")
	b := newRelayFixture(t, "b's line")

	rec := &recorder{}
	bRoster := NewRoster([]Peer{{Key: a.key()}}, everyTick())

	// One listener per delivery so each can carry its own pinned clock;
	// the mailroom behind them is shared.
	post := func(at time.Time) int {
		out, err := a.mailroom.GetOutgoingAtTime(context.Background(), b.key(), everyTick(), at)
		require.NoError(t, err)
		body, err := out.CreatePayload()
		require.NoError(t, err)

		srv := startListener(t, b, bRoster, rec, at)
		resp, err := http.Post(srv.URL, "application/json", strings.NewReader(string(body)))
		require.NoError(t, err)
		defer resp.Body.Close()
		return resp.StatusCode
	}

	require.Equal(t, http.StatusOK, post(fixedNow))
	require.Equal(t, http.StatusForbidden, post(fixedNow.Add(10*time.Second)))
	require.True(t, rec.has(events.ListenerAlreadyReceivedFromSender))
}

func TestListenerRejectsNonPost(t *testing.T) {
	b := newRelayFixture(t)
	srv := startListener(t, b, NewRoster(nil, everyTick()), events.Discard, fixedNow)

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestSenderEmitsTransportError(t *testing.T) {
	a := newRelayFixture(t, "a's line")

	rec := &recorder{}
	roster := NewRoster([]Peer{{Key: "peer", Endpoint: "http://127.0.0.1:1", Nickname: "dead"}}, everyTick())
	sender := NewSender(a.mailroom, roster, rec)
	sender.now = func() time.Time { return fixedNow }

	sender.Tick(context.Background())

	require.True(t, rec.has(events.SenderFailedSending))
	require.False(t, rec.has(events.SenderSentToListener))
}

func TestSenderEmitsHTTPError(t *testing.T) {
	a := newRelayFixture(t, "a's line")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	rec := &recorder{}
	roster := NewRoster([]Peer{{Key: "peer", Endpoint: srv.URL}}, everyTick())
	sender := NewSender(a.mailroom, roster, rec)
	sender.now = func() time.Time { return fixedNow }

	sender.Tick(context.Background())

	require.True(t, rec.has(events.SenderReceivedHTTPError))
}

func TestSenderEmitsBadResponse(t *testing.T) {
	a := newRelayFixture(t, "a's line")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"fact":"not a payload"}`))
	}))
	defer srv.Close()

	rec := &recorder{}
	roster := NewRoster([]Peer{{Key: "peer", Endpoint: srv.URL}}, everyTick())
	sender := NewSender(a.mailroom, roster, rec)
	sender.now = func() time.Time { return fixedNow }

	sender.Tick(context.Background())

	require.True(t, rec.has(events.SenderReceivedBadResponse))
}

func TestSenderSkipsPeersWithoutEndpoint(t *testing.T) {
	a := newRelayFixture(t, "a's line")

	rec := &recorder{}
	roster := NewRoster([]Peer{{Key: "listen-only-peer"}}, everyTick())
	sender := NewSender(a.mailroom, roster, rec)

	sender.Tick(context.Background())

	require.Equal(t, []events.Type{events.SenderTickStarted, events.SenderTickFinished}, rec.types())
}

func TestSchedulerTicksAndStops(t *testing.T) {
	a := newRelayFixture(t)
	rec := &recorder{}
	sender := NewSender(a.mailroom, NewRoster(nil, everyTick()), rec)

	sched := NewScheduler(sender, 50*time.Millisecond, rec)

	ctx, cancel := context.WithTimeout(context.Background(), 180*time.Millisecond)
	defer cancel()

	err := sched.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	ticks := 0
	for _, typ := range rec.types() {
		if typ == events.SenderTickStarted {
			ticks++
		}
	}
	require.GreaterOrEqual(t, ticks, 2)
	require.True(t, rec.has(events.StartedSenderSchedule))
}

func TestRosterReplaceSwapsTrust(t *testing.T) {
	roster := NewRoster([]Peer{{Key: "k1", Nickname: "one"}}, everyTick())
	require.True(t, roster.TrustedKeys().IsTrusted("k1"))

	roster.Replace([]Peer{{Key: "k2"}}, everyTick())
	require.False(t, roster.TrustedKeys().IsTrusted("k1"))
	require.True(t, roster.TrustedKeys().IsTrusted("k2"))

	p, ok := roster.Lookup("k2")
	require.True(t, ok)
	require.Equal(t, "k2", p.Key)
}

func TestServerStartAndShutdown(t *testing.T) {
	b := newRelayFixture(t)
	rec := &recorder{}

	l := NewListener(b.mailroom, NewRoster(nil, everyTick()), rec)
	srv := NewServer("127.0.0.1:0", l, rec)

	done := make(chan error, 1)
	go func() { done <- srv.Start() }()

	require.Eventually(t, func() bool { return rec.has(events.StartedListener) },
		2*time.Second, 10*time.Millisecond)

	require.NoError(t, srv.Shutdown(context.Background()))
	require.NoError(t, <-done)
}
