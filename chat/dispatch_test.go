// ABOUTME: Tests for inbound frame dispatch.

package chat

import (
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	messenger "github.com/ledblwka/secure-messenger"
	"github.com/ledblwka/secure-messenger/envelope"
)

func TestReadyOnFirstServerFrame(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.s.Connect(t.Context())
	h.inject(`{"type":"user_joined","sender":"alice","content":"joined the chat"}`)
	if got := h.s.State(); got != Ready {
		t.Fatalf("state=%s", got)
	}
}

func TestEchoSuppression(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.ready(t)

	own, err := envelope.MarkerCodec{}.Encode("my own words", "all")
	if err != nil {
		t.Fatal(err)
	}
	h.injectFrame(t, messenger.Frame{
		Type: "general", Sender: "alice", Recipient: "all", Content: own.Content,
		IV: envelope.MetaToWire(own.InitializationData), AuthTag: envelope.MetaToWire(own.AuthTag),
	})
	h.injectFrame(t, messenger.Frame{Type: "private", Sender: "alice", Recipient: "bob", Content: "dm"})
	if got := h.rec.count("msg:"); got != 0 {
		t.Fatalf("own echoes presented: %v", h.rec.snapshot())
	}

	theirs, err := envelope.MarkerCodec{}.Encode("привет, alice", "alice")
	if err != nil {
		t.Fatal(err)
	}
	h.injectFrame(t, messenger.Frame{
		Type: "private", ID: "m-1", Sender: "bob", Recipient: "alice", Content: theirs.Content,
		IV: envelope.MetaToWire(theirs.InitializationData), AuthTag: envelope.MetaToWire(theirs.AuthTag),
		Timestamp: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	})
	if len(h.rec.messages) != 1 {
		t.Fatalf("messages=%d", len(h.rec.messages))
	}
	msg := h.rec.messages[0]
	if msg.Content != "привет, alice" || msg.Kind != KindPrivate || msg.Own || !msg.Encoded || msg.Envelope == nil {
		t.Fatalf("msg=%+v", msg)
	}
	if !h.rec.scrolls[0] {
		t.Fatal("live message should scroll")
	}
}

func TestPlainContentPassesThrough(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.ready(t)
	h.injectFrame(t, messenger.Frame{Type: "general", Sender: "bob", Recipient: "all", Content: "🔐 looks encoded [для: all]"})

	msg := h.rec.messages[0]
	if msg.Content != "🔐 looks encoded [для: all]" || msg.Encoded || msg.Envelope != nil {
		t.Fatalf("msg=%+v", msg)
	}
}

func TestDecodeFailureFallsBackToStrippedContent(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.ready(t)
	h.injectFrame(t, messenger.Frame{
		Type: "private", Sender: "bob", Recipient: "alice",
		Content: "🔐 ###broken### [для: alice]", IV: "AAAAAAAAAAAAAAAA", AuthTag: "demo_tag",
	})

	if len(h.rec.messages) != 1 {
		t.Fatalf("messages=%d", len(h.rec.messages))
	}
	msg := h.rec.messages[0]
	if msg.Content != "###broken### [для: alice]" || msg.Encoded {
		t.Fatalf("msg=%+v", msg)
	}
}

func TestHistoryFramesIgnoredOnceLoaded(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.ready(t)
	h.inject(`{"type":"history","sender":"bob","recipient":"all","content":"early"}`)
	if got := h.rec.count("msg:bob:early"); got != 1 {
		t.Fatalf("history before load presented %d times", got)
	}
	if h.rec.scrolls[0] {
		t.Fatal("history should not scroll")
	}

	h.s.mu.Lock()
	h.s.historyLoaded = true
	h.s.mu.Unlock()
	h.inject(`{"type":"history","sender":"bob","recipient":"all","content":"late"}`)
	if got := h.rec.count("msg:bob:late"); got != 0 {
		t.Fatalf("history after load presented %d times", got)
	}
}

func TestHistoryFrameWithoutIVIsDecoded(t *testing.T) {
	t.Parallel()

	env, err := envelope.MarkerCodec{}.Encode("hello from history", "all")
	if err != nil {
		t.Fatal(err)
	}
	h := newHarness(t)
	h.ready(t)
	h.injectFrame(t, messenger.Frame{Type: "history", Sender: "bob", Recipient: "all", Content: env.Content})

	if len(h.rec.messages) != 1 {
		t.Fatalf("messages=%d", len(h.rec.messages))
	}
	msg := h.rec.messages[0]
	if msg.Content != "hello from history" || !msg.Encoded || msg.Kind != KindHistory {
		t.Fatalf("msg=%+v", msg)
	}

	// Live frames still need the IV before their content is decoded.
	h.injectFrame(t, messenger.Frame{Type: "general", Sender: "bob", Recipient: "all", Content: env.Content})
	if live := h.rec.messages[1]; live.Content != env.Content || live.Encoded {
		t.Fatalf("live=%+v", live)
	}
}

func TestRosterScenario(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.ready(t)
	h.inject(`{"type":"users_list","users":[{"username":"bob","is_online":true}]}`)

	r := h.s.Roster()
	if r.OnlineCount != 1 {
		t.Fatalf("online=%d", r.OnlineCount)
	}
	if !slices.Equal(r.PrivatePeers, []string{"bob"}) {
		t.Fatalf("peers=%v", r.PrivatePeers)
	}
}

func TestRosterReplacedWholesale(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.ready(t)
	h.inject(`{"type":"users_list","users":[
		{"username":"alice","is_online":true},
		{"username":"bob","is_online":true,"public_key":"pk-bob"},
		{"username":"carol","is_online":false}]}`)

	r := h.s.Roster()
	if r.OnlineCount != 2 || !slices.Equal(r.PrivatePeers, []string{"bob"}) || len(r.Entries) != 3 {
		t.Fatalf("roster=%+v", r)
	}
	if !r.Entries[1].HasPublicKey || r.Entries[2].HasPublicKey {
		t.Fatalf("entries=%+v", r.Entries)
	}

	h.inject(`{"type":"users_list","users":[{"username":"carol","is_online":true}]}`)
	r = h.s.Roster()
	if len(r.Entries) != 1 || r.OnlineCount != 1 || !slices.Equal(r.PrivatePeers, []string{"carol"}) {
		t.Fatalf("roster=%+v", r)
	}
	if got := h.rec.count("roster:"); got != 2 {
		t.Fatalf("roster events=%d", got)
	}
}

func TestSystemAndNotificationFrames(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.ready(t)
	h.inject(`{"type":"user_joined","sender":"bob","content":"joined the chat"}`)
	h.inject(`{"type":"user_left","sender":"bob","content":"left the chat"}`)
	h.inject(`{"type":"success"}`)
	h.inject(`{"type":"error","content":"Recipient not found"}`)

	events := h.rec.snapshot()
	want := []string{
		"system:bob joined the chat",
		"system:bob left the chat",
		"notify:success:Success",
		"notify:error:Recipient not found",
	}
	if got := events[len(events)-4:]; !slices.Equal(got, want) {
		t.Fatalf("events=%v", got)
	}
	if h.s.Closed() {
		t.Fatal("ordinary error closed the session")
	}
}

func TestMalformedAndUnknownFramesIgnored(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.ready(t)
	before := len(h.rec.snapshot())

	h.inject(`not json`)
	h.inject(`{"content":"no type"}`)
	h.inject(`{"type":"reaction","sender":"bob"}`)
	h.inject(`{"type":"pong"}`)

	if got := len(h.rec.snapshot()); got != before {
		t.Fatalf("events=%v", h.rec.snapshot()[before:])
	}
	if got := h.s.State(); got != Ready {
		t.Fatalf("state=%s", got)
	}
}

func TestAuthenticationFailureLogsOutOnce(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.s.Connect(t.Context())
	conn := h.dial.last(t)
	h.inject(`{"type":"error","content":"Authentication failed"}`)

	if h.rec.loggedOut != 1 {
		t.Fatalf("logged_out=%d", h.rec.loggedOut)
	}
	if !errors.Is(h.rec.logoutErrs[0], ErrAuthenticationRejected) {
		t.Fatalf("reason=%v", h.rec.logoutErrs[0])
	}
	if !conn.isClosed() {
		t.Fatal("transport left open")
	}
	if got := h.s.State(); got != Disconnected {
		t.Fatalf("state=%s", got)
	}

	// The server closing the socket afterwards must not trigger a retry.
	h.drop()
	h.inject(`{"type":"error","content":"Authentication failed"}`)
	h.clk.Advance(time.Hour)

	if got := h.dial.dialCount(); got != 1 {
		t.Fatalf("dials=%d", got)
	}
	if h.rec.loggedOut != 1 || h.store.clears != 1 {
		t.Fatalf("logged_out=%d clears=%d", h.rec.loggedOut, h.store.clears)
	}
	if pending := h.clk.Pending(); len(pending) != 0 {
		t.Fatalf("pending=%v", pending)
	}
	if !strings.Contains(strings.Join(h.rec.snapshot(), ","), "state:disconnected") {
		t.Fatalf("events=%v", h.rec.snapshot())
	}
}

func TestKindMapping(t *testing.T) {
	t.Parallel()

	cases := map[string]Kind{
		"general":     KindGeneral,
		"private":     KindPrivate,
		"history":     KindHistory,
		"user_joined": KindSystemJoin,
		"user_left":   KindSystemLeave,
		"typing":      KindTyping,
		"users_list":  KindRosterUpdate,
		"success":     KindAck,
		"error":       KindError,
		"ping":        KindUnknown,
		"":            KindUnknown,
	}
	for wire, want := range cases {
		if got := KindOf(wire); got != want {
			t.Fatalf("wire=%q kind=%s want=%s", wire, got, want)
		}
		if want != KindUnknown && want.Wire() != wire {
			t.Fatalf("kind=%s wire=%q", want, want.Wire())
		}
	}
	if RecipientFor(Broadcast) != "all" || RecipientFor(Peer("bob")) != "bob" {
		t.Fatal("recipient mapping")
	}
	if KindFor(Broadcast) != KindGeneral || KindFor(Peer("bob")) != KindPrivate {
		t.Fatal("kind mapping")
	}
}
