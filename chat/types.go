// ABOUTME: Types for the realtime chat core.
// ABOUTME: Defines sessions, connection states, message kinds, roster entries, and selectors.

package chat

import (
	"time"

	messenger "github.com/ledblwka/secure-messenger"
)

// Session identifies the local user to the server. It is obtained from an
// external login flow and never modified by the core.
type Session struct {
	Identity   string
	Credential string
}

// ConnectionState is the lifecycle state of the realtime channel.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Authenticating
	Ready
	Closing
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Authenticating:
		return "authenticating"
	case Ready:
		return "ready"
	case Closing:
		return "closing"
	default:
		return "unknown"
	}
}

// Kind classifies a frame. Every wire type maps to exactly one Kind;
// types this client does not know map to KindUnknown.
type Kind int

const (
	KindUnknown Kind = iota
	KindGeneral
	KindPrivate
	KindHistory
	KindSystemJoin
	KindSystemLeave
	KindTyping
	KindRosterUpdate
	KindAck
	KindError
)

var kindWire = map[Kind]string{
	KindGeneral:      messenger.TypeGeneral,
	KindPrivate:      messenger.TypePrivate,
	KindHistory:      messenger.TypeHistory,
	KindSystemJoin:   messenger.TypeUserJoined,
	KindSystemLeave:  messenger.TypeUserLeft,
	KindTyping:       messenger.TypeTyping,
	KindRosterUpdate: messenger.TypeUsersList,
	KindAck:          messenger.TypeSuccess,
	KindError:        messenger.TypeError,
}

var wireKind = func() map[string]Kind {
	m := make(map[string]Kind, len(kindWire))
	for k, w := range kindWire {
		m[w] = k
	}
	return m
}()

// KindOf maps a wire type to its Kind.
func KindOf(wireType string) Kind {
	return wireKind[wireType]
}

// Wire returns the wire type for k, or "" for KindUnknown.
func (k Kind) Wire() string {
	return kindWire[k]
}

func (k Kind) String() string {
	if w, ok := kindWire[k]; ok {
		return w
	}
	return "unknown"
}

// EnvelopeMeta is the transform metadata of an encoded message.
type EnvelopeMeta struct {
	InitializationData []byte
	AuthTag            []byte
}

// Message is a chat message ready for presentation. Content is always
// plaintext. Messages are never modified after construction.
type Message struct {
	ID        string
	Kind      Kind
	Sender    string
	Recipient string
	Content   string
	Envelope  *EnvelopeMeta
	Timestamp time.Time

	// Own marks messages sent by the local identity.
	Own bool
	// Encoded reports that Content arrived in an envelope and was decoded.
	Encoded bool
}

// RosterEntry is one known user.
type RosterEntry struct {
	Identity     string
	Online       bool
	HasPublicKey bool
}

// Roster is a snapshot of the user list plus values derived from it.
type Roster struct {
	Entries     []RosterEntry
	OnlineCount int
	// PrivatePeers lists online users other than the local identity, in
	// server order. These are the conversations a private chat can open.
	PrivatePeers []string
}

// Selector names a conversation: the broadcast channel or one peer.
// The zero value is the broadcast conversation.
type Selector struct {
	peer string
}

// Broadcast is the shared conversation every user sees.
var Broadcast = Selector{}

// Peer selects the private conversation with identity.
func Peer(identity string) Selector {
	return Selector{peer: identity}
}

func (s Selector) IsBroadcast() bool { return s.peer == "" }

// Peer returns the peer identity, or "" for the broadcast conversation.
func (s Selector) Peer() string { return s.peer }

func (s Selector) String() string {
	if s.IsBroadcast() {
		return "general"
	}
	return "@" + s.peer
}

// RecipientFor returns the wire recipient for messages sent to sel.
func RecipientFor(sel Selector) string {
	if sel.IsBroadcast() {
		return messenger.Broadcast
	}
	return sel.peer
}

// KindFor returns the kind of messages sent to sel.
func KindFor(sel Selector) Kind {
	if sel.IsBroadcast() {
		return KindGeneral
	}
	return KindPrivate
}

// ReconnectState tracks automatic reconnection.
type ReconnectState struct {
	Attempt     int
	MaxAttempts int
}

// Exhausted reports that no automatic attempts remain.
func (r ReconnectState) Exhausted() bool {
	return r.Attempt >= r.MaxAttempts
}
