// ABOUTME: Inbound frame dispatch: one rule per message kind.
// ABOUTME: Applies echo suppression, the history guard, roster replacement, and auth-failure logout.

package chat

import (
	"fmt"
	"time"

	messenger "github.com/ledblwka/secure-messenger"
	"github.com/ledblwka/secure-messenger/envelope"
)

// authFailedContent is the error text the server sends before closing a
// connection whose credential it rejected.
const authFailedContent = "Authentication failed"

// receive handles one inbound frame from the transport identified by gen.
func (s *ClientSession) receive(gen uint64, raw []byte) {
	s.mu.Lock()
	defer s.flush()
	defer s.mu.Unlock()

	if s.closed || gen != s.connGen || s.conn == nil {
		return
	}
	s.handleFrameLocked(raw)
}

func (s *ClientSession) handleFrameLocked(raw []byte) {
	f, err := messenger.ParseFrame(raw)
	if err != nil {
		s.logger.Warn("discarding frame", "err", &FrameError{Raw: raw, Err: err}, "size", len(raw))
		return
	}
	kind := KindOf(f.Type)

	// The server only speaks after accepting the auth frame, so anything
	// but an error proves the session is authenticated.
	if s.state == Authenticating && kind != KindError {
		s.setStateLocked(Ready, nil)
	}

	switch kind {
	case KindGeneral, KindPrivate:
		if f.Sender == s.session.Identity {
			return
		}
		msg := s.openLocked(kind, f.ID, f.Sender, f.Recipient, frameEnvelope(f), f.Timestamp, envelope.Open)
		s.emit(func(p Presenter) { p.MessageReceived(msg, true) })

	case KindHistory:
		if s.historyLoaded {
			return
		}
		// Replayed history carries no IV, so only the framing marks it encoded.
		msg := s.openLocked(kind, f.ID, f.Sender, f.Recipient, frameEnvelope(f), f.Timestamp, envelope.OpenFramed)
		s.emit(func(p Presenter) { p.MessageReceived(msg, false) })

	case KindRosterUpdate:
		s.roster = buildRoster(f.Users, s.session.Identity)
		roster := copyRoster(s.roster)
		s.emit(func(p Presenter) { p.RosterChanged(roster) })

	case KindSystemJoin, KindSystemLeave:
		text := fmt.Sprintf("%s %s", f.Sender, f.Content)
		at := f.Timestamp
		s.emit(func(p Presenter) { p.SystemNotice(text, at) })

	case KindTyping:
		s.typingReceivedLocked(f.Sender, f.Recipient)

	case KindAck:
		text := f.Content
		if text == "" {
			text = "Success"
		}
		s.emit(func(p Presenter) { p.Notify(NoticeSuccess, text) })

	case KindError:
		if f.Content == authFailedContent || f.Error == authFailedContent {
			s.logger.Warn("server rejected session credential")
			s.teardownLocked(ErrAuthenticationRejected, true)
			return
		}
		text := f.Content
		if text == "" {
			text = f.Error
		}
		if text == "" {
			text = "Error"
		}
		s.emit(func(p Presenter) { p.Notify(NoticeError, text) })

	case KindUnknown:
		s.logger.Debug("ignoring frame", "type", f.Type)
	}
}

func frameEnvelope(f messenger.Frame) envelope.Envelope {
	return envelope.Envelope{
		Content:            f.Content,
		InitializationData: envelope.MetaFromWire(f.IV),
		AuthTag:            envelope.MetaFromWire(f.AuthTag),
	}
}

type opener func(envelope.Codec, envelope.Envelope) (string, bool, error)

// openLocked decodes env into a presentable message. A decode failure is
// logged and the marker-stripped content is delivered instead.
func (s *ClientSession) openLocked(kind Kind, id, sender, recipient string, env envelope.Envelope, at time.Time, open opener) Message {
	text, encoded, err := open(s.codec, env)
	if err != nil {
		s.logger.Warn("envelope decode failed", "sender", sender, "message_id", id, "err", err)
	}
	msg := Message{
		ID:        id,
		Kind:      kind,
		Sender:    sender,
		Recipient: recipient,
		Content:   text,
		Timestamp: at,
		Own:       sender == s.session.Identity,
		Encoded:   encoded && err == nil,
	}
	if encoded {
		msg.Envelope = &EnvelopeMeta{InitializationData: env.InitializationData, AuthTag: env.AuthTag}
	}
	return msg
}
