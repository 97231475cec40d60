// ABOUTME: Connection lifecycle: dial, authenticate, detect loss, reconnect with linear-capped backoff.
// ABOUTME: Also owns the gated outbound write path.

package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	messenger "github.com/ledblwka/secure-messenger"
	"github.com/ledblwka/secure-messenger/envelope"
)

// ReconnectDelay is the wait before automatic attempt n (1-based):
// base*n, capped at limit.
func ReconnectDelay(attempt int, base, limit time.Duration) time.Duration {
	d := base * time.Duration(attempt)
	if d > limit {
		return limit
	}
	return d
}

// Connect opens the transport if the session is Disconnected. It returns
// once the dial finishes. Failures are never returned; they are handled
// like a lost connection and feed the reconnect schedule.
func (s *ClientSession) Connect(ctx context.Context) {
	s.mu.Lock()
	if s.closed || s.state != Disconnected {
		s.mu.Unlock()
		return
	}
	s.connGen++
	gen := s.connGen
	s.setStateLocked(Connecting, nil)
	s.mu.Unlock()
	s.flush()

	dialCtx, cancel := context.WithTimeout(ctx, s.dialTimeout)
	stop := context.AfterFunc(s.ctx, cancel)
	s.logger.Debug("dialing", "endpoint", s.endpoint)
	conn, err := s.dialer.Dial(dialCtx, s.endpoint)
	stop()
	cancel()

	s.mu.Lock()
	if s.closed || gen != s.connGen {
		s.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if err != nil {
		s.transportLostLocked(err)
		s.mu.Unlock()
		s.flush()
		return
	}
	s.conn = conn
	s.setStateLocked(Authenticating, nil)
	auth := messenger.AuthFrame(s.session.Identity, s.session.Credential)
	s.mu.Unlock()
	s.flush()

	// Nothing reads from conn yet, so the auth frame is always first on
	// the wire and Ready cannot be reached before it is written.
	err = s.write(conn, auth)

	s.mu.Lock()
	defer s.flush()
	defer s.mu.Unlock()
	if s.closed || gen != s.connGen || s.conn != conn {
		_ = conn.Close()
		return
	}
	if err != nil {
		_ = conn.Close()
		s.conn = nil
		s.transportLostLocked(err)
		return
	}
	s.reconnect.Attempt = 0
	s.logger.Info("connected", "endpoint", s.endpoint)
	go s.readLoop(gen, conn)
}

// Reconnect starts a fresh connection cycle after automatic reconnection
// gave up. It cancels any pending attempt and resets the attempt counter.
// It does nothing if a connection is already live or in progress.
func (s *ClientSession) Reconnect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.reconnectGen++
	s.reconnectTimer.Stop()
	s.reconnectTimer = nil
	s.reconnect.Attempt = 0
	idle := s.state == Disconnected
	s.mu.Unlock()

	if idle {
		s.logger.Info("manual reconnect")
		s.Connect(ctx)
	}
	return nil
}

func (s *ClientSession) readLoop(gen uint64, conn messenger.Conn) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			s.connectionClosed(gen, err)
			return
		}
		s.receive(gen, data)
	}
}

// connectionClosed handles the end of the transport identified by gen.
// Reports for a transport that is no longer current are ignored.
func (s *ClientSession) connectionClosed(gen uint64, cause error) {
	s.mu.Lock()
	defer s.flush()
	defer s.mu.Unlock()

	if s.closed || gen != s.connGen || s.conn == nil {
		return
	}
	_ = s.conn.Close()
	s.conn = nil
	s.transportLostLocked(cause)
}

func (s *ClientSession) transportLostLocked(cause error) {
	lost := fmt.Errorf("%w: %v", ErrTransportLost, cause)
	s.lastTypingSent = time.Time{}

	if s.reconnect.Exhausted() {
		s.setStateLocked(Disconnected, errors.Join(ErrReconnectExhausted, lost))
		s.logger.Error("reconnect attempts exhausted", "attempts", s.reconnect.Attempt, "err", cause)
		s.emit(func(p Presenter) { p.Notify(NoticeError, "Unable to connect to the server") })
		return
	}

	s.setStateLocked(Disconnected, lost)
	s.reconnect.Attempt++
	delay := ReconnectDelay(s.reconnect.Attempt, s.baseDelay, s.delayCap)
	s.logger.Warn("connection lost, reconnecting",
		"attempt", s.reconnect.Attempt,
		"max_attempts", s.reconnect.MaxAttempts,
		"delay", delay,
		"err", cause,
	)
	s.scheduleReconnectLocked(delay)
}

func (s *ClientSession) scheduleReconnectLocked(delay time.Duration) {
	s.reconnectTimer.Stop()
	s.reconnectGen++
	gen := s.reconnectGen
	s.reconnectTimer = s.clock.AfterFunc(delay, func() { s.reconnectFired(gen) })
}

func (s *ClientSession) reconnectFired(gen uint64) {
	s.mu.Lock()
	if s.closed || gen != s.reconnectGen || s.state != Disconnected {
		s.mu.Unlock()
		return
	}
	s.reconnectTimer = nil
	s.mu.Unlock()
	s.Connect(s.ctx)
}

// Send writes a frame. It fails with ErrNotConnected unless the session
// is Ready, in which case nothing is written.
func (s *ClientSession) Send(f messenger.Frame) error {
	s.mu.Lock()
	conn, err := s.liveConnLocked()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.write(conn, f)
}

// SendText encodes text for the current conversation and sends it. The
// returned message, also handed to the presenter, carries the plaintext
// and is marked Own.
func (s *ClientSession) SendText(text string) (Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, ErrEmptyMessage
	}

	s.mu.Lock()
	msg, f, conn, err := s.prepareTextLocked(text)
	s.mu.Unlock()
	if err != nil {
		return Message{}, err
	}
	if err := s.write(conn, f); err != nil {
		return Message{}, err
	}

	s.mu.Lock()
	s.emit(func(p Presenter) { p.MessageReceived(msg, true) })
	s.mu.Unlock()
	s.flush()
	return msg, nil
}

func (s *ClientSession) prepareTextLocked(text string) (Message, messenger.Frame, messenger.Conn, error) {
	conn, err := s.liveConnLocked()
	if err != nil {
		return Message{}, messenger.Frame{}, nil, err
	}
	sel := s.selector
	recipient := RecipientFor(sel)
	kind := KindFor(sel)
	env, err := s.codec.Encode(text, recipient)
	if err != nil {
		return Message{}, messenger.Frame{}, nil, fmt.Errorf("chat: encoding message: %w", err)
	}
	msg := Message{
		ID:        uuid.NewString(),
		Kind:      kind,
		Sender:    s.session.Identity,
		Recipient: recipient,
		Content:   text,
		Envelope:  &EnvelopeMeta{InitializationData: env.InitializationData, AuthTag: env.AuthTag},
		Timestamp: s.clock.Now().UTC(),
		Own:       true,
		Encoded:   true,
	}
	f := messenger.Frame{
		Type:      kind.Wire(),
		ID:        msg.ID,
		Sender:    msg.Sender,
		Recipient: recipient,
		Content:   env.Content,
		Timestamp: msg.Timestamp,
		IV:        envelope.MetaToWire(env.InitializationData),
		AuthTag:   envelope.MetaToWire(env.AuthTag),
	}
	return msg, f, conn, nil
}

// liveConnLocked returns the transport outbound frames may use.
func (s *ClientSession) liveConnLocked() (messenger.Conn, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if s.state != Ready || s.conn == nil {
		return nil, ErrNotConnected
	}
	return s.conn, nil
}

// write sends f on conn. It is called without s.mu held: the transport
// serializes writes itself and a slow peer must not stall the session.
func (s *ClientSession) write(conn messenger.Conn, f messenger.Frame) error {
	data, err := f.Marshal()
	if err != nil {
		return fmt.Errorf("chat: encoding %s frame: %w", f.Type, err)
	}
	if err := conn.WriteMessage(data); err != nil {
		return fmt.Errorf("%w: %v", ErrTransportLost, err)
	}
	return nil
}
