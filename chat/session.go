// ABOUTME: ClientSession, the single owner of connection and conversation state.
// ABOUTME: Holds configuration, the state lock, the presenter outbox, and session teardown.

package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	messenger "github.com/ledblwka/secure-messenger"
	"github.com/ledblwka/secure-messenger/clock"
	"github.com/ledblwka/secure-messenger/envelope"
)

const (
	DefaultMaxReconnectAttempts = 5
	DefaultReconnectBaseDelay   = 3 * time.Second
	DefaultReconnectDelayCap    = 15 * time.Second
	DefaultTypingTimeout        = 3 * time.Second
	DefaultTypingInterval       = 2 * time.Second
	DefaultDialTimeout          = 10 * time.Second
)

// Config configures a ClientSession. Only Origin and Session are required.
type Config struct {
	// Origin is the server origin, e.g. https://chat.example.com. The
	// realtime endpoint is derived from it.
	Origin  string
	Session Session

	Dialer    messenger.Dialer
	Codec     envelope.Codec
	History   HistorySource
	Store     CredentialStore
	Presenter Presenter
	Clock     clock.Clock
	Logger    *slog.Logger

	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration
	ReconnectDelayCap    time.Duration
	TypingTimeout        time.Duration

	// TypingInterval is the minimum gap between outbound typing frames.
	// Negative sends one per input event.
	TypingInterval time.Duration

	DialTimeout time.Duration
}

// ClientSession is one authenticated client's view of the chat server.
// All state is guarded by a single mutex; presenter notifications are
// queued under it and delivered after it is released.
type ClientSession struct {
	session   Session
	endpoint  string
	dialer    messenger.Dialer
	codec     envelope.Codec
	history   HistorySource
	store     CredentialStore
	presenter Presenter
	clock     clock.Clock
	logger    *slog.Logger

	baseDelay      time.Duration
	delayCap       time.Duration
	typingTimeout  time.Duration
	typingInterval time.Duration
	dialTimeout    time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu             sync.Mutex
	closed         bool
	state          ConnectionState
	conn           messenger.Conn
	connGen        uint64
	reconnect      ReconnectState
	reconnectGen   uint64
	reconnectTimer *clock.Timer

	selector       Selector
	roster         Roster
	historyLoaded  bool
	typing         map[string]*typingIndicator
	typingGen      uint64
	lastTypingSent time.Time

	outbox    []func(Presenter)
	deliverMu sync.Mutex
}

// New builds a disconnected session. Call Start or Connect to go online.
func New(cfg Config) (*ClientSession, error) {
	if cfg.Session.Identity == "" || cfg.Session.Credential == "" {
		return nil, fmt.Errorf("chat: session identity and credential are required")
	}
	endpoint, err := messenger.WebSocketURL(cfg.Origin)
	if err != nil {
		return nil, err
	}

	s := &ClientSession{
		session:        cfg.Session,
		endpoint:       endpoint,
		dialer:         cfg.Dialer,
		codec:          cfg.Codec,
		history:        cfg.History,
		store:          cfg.Store,
		presenter:      cfg.Presenter,
		clock:          cfg.Clock,
		logger:         cfg.Logger,
		baseDelay:      cfg.ReconnectBaseDelay,
		delayCap:       cfg.ReconnectDelayCap,
		typingTimeout:  cfg.TypingTimeout,
		typingInterval: cfg.TypingInterval,
		dialTimeout:    cfg.DialTimeout,
		reconnect:      ReconnectState{MaxAttempts: cfg.MaxReconnectAttempts},
		typing:         make(map[string]*typingIndicator),
	}
	if s.dialer == nil {
		s.dialer = &messenger.WebSocketDialer{Logger: cfg.Logger}
	}
	if s.codec == nil {
		s.codec = envelope.MarkerCodec{}
	}
	if s.presenter == nil {
		s.presenter = NopPresenter{}
	}
	if s.clock == nil {
		s.clock = clock.Real()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("identity", cfg.Session.Identity)
	if s.reconnect.MaxAttempts <= 0 {
		s.reconnect.MaxAttempts = DefaultMaxReconnectAttempts
	}
	if s.baseDelay <= 0 {
		s.baseDelay = DefaultReconnectBaseDelay
	}
	if s.delayCap <= 0 {
		s.delayCap = DefaultReconnectDelayCap
	}
	if s.typingTimeout <= 0 {
		s.typingTimeout = DefaultTypingTimeout
	}
	if s.typingInterval == 0 {
		s.typingInterval = DefaultTypingInterval
	}
	if s.dialTimeout <= 0 {
		s.dialTimeout = DefaultDialTimeout
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s, nil
}

// Start loads history and then connects, so live history frames that
// repeat stored messages are dropped.
func (s *ClientSession) Start(ctx context.Context) error {
	if s.history != nil {
		if err := s.LoadHistory(ctx); err != nil {
			s.logger.Warn("history load failed", "err", err)
		}
	}
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}
	s.Connect(ctx)
	return nil
}

// Session returns the identity the session authenticates as.
func (s *ClientSession) Session() Session { return s.session }

// Endpoint returns the derived realtime endpoint.
func (s *ClientSession) Endpoint() string { return s.endpoint }

func (s *ClientSession) State() ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *ClientSession) ReconnectState() ReconnectState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconnect
}

func (s *ClientSession) Selector() Selector {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selector
}

// Roster returns a copy of the latest roster snapshot.
func (s *ClientSession) Roster() Roster {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyRoster(s.roster)
}

func (s *ClientSession) HistoryLoaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.historyLoaded
}

// Closed reports whether Logout or Close ended the session.
func (s *ClientSession) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Done is closed when the session ends.
func (s *ClientSession) Done() <-chan struct{} {
	return s.ctx.Done()
}

// Logout ends the session, closes the transport, cancels every timer, and
// clears the credential store. Repeated calls do nothing.
func (s *ClientSession) Logout() {
	s.mu.Lock()
	s.teardownLocked(nil, true)
	s.mu.Unlock()
	s.flush()
}

// Close ends the session without touching stored credentials.
func (s *ClientSession) Close() error {
	s.mu.Lock()
	s.teardownLocked(nil, false)
	s.mu.Unlock()
	s.flush()
	return nil
}

func (s *ClientSession) teardownLocked(reason error, logout bool) {
	if s.closed {
		return
	}
	s.closed = true
	s.connGen++
	s.reconnectGen++
	s.reconnectTimer.Stop()
	s.reconnectTimer = nil
	s.clearTypingLocked()
	if s.conn != nil {
		s.setStateLocked(Closing, nil)
		if err := s.conn.Close(); err != nil {
			s.logger.Debug("closing transport", "err", err)
		}
		s.conn = nil
	}
	s.reconnect.Attempt = 0
	s.setStateLocked(Disconnected, reason)
	s.cancel()

	if !logout {
		return
	}
	if s.store != nil {
		if err := s.store.Clear(); err != nil {
			s.logger.Error("clearing stored session", "err", err)
		}
	}
	s.logger.Info("logged out", "reason", errString(reason))
	s.emit(func(p Presenter) { p.LoggedOut(reason) })
}

func (s *ClientSession) setStateLocked(state ConnectionState, err error) {
	if s.state == state && err == nil {
		return
	}
	s.state = state
	s.emit(func(p Presenter) { p.ConnectionChanged(state, err) })
}

// emit queues a presenter call. Callers must hold s.mu and call flush
// after releasing it.
func (s *ClientSession) emit(fn func(Presenter)) {
	s.outbox = append(s.outbox, fn)
}

// flush delivers queued presenter calls in order. If another goroutine,
// or a presenter callback on this one, is already delivering, that
// delivery picks up the new calls.
func (s *ClientSession) flush() {
	for {
		if !s.deliverMu.TryLock() {
			return
		}
		for {
			s.mu.Lock()
			batch := s.outbox
			s.outbox = nil
			s.mu.Unlock()
			if len(batch) == 0 {
				break
			}
			for _, fn := range batch {
				fn(s.presenter)
			}
		}
		s.deliverMu.Unlock()

		s.mu.Lock()
		pending := len(s.outbox) > 0
		s.mu.Unlock()
		if !pending {
			return
		}
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
