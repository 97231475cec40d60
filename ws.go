package messenger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// DefaultPingInterval is how often WSConn sends keepalive pings.
	DefaultPingInterval = 30 * time.Second

	writeWait = 10 * time.Second
)

// ErrConnClosed is returned by WSConn methods after Close.
var ErrConnClosed = errors.New("messenger: connection closed")

// Conn is one open realtime channel carrying JSON frames.
type Conn interface {
	// ReadMessage blocks for the next data message. It returns an error
	// once the channel is closed for any reason.
	ReadMessage() ([]byte, error)
	// WriteMessage sends one data message. It is safe for concurrent use.
	WriteMessage(data []byte) error
	Close() error
}

// Dialer opens realtime channels.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Conn, error)
}

// WebSocketURL derives the realtime endpoint from a server origin:
// wss://host/ws for https origins and ws://host/ws for http ones.
func WebSocketURL(origin string) (string, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return "", err
	}
	scheme := ""
	switch u.Scheme {
	case "https", "wss":
		scheme = "wss"
	case "http", "ws":
		scheme = "ws"
	default:
		return "", fmt.Errorf("messenger: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("messenger: missing host in %q", origin)
	}
	return (&url.URL{Scheme: scheme, Host: u.Host, Path: "/ws"}).String(), nil
}

// WebSocketDialer dials the realtime endpoint with gorilla/websocket.
type WebSocketDialer struct {
	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer
	Header http.Header

	// PingInterval between keepalive pings. Zero means
	// DefaultPingInterval; negative disables keepalive.
	PingInterval time.Duration

	Logger *slog.Logger
}

func (d *WebSocketDialer) Dial(ctx context.Context, endpoint string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	ws, resp, err := dialer.DialContext(ctx, endpoint, d.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("messenger: dial %s: http %d: %w", endpoint, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("messenger: dial %s: %w", endpoint, err)
	}

	interval := d.PingInterval
	if interval == 0 {
		interval = DefaultPingInterval
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return newWSConn(ws, interval, logger), nil
}

// WSConn is a websocket Conn. Writes are serialized; ReadMessage must
// only be called from one goroutine.
type WSConn struct {
	ws     *websocket.Conn
	logger *slog.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

func newWSConn(ws *websocket.Conn, pingInterval time.Duration, logger *slog.Logger) *WSConn {
	c := &WSConn{ws: ws, logger: logger, done: make(chan struct{})}
	if pingInterval > 0 {
		pongWait := 2 * pingInterval
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(pongWait))
		})
		go c.keepalive(pingInterval)
	}
	return c
}

func (c *WSConn) keepalive(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.logger.Debug("websocket ping failed", "err", err)
				return
			}
		}
	}
}

func (c *WSConn) ReadMessage() ([]byte, error) {
	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return nil, ErrConnClosed
			default:
			}
			return nil, err
		}
		if kind == websocket.TextMessage || kind == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (c *WSConn) WriteMessage(data []byte) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Close sends a normal closure and releases the connection. It is safe to
// call more than once.
func (c *WSConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		err = c.ws.Close()
	})
	return err
}
