// ABOUTME: Error taxonomy for the chat core.
// ABOUTME: Sentinels are matched with errors.Is; FrameError wraps parse failures.

package chat

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected rejects a send while the connection is not Ready.
	// Nothing is written to the transport.
	ErrNotConnected = errors.New("chat: not connected")

	// ErrMalformedFrame marks an inbound frame that could not be parsed.
	ErrMalformedFrame = errors.New("chat: malformed frame")

	// ErrAuthenticationRejected ends the session. No reconnection follows.
	ErrAuthenticationRejected = errors.New("chat: authentication rejected")

	// ErrTransportLost reports an unexpected close of the channel.
	// Reconnection is scheduled while attempts remain.
	ErrTransportLost = errors.New("chat: transport lost")

	// ErrReconnectExhausted reports that automatic reconnection gave up.
	// Only Reconnect starts a new cycle.
	ErrReconnectExhausted = errors.New("chat: reconnect attempts exhausted")

	// ErrClosed is returned by operations on a session after Logout or Close.
	ErrClosed = errors.New("chat: session closed")

	// ErrNoSession means the credential store holds no session; the caller
	// must run the login flow.
	ErrNoSession = errors.New("chat: no stored session")

	// ErrEmptyMessage rejects sending blank text.
	ErrEmptyMessage = errors.New("chat: empty message")
)

// FrameError describes an inbound frame that was discarded.
type FrameError struct {
	Raw []byte
	Err error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("chat: malformed frame: %v", e.Err)
}

func (e *FrameError) Unwrap() error { return e.Err }

func (e *FrameError) Is(target error) bool { return target == ErrMalformedFrame }
