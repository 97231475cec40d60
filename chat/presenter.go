// ABOUTME: Presentation contract for the chat core.
// ABOUTME: The core reports state changes through Presenter and never renders anything itself.

package chat

import "time"

// NoticeLevel grades transient notifications.
type NoticeLevel int

const (
	NoticeInfo NoticeLevel = iota
	NoticeSuccess
	NoticeError
)

func (l NoticeLevel) String() string {
	switch l {
	case NoticeSuccess:
		return "success"
	case NoticeError:
		return "error"
	default:
		return "info"
	}
}

// Presenter receives state-change notifications from a ClientSession.
//
// Calls are made in order from one goroutine at a time and never with the
// session's lock held, so implementations may call back into the session.
type Presenter interface {
	// ConnectionChanged reports a state transition. err explains
	// transitions to Disconnected and wraps one of ErrTransportLost,
	// ErrReconnectExhausted, or ErrAuthenticationRejected. Authenticating
	// means the outbound path is provisionally open.
	ConnectionChanged(state ConnectionState, err error)

	// MessageReceived presents a message. scroll is false for history.
	MessageReceived(msg Message, scroll bool)

	// HistoryLoaded follows the last message of a history load.
	HistoryLoaded(count int)

	// SystemNotice presents display-only text such as join and leave lines.
	SystemNotice(text string, at time.Time)

	RosterChanged(roster Roster)
	TypingChanged(identity string, typing bool)

	// Notify shows a transient notification.
	Notify(level NoticeLevel, text string)

	ConversationChanged(sel Selector)

	// LoggedOut is the final call for a session ended by Logout or by the
	// server rejecting its credential.
	LoggedOut(reason error)
}

// NopPresenter ignores every notification.
type NopPresenter struct{}

func (NopPresenter) ConnectionChanged(ConnectionState, error) {}
func (NopPresenter) MessageReceived(Message, bool)            {}
func (NopPresenter) HistoryLoaded(int)                        {}
func (NopPresenter) SystemNotice(string, time.Time)           {}
func (NopPresenter) RosterChanged(Roster)                     {}
func (NopPresenter) TypingChanged(string, bool)               {}
func (NopPresenter) Notify(NoticeLevel, string)               {}
func (NopPresenter) ConversationChanged(Selector)             {}
func (NopPresenter) LoggedOut(error)                          {}
