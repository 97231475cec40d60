// ABOUTME: Bridges chat.Presenter callbacks into bubbletea messages.
// ABOUTME: Callbacks never block; the program drains them through Presenter.Wait.

package tui

import (
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/ledblwka/secure-messenger/chat"
)

type connectionMsg struct {
	state chat.ConnectionState
	err   error
}

type messageMsg struct {
	msg    chat.Message
	scroll bool
}

type historyMsg struct{ count int }

type systemMsg struct {
	text string
	at   time.Time
}

type rosterMsg struct{ roster chat.Roster }

type typingMsg struct {
	identity string
	typing   bool
}

type noticeMsg struct {
	level chat.NoticeLevel
	text  string
}

type conversationMsg struct{ sel chat.Selector }

type loggedOutMsg struct{ reason error }

// Presenter queues session notifications for a bubbletea program. The
// queue is unbounded so session calls made from inside Update cannot
// deadlock against the event loop.
type Presenter struct {
	mu     sync.Mutex
	queue  []tea.Msg
	ready  chan struct{}
	closed bool
}

var _ chat.Presenter = (*Presenter)(nil)

func NewPresenter() *Presenter {
	return &Presenter{ready: make(chan struct{}, 1)}
}

func (p *Presenter) push(msg tea.Msg) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.queue = append(p.queue, msg)
	p.mu.Unlock()

	select {
	case p.ready <- struct{}{}:
	default:
	}
}

// Wait returns a command that yields the next queued notification. The
// model re-issues it after every notification it handles.
func (p *Presenter) Wait() tea.Cmd {
	return func() tea.Msg {
		for {
			p.mu.Lock()
			if len(p.queue) > 0 {
				msg := p.queue[0]
				p.queue[0] = nil
				p.queue = p.queue[1:]
				p.mu.Unlock()
				return msg
			}
			if p.closed {
				p.mu.Unlock()
				return nil
			}
			p.mu.Unlock()
			<-p.ready
		}
	}
}

// Close wakes a pending Wait. Notifications pushed afterwards are dropped.
func (p *Presenter) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	select {
	case p.ready <- struct{}{}:
	default:
	}
}

func (p *Presenter) ConnectionChanged(state chat.ConnectionState, err error) {
	p.push(connectionMsg{state: state, err: err})
}

func (p *Presenter) MessageReceived(msg chat.Message, scroll bool) {
	p.push(messageMsg{msg: msg, scroll: scroll})
}

func (p *Presenter) HistoryLoaded(count int) { p.push(historyMsg{count: count}) }

func (p *Presenter) SystemNotice(text string, at time.Time) {
	p.push(systemMsg{text: text, at: at})
}

func (p *Presenter) RosterChanged(roster chat.Roster) { p.push(rosterMsg{roster: roster}) }

func (p *Presenter) TypingChanged(identity string, typing bool) {
	p.push(typingMsg{identity: identity, typing: typing})
}

func (p *Presenter) Notify(level chat.NoticeLevel, text string) {
	p.push(noticeMsg{level: level, text: text})
}

func (p *Presenter) ConversationChanged(sel chat.Selector) { p.push(conversationMsg{sel: sel}) }

func (p *Presenter) LoggedOut(reason error) { p.push(loggedOutMsg{reason: reason}) }
