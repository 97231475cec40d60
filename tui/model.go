// ABOUTME: Terminal chat view: transcript, roster sidebar, status and typing lines, input.
// ABOUTME: All state changes arrive as presenter messages; the model never reads session state directly.

package tui

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/ledblwka/secure-messenger/chat"
)

const sidebarWidth = 24

// Session is the part of *chat.ClientSession the view drives.
type Session interface {
	Session() chat.Session
	Start(ctx context.Context) error
	Reconnect(ctx context.Context) error
	SendText(text string) (chat.Message, error)
	NotifyInput()
	SelectConversation(sel chat.Selector)
	Logout()
	Close() error
}

type startedMsg struct{ err error }

type reconnectMsg struct{ err error }

// Model is the bubbletea model for one chat session.
type Model struct {
	ctx     context.Context
	session Session
	events  *Presenter
	self    string

	lines    []string
	viewport viewport.Model
	input    textinput.Model

	state    chat.ConnectionState
	stateErr error
	roster   chat.Roster
	selector chat.Selector
	typing   map[string]bool

	notice      string
	noticeLevel chat.NoticeLevel

	width, height int
	loggedOut     error
	quitting      bool
}

// New builds the model. events must be the Presenter the session was
// configured with.
func New(ctx context.Context, session Session, events *Presenter) Model {
	input := textinput.New()
	input.Placeholder = "Type a message, /help for commands"
	input.CharLimit = 4000
	input.Width = 50
	input.Focus()

	return Model{
		ctx:      ctx,
		session:  session,
		events:   events,
		self:     session.Session().Identity,
		viewport: viewport.New(80, 20),
		input:    input,
		typing:   make(map[string]bool),
	}
}

// LoggedOut returns the reason the session ended with a logout, or nil.
func (m Model) LoggedOut() error { return m.loggedOut }

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.start(), m.events.Wait())
}

func (m Model) start() tea.Cmd {
	return func() tea.Msg {
		return startedMsg{err: m.session.Start(m.ctx)}
	}
}

func (m Model) reconnect() tea.Cmd {
	return func() tea.Msg {
		return reconnectMsg{err: m.session.Reconnect(m.ctx)}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case startedMsg:
		if msg.err != nil && !errors.Is(msg.err, chat.ErrClosed) {
			m.setNotice(chat.NoticeError, "history: "+msg.err.Error())
		}
		return m, nil

	case reconnectMsg:
		if msg.err != nil {
			m.setNotice(chat.NoticeError, msg.err.Error())
		}
		return m, nil

	case connectionMsg:
		m.state, m.stateErr = msg.state, msg.err
		return m, m.events.Wait()

	case messageMsg:
		m.appendLine(m.formatMessage(msg.msg), msg.scroll)
		return m, m.events.Wait()

	case historyMsg:
		if msg.count > 0 {
			m.appendLine(systemStyle.Render(fmt.Sprintf("%d earlier messages", msg.count)), true)
		}
		return m, m.events.Wait()

	case systemMsg:
		m.appendLine(systemStyle.Render(fmt.Sprintf("[%s] %s", clockTime(msg.at), msg.text)), true)
		return m, m.events.Wait()

	case rosterMsg:
		m.roster = msg.roster
		return m, m.events.Wait()

	case typingMsg:
		if msg.typing {
			m.typing[msg.identity] = true
		} else {
			delete(m.typing, msg.identity)
		}
		return m, m.events.Wait()

	case noticeMsg:
		m.setNotice(msg.level, msg.text)
		return m, m.events.Wait()

	case conversationMsg:
		m.selector = msg.sel
		m.setNotice(chat.NoticeInfo, "now chatting in "+msg.sel.String())
		return m, m.events.Wait()

	case loggedOutMsg:
		m.loggedOut = msg.reason
		if m.loggedOut == nil {
			m.loggedOut = chat.ErrClosed
		}
		return m.quit()
	}

	var inputCmd, viewCmd tea.Cmd
	m.input, inputCmd = m.input.Update(msg)
	m.viewport, viewCmd = m.viewport.Update(msg)
	return m, tea.Batch(inputCmd, viewCmd)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m.quit()
	case tea.KeyEnter:
		text := m.input.Value()
		m.input.Reset()
		return m.submit(text)
	case tea.KeyTab:
		m.session.SelectConversation(m.nextConversation())
		return m, nil
	case tea.KeyPgUp, tea.KeyPgDown:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if after := m.input.Value(); after != before && after != "" && !strings.HasPrefix(after, "/") {
		m.session.NotifyInput()
	}
	return m, cmd
}

func (m Model) submit(text string) (tea.Model, tea.Cmd) {
	text = strings.TrimSpace(text)
	if text == "" {
		return m, nil
	}
	if strings.HasPrefix(text, "/") {
		return m.command(text)
	}

	if _, err := m.session.SendText(text); err != nil {
		switch {
		case errors.Is(err, chat.ErrNotConnected):
			m.setNotice(chat.NoticeError, "Not connected to the server")
		default:
			m.setNotice(chat.NoticeError, err.Error())
		}
	}
	return m, nil
}

func (m Model) command(text string) (tea.Model, tea.Cmd) {
	name, arg, _ := strings.Cut(strings.TrimPrefix(text, "/"), " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "join":
		peer := strings.TrimPrefix(arg, "@")
		if peer == "" {
			m.setNotice(chat.NoticeError, "usage: /join <user>")
			return m, nil
		}
		if peer == m.self {
			m.setNotice(chat.NoticeError, "cannot open a private chat with yourself")
			return m, nil
		}
		m.session.SelectConversation(chat.Peer(peer))
	case "all":
		m.session.SelectConversation(chat.Broadcast)
	case "reconnect":
		m.setNotice(chat.NoticeInfo, "reconnecting...")
		return m, m.reconnect()
	case "clear":
		m.lines = nil
		m.viewport.SetContent("")
	case "logout":
		m.session.Logout()
	case "quit", "exit":
		return m.quit()
	case "help":
		m.appendLine(systemStyle.Render("commands: /join <user>, /all, /reconnect, /clear, /logout, /quit; tab cycles conversations"), true)
	default:
		m.setNotice(chat.NoticeError, fmt.Sprintf("unknown command /%s", name))
	}
	return m, nil
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	m.quitting = true
	_ = m.session.Close()
	m.events.Close()
	return m, tea.Quit
}

// nextConversation cycles general -> online peers -> general.
func (m Model) nextConversation() chat.Selector {
	options := append([]chat.Selector{chat.Broadcast}, peerSelectors(m.roster)...)
	i := slices.Index(options, m.selector)
	return options[(i+1)%len(options)]
}

func peerSelectors(r chat.Roster) []chat.Selector {
	out := make([]chat.Selector, 0, len(r.PrivatePeers))
	for _, p := range r.PrivatePeers {
		out = append(out, chat.Peer(p))
	}
	return out
}

func (m *Model) setNotice(level chat.NoticeLevel, text string) {
	m.notice, m.noticeLevel = text, level
}

func (m *Model) appendLine(line string, scroll bool) {
	m.lines = append(m.lines, line)
	m.viewport.SetContent(strings.Join(m.lines, "\n"))
	if scroll {
		m.viewport.GotoBottom()
	}
}

func (m *Model) resize() {
	w := m.width - sidebarWidth - 4
	h := m.height - 7
	m.viewport.Width = max(w, 20)
	m.viewport.Height = max(h, 3)
	m.input.Width = max(w-4, 10)
	m.viewport.SetContent(strings.Join(m.lines, "\n"))
}

func (m Model) formatMessage(msg chat.Message) string {
	sender := msg.Sender
	style := otherMessageStyle
	if msg.Own || msg.Sender == m.self {
		sender = "you"
		style = ownMessageStyle
	}
	head := style.Render(sender)
	if msg.Kind == chat.KindPrivate || (msg.Recipient != "" && msg.Recipient != "all") {
		head += mutedStyle.Render(" → " + msg.Recipient)
	}
	lock := ""
	if msg.Encoded {
		lock = "🔐 "
	}
	return fmt.Sprintf("%s %s: %s%s", mutedStyle.Render("["+clockTime(msg.Timestamp)+"]"), head, lock, msg.Content)
}

func clockTime(t time.Time) string {
	if t.IsZero() {
		return "--:--"
	}
	return t.Local().Format("15:04")
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	title := titleStyle.Render("Secure Messenger · " + m.selector.String())
	chatPane := chatWindowStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		title,
		m.viewport.View(),
	))
	body := lipgloss.JoinHorizontal(lipgloss.Top, m.sidebarView(), chatPane)

	footer := footerStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		m.typingLine(),
		m.input.View(),
		m.statusLine(),
	))
	return lipgloss.JoinVertical(lipgloss.Left, body, footer)
}

func (m Model) sidebarView() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Chats"))
	b.WriteString("\n")
	for _, sel := range append([]chat.Selector{chat.Broadcast}, peerSelectors(m.roster)...) {
		label := "# general"
		if !sel.IsBroadcast() {
			label = "@ " + sel.Peer()
		}
		if sel == m.selector {
			b.WriteString(selectedItemStyle.Render(label))
		} else {
			b.WriteString(unselectedItemStyle.Render(label))
		}
		b.WriteString("\n")
	}
	b.WriteString(mutedStyle.Render(fmt.Sprintf("%d online", m.roster.OnlineCount)))

	h := m.viewport.Height + 1
	return sidebarStyle.Width(sidebarWidth - 4).Height(max(h, 1)).Render(b.String())
}

func (m Model) typingLine() string {
	names := make([]string, 0, len(m.typing))
	for id := range m.typing {
		names = append(names, id)
	}
	slices.Sort(names)
	switch len(names) {
	case 0:
		return ""
	case 1:
		return mutedStyle.Render(names[0] + " is typing...")
	default:
		return mutedStyle.Render(strings.Join(names, ", ") + " are typing...")
	}
}

func (m Model) statusLine() string {
	var state string
	switch m.state {
	case chat.Ready:
		state = successStyle.Render("● connected")
	case chat.Connecting, chat.Authenticating:
		state = warnStyle.Render("● " + m.state.String())
	default:
		state = errorStyle.Render("● " + m.state.String())
		if errors.Is(m.stateErr, chat.ErrReconnectExhausted) {
			state += mutedStyle.Render(" (/reconnect to retry)")
		}
	}

	if m.notice == "" {
		return state
	}
	var notice string
	switch m.noticeLevel {
	case chat.NoticeError:
		notice = errorStyle.Render(m.notice)
	case chat.NoticeSuccess:
		notice = successStyle.Render(m.notice)
	default:
		notice = mutedStyle.Render(m.notice)
	}
	return state + "  " + notice
}
