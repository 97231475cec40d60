package tui

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/ledblwka/secure-messenger/chat"
)

type fakeSession struct {
	sent       []string
	sendErr    error
	inputs     int
	selected   []chat.Selector
	reconnects int
	loggedOut  bool
	closed     bool
}

func (f *fakeSession) Session() chat.Session {
	return chat.Session{Identity: "alice", Credential: "tok"}
}
func (f *fakeSession) Start(context.Context) error { return nil }
func (f *fakeSession) Reconnect(context.Context) error {
	f.reconnects++
	return nil
}
func (f *fakeSession) SendText(text string) (chat.Message, error) {
	if f.sendErr != nil {
		return chat.Message{}, f.sendErr
	}
	f.sent = append(f.sent, text)
	return chat.Message{Content: text, Own: true}, nil
}
func (f *fakeSession) NotifyInput() { f.inputs++ }
func (f *fakeSession) SelectConversation(sel chat.Selector) { f.selected = append(f.selected, sel) }
func (f *fakeSession) Logout() { f.loggedOut = true }
func (f *fakeSession) Close() error { f.closed = true; return nil }

func newTestModel(t *testing.T) (Model, *fakeSession) {
	t.Helper()
	fs := &fakeSession{}
	return New(t.Context(), fs, NewPresenter()), fs
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	out, ok := next.(Model)
	if !ok {
		t.Fatalf("model type=%T", next)
	}
	return out, cmd
}

func typeText(t *testing.T, m Model, text string) Model {
	t.Helper()
	for _, r := range text {
		m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	return m
}

func TestPresenterQueuesInOrder(t *testing.T) {
	t.Parallel()

	p := NewPresenter()
	p.ConnectionChanged(chat.Connecting, nil)
	p.TypingChanged("bob", true)
	p.Notify(chat.NoticeSuccess, "ok")

	if got, ok := p.Wait()().(connectionMsg); !ok || got.state != chat.Connecting {
		t.Fatalf("first=%#v", got)
	}
	if got, ok := p.Wait()().(typingMsg); !ok || got.identity != "bob" || !got.typing {
		t.Fatalf("second=%#v", got)
	}
	if got, ok := p.Wait()().(noticeMsg); !ok || got.text != "ok" {
		t.Fatalf("third=%#v", got)
	}
}

func TestPresenterWaitBlocksUntilPush(t *testing.T) {
	t.Parallel()

	p := NewPresenter()
	done := make(chan tea.Msg, 1)
	go func() { done <- p.Wait()() }()

	select {
	case msg := <-done:
		t.Fatalf("Wait returned early: %#v", msg)
	case <-time.After(20 * time.Millisecond):
	}

	p.HistoryLoaded(3)
	select {
	case msg := <-done:
		if got, ok := msg.(historyMsg); !ok || got.count != 3 {
			t.Fatalf("msg=%#v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return")
	}
}

func TestPresenterCloseReleasesWait(t *testing.T) {
	t.Parallel()

	p := NewPresenter()
	done := make(chan tea.Msg, 1)
	go func() { done <- p.Wait()() }()
	p.Close()

	select {
	case msg := <-done:
		if msg != nil {
			t.Fatalf("msg=%#v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after Close")
	}
	p.LoggedOut(nil)
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) != 0 {
		t.Fatalf("queue=%d after close", len(p.queue))
	}
}

func TestEnterSendsTrimmedText(t *testing.T) {
	t.Parallel()

	m, fs := newTestModel(t)
	m = typeText(t, m, " hi ")
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	if len(fs.sent) != 1 || fs.sent[0] != "hi" {
		t.Fatalf("sent=%v", fs.sent)
	}
	if m.input.Value() != "" {
		t.Fatalf("input=%q", m.input.Value())
	}
}

func TestSendWhileDisconnectedShowsNotice(t *testing.T) {
	t.Parallel()

	m, fs := newTestModel(t)
	fs.sendErr = chat.ErrNotConnected
	m = typeText(t, m, "hi")
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	if m.notice != "Not connected to the server" || m.noticeLevel != chat.NoticeError {
		t.Fatalf("notice=%q level=%v", m.notice, m.noticeLevel)
	}
}

func TestTypingNotifiesSessionExceptCommands(t *testing.T) {
	t.Parallel()

	m, fs := newTestModel(t)
	m = typeText(t, m, "abc")
	if fs.inputs != 3 {
		t.Fatalf("inputs=%d", fs.inputs)
	}
	m.input.Reset()
	_ = typeText(t, m, "/all")
	if fs.inputs != 3 {
		t.Fatalf("inputs after command=%d", fs.inputs)
	}
}

func TestCommands(t *testing.T) {
	t.Parallel()

	m, fs := newTestModel(t)
	run := func(text string) tea.Cmd {
		m.input.SetValue(text)
		var cmd tea.Cmd
		m, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
		return cmd
	}

	run("/join @bob")
	run("/all")
	if len(fs.selected) != 2 || fs.selected[0] != chat.Peer("bob") || fs.selected[1] != chat.Broadcast {
		t.Fatalf("selected=%v", fs.selected)
	}

	run("/join")
	if m.notice != "usage: /join <user>" {
		t.Fatalf("notice=%q", m.notice)
	}
	run("/join alice")
	if len(fs.selected) != 2 {
		t.Fatalf("self join selected=%v", fs.selected)
	}

	run("/bogus")
	if !strings.Contains(m.notice, "unknown command /bogus") {
		t.Fatalf("notice=%q", m.notice)
	}

	cmd := run("/reconnect")
	if cmd == nil {
		t.Fatal("expected reconnect command")
	}
	if msg, ok := cmd().(reconnectMsg); !ok || msg.err != nil {
		t.Fatalf("msg=%#v", msg)
	}
	if fs.reconnects != 1 {
		t.Fatalf("reconnects=%d", fs.reconnects)
	}

	run("/logout")
	if !fs.loggedOut {
		t.Fatal("expected logout")
	}
	if len(fs.sent) != 0 {
		t.Fatalf("commands were sent as text: %v", fs.sent)
	}
}

func TestPresenterMessagesUpdateView(t *testing.T) {
	t.Parallel()

	m, _ := newTestModel(t)
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	m, cmd := update(t, m, messageMsg{msg: chat.Message{Kind: chat.KindGeneral, Sender: "bob", Recipient: "all", Content: "hello there", Timestamp: at}, scroll: true})
	if cmd == nil {
		t.Fatal("expected Wait to be re-issued")
	}
	m, _ = update(t, m, systemMsg{text: "carol joined", at: at})
	m, _ = update(t, m, connectionMsg{state: chat.Ready})
	m, _ = update(t, m, typingMsg{identity: "bob", typing: true})

	if len(m.lines) != 2 || !strings.Contains(m.lines[0], "hello there") || !strings.Contains(m.lines[1], "carol joined") {
		t.Fatalf("lines=%q", m.lines)
	}
	view := m.View()
	if !strings.Contains(view, "bob is typing...") {
		t.Fatalf("view missing typing line:\n%s", view)
	}
	if !strings.Contains(view, "connected") {
		t.Fatalf("view missing status:\n%s", view)
	}

	m, _ = update(t, m, typingMsg{identity: "bob", typing: false})
	if strings.Contains(m.View(), "is typing") {
		t.Fatal("typing line not cleared")
	}

	m.input.SetValue("/clear")
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if len(m.lines) != 0 {
		t.Fatalf("lines after clear=%d", len(m.lines))
	}
}

func TestTabCyclesConversations(t *testing.T) {
	t.Parallel()

	m, fs := newTestModel(t)
	m, _ = update(t, m, rosterMsg{roster: chat.Roster{OnlineCount: 3, PrivatePeers: []string{"bob", "carol"}}})

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	m, _ = update(t, m, conversationMsg{sel: fs.selected[0]})
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	m, _ = update(t, m, conversationMsg{sel: fs.selected[1]})
	_, _ = update(t, m, tea.KeyMsg{Type: tea.KeyTab})

	want := []chat.Selector{chat.Peer("bob"), chat.Peer("carol"), chat.Broadcast}
	if len(fs.selected) != len(want) {
		t.Fatalf("selected=%v", fs.selected)
	}
	for i := range want {
		if fs.selected[i] != want[i] {
			t.Fatalf("selected[%d]=%v want %v", i, fs.selected[i], want[i])
		}
	}
}

func TestLoggedOutQuits(t *testing.T) {
	t.Parallel()

	m, fs := newTestModel(t)
	m, cmd := update(t, m, loggedOutMsg{reason: chat.ErrAuthenticationRejected})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("expected tea.QuitMsg")
	}
	if !fs.closed {
		t.Fatal("session not closed")
	}
	if m.LoggedOut() != chat.ErrAuthenticationRejected {
		t.Fatalf("loggedOut=%v", m.LoggedOut())
	}
	if m.View() != "" {
		t.Fatal("expected empty view after quit")
	}
}
