package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/ledblwka/secure-messenger/chat"
	"github.com/ledblwka/secure-messenger/tui"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
)

// readyWatcher reports the first terminal connection outcome: nil once
// the session is Ready, or the reason it gave up.
type readyWatcher struct {
	chat.NopPresenter
	outcome chan error
}

func newReadyWatcher() *readyWatcher {
	return &readyWatcher{outcome: make(chan error, 1)}
}

func (w *readyWatcher) report(err error) {
	select {
	case w.outcome <- err:
	default:
	}
}

func (w *readyWatcher) ConnectionChanged(state chat.ConnectionState, err error) {
	switch {
	case state == chat.Ready:
		w.report(nil)
	case state == chat.Disconnected && errors.Is(err, chat.ErrReconnectExhausted):
		w.report(err)
	}
}

func (w *readyWatcher) LoggedOut(reason error) {
	if reason == nil {
		reason = chat.ErrClosed
	}
	w.report(reason)
}

func (a *app) sendCmd() *cobra.Command {
	var to string
	var wait time.Duration
	cmd := &cobra.Command{
		Use:   "send [flags] <message>...",
		Short: "Send one message to the general chat or to a user",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			watcher := newReadyWatcher()
			cfg, err := a.sessionConfig(watcher, a.logger)
			if err != nil {
				return err
			}
			cfg.History = nil

			session, err := chat.New(cfg)
			if err != nil {
				return err
			}
			defer session.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), wait)
			defer cancel()
			if err := session.Start(ctx); err != nil {
				return err
			}
			select {
			case err := <-watcher.outcome:
				if err != nil {
					return err
				}
			case <-ctx.Done():
				return fmt.Errorf("timed out waiting for the server: %w", ctx.Err())
			}

			if to = strings.TrimPrefix(strings.TrimSpace(to), "@"); to != "" {
				session.SelectConversation(chat.Peer(to))
			}
			msg, err := session.SendText(strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent %s to %s\n", msg.ID, session.Selector())
			return nil
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "Send a private message to this user")
	cmd.Flags().DurationVar(&wait, "wait", 15*time.Second, "How long to wait for the connection")
	return cmd
}

// linePresenter prints a session as plain text lines.
type linePresenter struct {
	chat.NopPresenter

	mu     sync.Mutex
	out    io.Writer
	logger *slog.Logger
	limit  int
	seen   int
	done   chan struct{}
}

func (p *linePresenter) ConnectionChanged(state chat.ConnectionState, err error) {
	if err != nil {
		p.logger.Warn("connection", "state", state.String(), "err", err)
		return
	}
	p.logger.Info("connection", "state", state.String())
}

func (p *linePresenter) MessageReceived(msg chat.Message, scroll bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, formatLine(msg.Timestamp, msg.Sender, msg.Recipient, msg.Content))
	if !scroll || msg.Own {
		return
	}
	p.seen++
	if p.limit > 0 && p.seen == p.limit {
		close(p.done)
	}
}

func (p *linePresenter) SystemNotice(text string, at time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "[%s] * %s\n", at.Local().Format("2006-01-02 15:04"), text)
}

func (p *linePresenter) TypingChanged(identity string, typing bool) {
	p.logger.Debug("typing", "user", identity, "typing", typing)
}

func (p *linePresenter) Notify(level chat.NoticeLevel, text string) {
	if level == chat.NoticeError {
		p.logger.Error(text)
		return
	}
	p.logger.Info(text, "level", level.String())
}

func (p *linePresenter) LoggedOut(reason error) {
	p.logger.Warn("logged out", "reason", reason)
}

func (a *app) listenCmd() *cobra.Command {
	var count int
	var withHistory bool
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Print live messages until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := &linePresenter{
				out:    cmd.OutOrStdout(),
				logger: a.logger,
				limit:  count,
				done:   make(chan struct{}),
			}
			cfg, err := a.sessionConfig(p, a.logger)
			if err != nil {
				return err
			}
			if !withHistory {
				cfg.History = nil
			}
			session, err := chat.New(cfg)
			if err != nil {
				return err
			}
			defer session.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := session.Start(ctx); err != nil {
				return err
			}

			select {
			case <-ctx.Done():
			case <-p.done:
			case <-session.Done():
				return chat.ErrClosed
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 0, "Exit after N live messages from others")
	cmd.Flags().BoolVar(&withHistory, "history", false, "Print stored history before live messages")
	return cmd
}

func (a *app) chatCmd() *cobra.Command {
	var logPath string
	var noColor bool
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Open the interactive terminal chat",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// The terminal belongs to the UI; logs go to a file or nowhere.
			logger := slog.New(slog.DiscardHandler)
			if logPath != "" {
				f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
				if err != nil {
					return err
				}
				defer f.Close()
				logger = newLogger(f, a.verbose)
			}

			if noColor || termenv.EnvNoColor() {
				lipgloss.SetColorProfile(termenv.Ascii)
			}

			presenter := tui.NewPresenter()
			cfg, err := a.sessionConfig(presenter, logger)
			if err != nil {
				return err
			}
			session, err := chat.New(cfg)
			if err != nil {
				return err
			}
			defer session.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM)
			defer stop()

			program := tea.NewProgram(tui.New(ctx, session, presenter), tea.WithAltScreen(), tea.WithContext(ctx))
			final, err := program.Run()
			if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				return err
			}
			if m, ok := final.(tui.Model); ok && m.LoggedOut() != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Logged out: %v\n", m.LoggedOut())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&logPath, "log-file", "", "Write logs to this file while the UI is open")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colors (also honors NO_COLOR)")
	return cmd
}
