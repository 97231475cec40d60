package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	messenger "github.com/ledblwka/secure-messenger"
	"github.com/ledblwka/secure-messenger/chat"
	"github.com/ledblwka/secure-messenger/smconfig"
	"github.com/spf13/cobra"
)

const defaultBaseURL = "http://localhost:8080"

func main() {
	loadDotenvBestEffort()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func loadDotenvBestEffort() {
	// Best effort: load from current working directory.
	_ = godotenv.Load()
	_ = godotenv.Overload(".env.sm")
}

type app struct {
	configPath  string
	accountName string
	serverName  string
	baseURL     string
	verbose     bool

	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "sm",
		Short:         "Secure Messenger command-line client",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a.logger = newLogger(cmd.ErrOrStderr(), a.verbose)
			if strings.TrimSpace(a.configPath) == "" {
				p, err := smconfig.DefaultGlobalConfigPath()
				if err != nil {
					return err
				}
				a.configPath = p
			}
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "Config file (default: $SM_CONFIG_PATH or ~/.config/sm/config.yaml)")
	pf.StringVar(&a.accountName, "account", "", "Account name in the config (default: worktree context, then default_account)")
	pf.StringVar(&a.serverName, "server", "", "Server name in the config")
	pf.StringVar(&a.baseURL, "url", "", "Server origin, e.g. https://chat.example.com (overrides the account's server)")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		a.authCmd("login", "Log in and store the session", false),
		a.authCmd("register", "Create an account and store the session", true),
		a.logoutCmd(),
		a.useCmd(),
		a.whoamiCmd(),
		a.usersCmd(),
		a.historyCmd(),
		a.sendCmd(),
		a.listenCmd(),
		a.chatCmd(),
	)
	return root
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func (a *app) resolve() (*smconfig.GlobalConfig, *smconfig.Selection, error) {
	cfg, err := smconfig.LoadGlobalFrom(a.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("read config: %w", err)
	}
	wd, _ := os.Getwd()
	sel, err := smconfig.Resolve(cfg, smconfig.ResolveOptions{
		AccountName:       a.accountName,
		ServerName:        a.serverName,
		WorkingDir:        wd,
		BaseURLOverride:   a.baseURL,
		AllowEnvOverrides: true,
	})
	if err != nil {
		return nil, nil, err
	}
	return cfg, sel, nil
}

// client returns an authenticated REST client for the selected account.
func (a *app) client() (*messenger.Client, *smconfig.Selection, error) {
	_, sel, err := a.resolve()
	if err != nil {
		return nil, nil, err
	}
	if sel.SessionToken == "" {
		return nil, nil, fmt.Errorf("%w for account %q (run `sm login`)", chat.ErrNoSession, sel.AccountName)
	}
	c, err := messenger.NewWithSession(sel.BaseURL, sel.SessionToken)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid base URL: %w", err)
	}
	return c, sel, nil
}

// sessionConfig assembles the realtime session for the selected account.
func (a *app) sessionConfig(presenter chat.Presenter, logger *slog.Logger) (chat.Config, error) {
	cfg, sel, err := a.resolve()
	if err != nil {
		return chat.Config{}, err
	}
	store := smconfig.NewAccountStore(a.configPath, sel)
	sess, err := chat.LoadSession(store)
	if err != nil {
		return chat.Config{}, err
	}
	codec, err := cfg.Chat.Envelope.NewCodec()
	if err != nil {
		return chat.Config{}, err
	}
	client, err := messenger.NewWithSession(sel.BaseURL, sess.Credential)
	if err != nil {
		return chat.Config{}, fmt.Errorf("invalid base URL: %w", err)
	}
	return chat.Config{
		Origin:               sel.BaseURL,
		Session:              sess,
		Dialer:               &messenger.WebSocketDialer{Logger: logger},
		Codec:                codec,
		History:              client,
		Store:                store,
		Presenter:            presenter,
		Logger:               logger,
		MaxReconnectAttempts: cfg.Chat.MaxReconnectAttempts,
		TypingInterval:       cfg.Chat.TypingInterval,
	}, nil
}

func (a *app) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, sel, err := a.resolve()
			if err != nil {
				return err
			}
			if err := smconfig.NewAccountStore(a.configPath, sel).Clear(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged out of account %q\n", sel.AccountName)
			return nil
		},
	}
}

func (a *app) useCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use <account>",
		Short: "Pin an account for the current directory (.sm/context)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := smconfig.LoadGlobalFrom(a.configPath)
			if err != nil {
				return fmt.Errorf("read config: %w", err)
			}
			if _, ok := cfg.Accounts[args[0]]; !ok {
				return fmt.Errorf("unknown account %q", args[0])
			}
			wd, err := os.Getwd()
			if err != nil {
				return err
			}
			path, err := smconfig.PinAccount(wd, a.serverName, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pinned account %q in %s\n", args[0], path)
			return nil
		},
	}
}

func (a *app) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Validate the stored session with the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, sel, err := a.client()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), messenger.DefaultTimeout)
			defer cancel()

			resp, err := c.Validate(ctx)
			if errors.Is(err, messenger.ErrSessionExpired) {
				return fmt.Errorf("session for account %q expired (run `sm login`)", sel.AccountName)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"account":  sel.AccountName,
				"server":   sel.BaseURL,
				"username": resp.Username,
				"valid":    resp.Valid,
			})
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
