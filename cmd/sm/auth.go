package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	messenger "github.com/ledblwka/secure-messenger"
	"github.com/ledblwka/secure-messenger/smconfig"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func (a *app) authCmd(use, short string, register bool) *cobra.Command {
	var username string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			baseURL, serverName, err := a.loginTarget()
			if err != nil {
				return err
			}

			in := bufio.NewReader(cmd.InOrStdin())
			username = strings.TrimSpace(username)
			if username == "" {
				if username, err = promptLine(cmd.ErrOrStderr(), in, "Username"); err != nil {
					return err
				}
			}
			password, err := readPassword(cmd, in)
			if err != nil {
				return err
			}
			if username == "" || password == "" {
				return errors.New("username and password are required")
			}

			c, err := messenger.New(baseURL)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), messenger.DefaultTimeout)
			defer cancel()

			var resp *messenger.AuthResponse
			if register {
				resp, err = c.Register(ctx, username, password)
			} else {
				resp, err = c.Login(ctx, username, password)
			}
			if err != nil {
				return err
			}

			name := firstNonEmpty(a.accountName, resp.Username, username)
			acct := smconfig.Account{
				Server:       serverName,
				Username:     firstNonEmpty(resp.Username, username),
				SessionToken: resp.SessionToken,
			}
			if err := smconfig.SaveAccount(a.configPath, name, acct, baseURL); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			a.logger.Debug("session stored", "account", name, "server", serverName, "config", a.configPath)

			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (account %q on %s)\n", acct.Username, name, baseURL)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "Username (prompted when omitted)")
	return cmd
}

// loginTarget picks the server to authenticate against: --url, then
// SM_URL, then the currently selected account, then --server, then the
// local default.
func (a *app) loginTarget() (baseURL, serverName string, err error) {
	baseURL = firstNonEmpty(a.baseURL, os.Getenv(smconfig.EnvURL))
	if baseURL == "" {
		if _, sel, rerr := a.resolve(); rerr == nil {
			baseURL, serverName = sel.BaseURL, sel.ServerName
		}
	}
	if baseURL == "" && a.serverName != "" {
		if baseURL, err = smconfig.DeriveBaseURLFromServerName(a.serverName); err != nil {
			return "", "", err
		}
		serverName = a.serverName
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if err := smconfig.ValidateBaseURL(baseURL); err != nil {
		return "", "", err
	}
	if serverName == "" {
		serverName = a.serverName
	}
	if serverName == "" {
		if serverName, err = smconfig.DeriveServerNameFromURL(baseURL); err != nil {
			return "", "", err
		}
	}
	return baseURL, serverName, nil
}

func promptLine(w io.Writer, in *bufio.Reader, label string) (string, error) {
	fmt.Fprintf(w, "%s: ", label)
	line, err := in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// readPassword reads without echo from a terminal, or a plain line from
// piped input.
func readPassword(cmd *cobra.Command, in *bufio.Reader) (string, error) {
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	line, err := in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
