package smconfig

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
)

// Environment overrides honored by Resolve when AllowEnvOverrides is set.
const (
	EnvAccount      = "SM_ACCOUNT"
	EnvServer       = "SM_SERVER"
	EnvURL          = "SM_URL"
	EnvUsername     = "SM_USERNAME"
	EnvSessionToken = "SM_SESSION_TOKEN"
)

// Selection is the account a command runs as.
type Selection struct {
	AccountName  string
	ServerName   string
	BaseURL      string
	Username     string
	SessionToken string
}

type ResolveOptions struct {
	AccountName string
	ServerName  string

	WorkingDir  string
	ContextPath string
	Context     *WorktreeContext

	BaseURLOverride string

	AllowEnvOverrides bool
}

// Resolve picks an account and server. An explicit account wins. Without
// one, a server-specific mapping in the worktree context is tried, then
// the context default, then the global default.
func Resolve(global *GlobalConfig, opts ResolveOptions) (*Selection, error) {
	if global == nil {
		global = &GlobalConfig{}
	}
	global.init()

	ctx, err := resolveContext(opts)
	if err != nil {
		return nil, err
	}

	env := func(key string) string {
		if !opts.AllowEnvOverrides {
			return ""
		}
		return strings.TrimSpace(os.Getenv(key))
	}
	accountName := firstNonEmpty(opts.AccountName, env(EnvAccount))
	serverName := firstNonEmpty(opts.ServerName, env(EnvServer))
	baseURL := strings.TrimSpace(opts.BaseURLOverride)
	if baseURL == "" {
		if v := env(EnvURL); v != "" {
			if err := ValidateBaseURL(v); err != nil {
				return nil, fmt.Errorf("invalid %s: %w", EnvURL, err)
			}
			baseURL = v
		}
	}

	if accountName == "" {
		accountName, err = chooseAccount(global, ctx, serverName)
		if err != nil {
			return nil, err
		}
	}
	acct, ok := global.Accounts[accountName]
	if !ok {
		return nil, fmt.Errorf("unknown account %q (run `sm login` or edit your sm config)", accountName)
	}
	if strings.TrimSpace(acct.Server) == "" {
		return nil, fmt.Errorf("account %q missing server", accountName)
	}
	if serverName == "" {
		serverName = strings.TrimSpace(acct.Server)
	}
	if baseURL == "" {
		if baseURL, err = resolveServerURL(global, serverName); err != nil {
			return nil, err
		}
	}

	return &Selection{
		AccountName:  accountName,
		ServerName:   serverName,
		BaseURL:      baseURL,
		Username:     firstNonEmpty(env(EnvUsername), acct.Username),
		SessionToken: firstNonEmpty(env(EnvSessionToken), acct.SessionToken),
	}, nil
}

func resolveContext(opts ResolveOptions) (*WorktreeContext, error) {
	if opts.Context != nil {
		return opts.Context, nil
	}
	if strings.TrimSpace(opts.ContextPath) != "" {
		return LoadWorktreeContextFrom(opts.ContextPath)
	}
	if strings.TrimSpace(opts.WorkingDir) == "" {
		return nil, nil
	}
	ctx, _, err := LoadWorktreeContextFromDir(opts.WorkingDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("invalid worktree context: %w", err)
	}
	return ctx, nil
}

func chooseAccount(global *GlobalConfig, ctx *WorktreeContext, serverName string) (string, error) {
	var ctxDefault string
	if ctx != nil {
		ctxDefault = strings.TrimSpace(ctx.DefaultAccount)
	}
	globalDefault := strings.TrimSpace(global.DefaultAccount)

	if serverName == "" {
		if name := firstNonEmpty(ctxDefault, globalDefault); name != "" {
			return name, nil
		}
		return "", errors.New("no default account configured (run `sm login`, or set default_account in .sm/context or your sm config)")
	}

	onServer := func(name string) bool {
		acct, ok := global.Accounts[name]
		return ok && strings.TrimSpace(acct.Server) == serverName
	}
	if ctx != nil {
		if name := strings.TrimSpace(ctx.ServerAccounts[serverName]); name != "" {
			return name, nil
		}
	}
	for _, name := range []string{ctxDefault, globalDefault} {
		if name != "" && onServer(name) {
			return name, nil
		}
	}
	return "", fmt.Errorf("no account configured for server %q (set .sm/context server_accounts[%q], or pass --account)", serverName, serverName)
}

func resolveServerURL(global *GlobalConfig, serverName string) (string, error) {
	if srv, ok := global.Servers[serverName]; ok && strings.TrimSpace(srv.URL) != "" {
		return strings.TrimSpace(srv.URL), nil
	}
	return DeriveBaseURLFromServerName(serverName)
}

// DeriveBaseURLFromServerName turns a server key (host:port or full URL)
// into an origin. Loopback hosts default to http, everything else to https.
func DeriveBaseURLFromServerName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("empty server name")
	}
	if strings.HasPrefix(name, "http://") || strings.HasPrefix(name, "https://") {
		return name, nil
	}
	for _, local := range []string{"localhost", "127.0.0.1", "[::1]"} {
		if strings.HasPrefix(name, local) {
			return "http://" + name, nil
		}
	}
	return "https://" + name, nil
}

func DeriveServerNameFromURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", fmt.Errorf("url missing host: %q", raw)
	}
	return u.Host, nil
}

func ValidateBaseURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return errors.New("empty base URL")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base URL %q must use http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid base URL %q", raw)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
