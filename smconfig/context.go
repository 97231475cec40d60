package smconfig

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ContextDir is the per-directory settings folder.
const ContextDir = ".sm"

// WorktreeContext pins accounts for one directory tree. The nearest
// .sm/context above the working directory applies. It holds account
// names only, never tokens.
type WorktreeContext struct {
	DefaultAccount string            `yaml:"default_account,omitempty"`
	ServerAccounts map[string]string `yaml:"server_accounts,omitempty"`
}

// AccountFor returns the account pinned for server, falling back to the
// context default.
func (c *WorktreeContext) AccountFor(server string) string {
	if c == nil {
		return ""
	}
	if name := strings.TrimSpace(c.ServerAccounts[server]); name != "" {
		return name
	}
	return strings.TrimSpace(c.DefaultAccount)
}

// ContextPath returns the context file location inside dir.
func ContextPath(dir string) string {
	return filepath.Join(dir, ContextDir, "context")
}

// FindWorktreeContextPath walks up from startDir and returns the first
// context file found, or os.ErrNotExist.
func FindWorktreeContextPath(startDir string) (string, error) {
	for dir := filepath.Clean(startDir); ; {
		p := ContextPath(dir)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", os.ErrNotExist
		}
		dir = parent
	}
}

func LoadWorktreeContextFrom(path string) (*WorktreeContext, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	ctx := &WorktreeContext{}
	if err := yaml.Unmarshal(data, ctx); err != nil {
		return nil, err
	}
	if ctx.ServerAccounts == nil {
		ctx.ServerAccounts = map[string]string{}
	}
	return ctx, nil
}

func LoadWorktreeContextFromDir(startDir string) (*WorktreeContext, string, error) {
	p, err := FindWorktreeContextPath(startDir)
	if err != nil {
		return nil, "", err
	}
	ctx, err := LoadWorktreeContextFrom(p)
	if err != nil {
		return nil, "", err
	}
	return ctx, p, nil
}

func SaveWorktreeContextTo(path string, ctx *WorktreeContext) error {
	if ctx == nil {
		return errors.New("nil context")
	}
	data, err := yaml.Marshal(ctx)
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data)
}

// PinAccount records account in dir's own context file, creating it if
// needed. With a server name the pin applies to that server only;
// otherwise it becomes the directory default.
func PinAccount(dir, server, account string) (string, error) {
	account = strings.TrimSpace(account)
	if account == "" {
		return "", errors.New("empty account name")
	}
	path := ContextPath(dir)
	ctx, err := LoadWorktreeContextFrom(path)
	if errors.Is(err, os.ErrNotExist) {
		ctx, err = &WorktreeContext{ServerAccounts: map[string]string{}}, nil
	}
	if err != nil {
		return "", err
	}
	if server = strings.TrimSpace(server); server != "" {
		ctx.ServerAccounts[server] = account
	} else {
		ctx.DefaultAccount = account
	}
	return path, SaveWorktreeContextTo(path, ctx)
}
