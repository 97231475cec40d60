// Package smconfig stores servers, accounts, and chat settings for the sm
// CLI in a YAML file shared by every working directory.
package smconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPathEnv overrides the config file location.
const ConfigPathEnv = "SM_CONFIG_PATH"

type GlobalConfig struct {
	Servers        map[string]Server  `yaml:"servers,omitempty"`
	Accounts       map[string]Account `yaml:"accounts,omitempty"`
	DefaultAccount string             `yaml:"default_account,omitempty"`
	Chat           ChatSettings       `yaml:"chat,omitempty"`
}

type Server struct {
	URL string `yaml:"url,omitempty"`
}

// Account is a login on one server. SessionToken is empty after logout.
type Account struct {
	Server       string `yaml:"server,omitempty"`
	Username     string `yaml:"username,omitempty"`
	SessionToken string `yaml:"session_token,omitempty"`
}

// ChatSettings tunes the realtime session. Zero values keep the client
// defaults.
type ChatSettings struct {
	MaxReconnectAttempts int              `yaml:"max_reconnect_attempts,omitempty"`
	TypingInterval       time.Duration    `yaml:"typing_interval,omitempty"`
	Envelope             EnvelopeSettings `yaml:"envelope,omitempty"`
}

func DefaultGlobalConfigPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv(ConfigPathEnv)); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "sm", "config.yaml"), nil
}

func LoadGlobal() (*GlobalConfig, error) {
	path, err := DefaultGlobalConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadGlobalFrom(path)
}

// LoadGlobalFrom reads the config at path. A missing file yields an empty
// config.
func LoadGlobalFrom(path string) (*GlobalConfig, error) {
	cfg := &GlobalConfig{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	cfg.init()
	return cfg, nil
}

func (c *GlobalConfig) init() {
	if c.Servers == nil {
		c.Servers = map[string]Server{}
	}
	if c.Accounts == nil {
		c.Accounts = map[string]Account{}
	}
}

// SaveGlobalTo writes the config atomically with 0600 permissions, since
// it holds session tokens.
func (c *GlobalConfig) SaveGlobalTo(path string) error {
	c.init()
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data)
}

// writeFileAtomic replaces path with data through a private temp file in
// the same directory.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// UpdateGlobalAt applies fn to the config at path while holding an
// exclusive cross-process lock, then saves the result.
func UpdateGlobalAt(path string, fn func(cfg *GlobalConfig) error) error {
	if fn == nil {
		return errors.New("nil update function")
	}

	lock, err := LockExclusive(path+".lock", DefaultLockTimeout)
	if err != nil {
		return fmt.Errorf("lock config: %w", err)
	}
	defer func() { _ = lock.Close() }()

	cfg, err := LoadGlobalFrom(path)
	if err != nil {
		return err
	}
	if err := fn(cfg); err != nil {
		return err
	}
	return cfg.SaveGlobalTo(path)
}

// SaveAccount records a fresh login under name and makes it the default
// when no default exists yet.
func SaveAccount(path, name string, acct Account, serverURL string) error {
	return UpdateGlobalAt(path, func(cfg *GlobalConfig) error {
		if acct.Server == "" {
			return fmt.Errorf("account %q missing server", name)
		}
		if serverURL != "" {
			cfg.Servers[acct.Server] = Server{URL: serverURL}
		}
		cfg.Accounts[name] = acct
		if cfg.DefaultAccount == "" {
			cfg.DefaultAccount = name
		}
		return nil
	})
}
