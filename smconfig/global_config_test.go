package smconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadGlobalFromMissingFileReturnsEmpty(t *testing.T) {
	t.Parallel()

	cfg, err := LoadGlobalFrom(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatalf("LoadGlobalFrom: %v", err)
	}
	if cfg.Servers == nil || cfg.Accounts == nil {
		t.Fatalf("expected maps initialized")
	}
}

func TestSaveGlobalToWrites0600(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := &GlobalConfig{
		Servers: map[string]Server{"localhost:8080": {}},
		Accounts: map[string]Account{
			"alice": {Server: "localhost:8080", Username: "alice", SessionToken: "tok"},
		},
		DefaultAccount: "alice",
	}
	if err := cfg.SaveGlobalTo(path); err != nil {
		t.Fatalf("SaveGlobalTo: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if got := info.Mode().Perm(); got != 0o600 {
		t.Fatalf("perm=%o, want 600", got)
	}
}

func TestChatSettingsRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `default_account: alice
accounts:
  alice:
    server: localhost:8080
    username: alice
    session_token: tok
chat:
  max_reconnect_attempts: 8
  typing_interval: 1500ms
  envelope:
    codec: aead
    key_env: TEAM_SECRET
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadGlobalFrom(path)
	if err != nil {
		t.Fatalf("LoadGlobalFrom: %v", err)
	}
	if cfg.Chat.MaxReconnectAttempts != 8 || cfg.Chat.TypingInterval != 1500*time.Millisecond {
		t.Fatalf("chat=%+v", cfg.Chat)
	}
	if cfg.Chat.Envelope.Codec != "aead" || cfg.Chat.Envelope.KeyEnv != "TEAM_SECRET" {
		t.Fatalf("envelope=%+v", cfg.Chat.Envelope)
	}
	if err := cfg.SaveGlobalTo(path); err != nil {
		t.Fatal(err)
	}
	again, err := LoadGlobalFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	if again.Chat != cfg.Chat {
		t.Fatalf("chat after save=%+v", again.Chat)
	}
}

func TestUpdateGlobalAtMergesAccounts(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := SaveAccount(path, "a", Account{Server: "localhost:8080", Username: "a", SessionToken: "tok-a"}, "http://localhost:8080"); err != nil {
		t.Fatalf("SaveAccount #1: %v", err)
	}
	if err := SaveAccount(path, "b", Account{Server: "localhost:8080", Username: "b", SessionToken: "tok-b"}, ""); err != nil {
		t.Fatalf("SaveAccount #2: %v", err)
	}

	cfg, err := LoadGlobalFrom(path)
	if err != nil {
		t.Fatalf("LoadGlobalFrom: %v", err)
	}
	if _, ok := cfg.Accounts["a"]; !ok {
		t.Fatalf("missing account a")
	}
	if _, ok := cfg.Accounts["b"]; !ok {
		t.Fatalf("missing account b")
	}
	if cfg.DefaultAccount != "a" {
		t.Fatalf("default=%q", cfg.DefaultAccount)
	}
	if cfg.Servers["localhost:8080"].URL != "http://localhost:8080" {
		t.Fatalf("servers=%+v", cfg.Servers)
	}
	if err := SaveAccount(path, "c", Account{}, ""); err == nil {
		t.Fatal("expected error for account without server")
	}
}
