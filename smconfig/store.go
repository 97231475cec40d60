package smconfig

import (
	"fmt"

	"github.com/ledblwka/secure-messenger/chat"
)

// AccountStore keeps one account's session in the config file and
// satisfies chat.CredentialStore.
type AccountStore struct {
	Path    string
	Account string

	// Override fields win over the stored values. They carry flags and
	// SM_* environment overrides.
	Override chat.Session
}

// NewAccountStore returns a store for the account chosen by sel.
func NewAccountStore(path string, sel *Selection) *AccountStore {
	return &AccountStore{
		Path:     path,
		Account:  sel.AccountName,
		Override: chat.Session{Identity: sel.Username, Credential: sel.SessionToken},
	}
}

func (s *AccountStore) Load() (chat.Session, error) {
	cfg, err := LoadGlobalFrom(s.Path)
	if err != nil {
		return chat.Session{}, err
	}
	acct := cfg.Accounts[s.Account]
	sess := chat.Session{
		Identity:   firstNonEmpty(s.Override.Identity, acct.Username),
		Credential: firstNonEmpty(s.Override.Credential, acct.SessionToken),
	}
	if sess.Identity == "" || sess.Credential == "" {
		return chat.Session{}, fmt.Errorf("%w for account %q (run `sm login`)", chat.ErrNoSession, s.Account)
	}
	return sess, nil
}

// Clear drops the stored session token. The account entry stays so the
// next login can reuse its server and username.
func (s *AccountStore) Clear() error {
	s.Override = chat.Session{}
	return UpdateGlobalAt(s.Path, func(cfg *GlobalConfig) error {
		acct, ok := cfg.Accounts[s.Account]
		if !ok {
			return nil
		}
		acct.SessionToken = ""
		cfg.Accounts[s.Account] = acct
		return nil
	})
}
