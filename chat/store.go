// ABOUTME: Credential store contract used at startup and on logout.

package chat

import "fmt"

// CredentialStore persists the identity and credential between runs.
type CredentialStore interface {
	// Load returns the stored session, or ErrNoSession when there is none.
	Load() (Session, error)
	// Clear removes the stored session.
	Clear() error
}

// LoadSession reads the session once at startup. Any missing piece is
// reported as ErrNoSession.
func LoadSession(store CredentialStore) (Session, error) {
	s, err := store.Load()
	if err != nil {
		return Session{}, err
	}
	if s.Identity == "" || s.Credential == "" {
		return Session{}, fmt.Errorf("%w: identity or credential missing", ErrNoSession)
	}
	return s, nil
}
