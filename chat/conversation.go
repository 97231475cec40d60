// ABOUTME: Conversation selection and roster snapshots.

package chat

import (
	"slices"
	"time"

	messenger "github.com/ledblwka/secure-messenger"
)

// SelectConversation makes sel current. Typing indicators belonging to
// the previous conversation are cancelled and hidden.
func (s *ClientSession) SelectConversation(sel Selector) {
	s.mu.Lock()
	defer s.flush()
	defer s.mu.Unlock()

	prev := s.selector
	s.selector = sel
	if prev != sel {
		s.cancelTypingForLocked(prev)
		s.lastTypingSent = time.Time{}
	}
	s.emit(func(p Presenter) { p.ConversationChanged(sel) })
}

func buildRoster(users []messenger.UserInfo, self string) Roster {
	r := Roster{Entries: make([]RosterEntry, 0, len(users))}
	for _, u := range users {
		r.Entries = append(r.Entries, RosterEntry{
			Identity:     u.Username,
			Online:       u.IsOnline,
			HasPublicKey: u.PublicKey != "",
		})
		if !u.IsOnline {
			continue
		}
		r.OnlineCount++
		if u.Username != self {
			r.PrivatePeers = append(r.PrivatePeers, u.Username)
		}
	}
	return r
}

func copyRoster(r Roster) Roster {
	return Roster{
		Entries:      slices.Clone(r.Entries),
		OnlineCount:  r.OnlineCount,
		PrivatePeers: slices.Clone(r.PrivatePeers),
	}
}
