// ABOUTME: Typing signals: throttled outbound notifications and inbound indicators that expire.

package chat

import (
	"maps"
	"slices"

	messenger "github.com/ledblwka/secure-messenger"
	"github.com/ledblwka/secure-messenger/clock"
)

// typingIndicator is a visible "peer is typing" marker. scope is the
// conversation it belongs to; gen identifies the armed timer.
type typingIndicator struct {
	scope Selector
	gen   uint64
	timer *clock.Timer
}

// NotifyInput reports local input activity. While a private conversation
// is current and the session is Ready, it sends a typing frame, at most
// one per typing interval. Broadcast input is never signalled.
func (s *ClientSession) NotifyInput() {
	s.mu.Lock()
	conn, err := s.liveConnLocked()
	if err != nil || s.selector.IsBroadcast() {
		s.mu.Unlock()
		return
	}
	now := s.clock.Now()
	if s.typingInterval > 0 && !s.lastTypingSent.IsZero() && now.Sub(s.lastTypingSent) < s.typingInterval {
		s.mu.Unlock()
		return
	}
	// Claim the slot before writing so concurrent input sends one frame.
	prev := s.lastTypingSent
	s.lastTypingSent = now
	f := messenger.Frame{Type: messenger.TypeTyping, Recipient: s.selector.Peer()}
	s.mu.Unlock()

	if err := s.write(conn, f); err != nil {
		s.logger.Debug("typing frame not sent", "err", err)
		s.mu.Lock()
		if s.lastTypingSent.Equal(now) {
			s.lastTypingSent = prev
		}
		s.mu.Unlock()
	}
}

// TypingPeers lists identities whose indicator is currently shown.
func (s *ClientSession) TypingPeers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Sorted(maps.Keys(s.typing))
}

// typingReceivedLocked shows sender's indicator and (re)arms its hide
// timer. A repeat from the same sender replaces the pending timer.
func (s *ClientSession) typingReceivedLocked(sender, recipient string) {
	if sender == "" || sender == s.session.Identity {
		return
	}
	scope := Peer(sender)
	if recipient == messenger.Broadcast {
		scope = Broadcast
	}

	ind, ok := s.typing[sender]
	if ok {
		ind.timer.Stop()
	} else {
		ind = &typingIndicator{}
		s.typing[sender] = ind
		s.emit(func(p Presenter) { p.TypingChanged(sender, true) })
	}
	s.typingGen++
	gen := s.typingGen
	ind.scope = scope
	ind.gen = gen
	ind.timer = s.clock.AfterFunc(s.typingTimeout, func() { s.typingExpired(sender, gen) })
}

func (s *ClientSession) typingExpired(sender string, gen uint64) {
	s.mu.Lock()
	defer s.flush()
	defer s.mu.Unlock()

	ind, ok := s.typing[sender]
	if !ok || ind.gen != gen {
		return
	}
	delete(s.typing, sender)
	s.emit(func(p Presenter) { p.TypingChanged(sender, false) })
}

// cancelTypingForLocked hides every indicator scoped to sel.
func (s *ClientSession) cancelTypingForLocked(sel Selector) {
	for _, id := range slices.Sorted(maps.Keys(s.typing)) {
		ind := s.typing[id]
		if ind.scope != sel {
			continue
		}
		ind.timer.Stop()
		delete(s.typing, id)
		s.emit(func(p Presenter) { p.TypingChanged(id, false) })
	}
}

func (s *ClientSession) clearTypingLocked() {
	for id, ind := range s.typing {
		ind.timer.Stop()
		delete(s.typing, id)
	}
}
