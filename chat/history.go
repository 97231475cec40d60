// ABOUTME: Stored-history loading over REST.
// ABOUTME: Records are sorted oldest first before display; an expired session logs out.

package chat

import (
	"context"
	"errors"
	"fmt"
	"slices"

	messenger "github.com/ledblwka/secure-messenger"
	"github.com/ledblwka/secure-messenger/envelope"
)

// HistorySource returns stored messages in arrival order.
// *messenger.Client satisfies it.
type HistorySource interface {
	History(ctx context.Context) ([]messenger.HistoryRecord, error)
}

// LoadHistory fetches stored messages and presents them oldest first
// without scrolling. Afterwards live history frames are ignored, even when
// the fetch failed. An error matching messenger.ErrSessionExpired logs
// the session out.
func (s *ClientSession) LoadHistory(ctx context.Context) error {
	if s.history == nil {
		return errors.New("chat: no history source configured")
	}
	records, fetchErr := s.history.History(ctx)

	s.mu.Lock()
	defer s.flush()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	s.historyLoaded = true
	if fetchErr != nil {
		if errors.Is(fetchErr, messenger.ErrSessionExpired) {
			s.logger.Warn("history request rejected session", "err", fetchErr)
			s.teardownLocked(fmt.Errorf("%w: %v", ErrAuthenticationRejected, fetchErr), true)
			return fetchErr
		}
		return fmt.Errorf("chat: loading history: %w", fetchErr)
	}

	slices.SortStableFunc(records, func(a, b messenger.HistoryRecord) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	msgs := make([]Message, 0, len(records))
	for _, r := range records {
		kind := KindOf(r.Type)
		if kind != KindGeneral && kind != KindPrivate {
			kind = KindHistory
		}
		env := envelope.Envelope{
			Content:            r.Content,
			InitializationData: envelope.MetaFromWire(r.IV),
			AuthTag:            envelope.MetaFromWire(r.AuthTag),
		}
		msgs = append(msgs, s.openLocked(kind, r.ID, r.Sender, r.Recipient, env, r.Timestamp, envelope.Open))
	}
	s.logger.Debug("history loaded", "count", len(msgs))
	s.emit(func(p Presenter) {
		for _, m := range msgs {
			p.MessageReceived(m, false)
		}
		p.HistoryLoaded(len(msgs))
	})
	return nil
}
