package messenger

import (
	"context"
	"time"
)

// HistoryRecord is one stored message returned by GET /api/history.
type HistoryRecord struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Sender    string    `json:"sender"`
	Recipient string    `json:"recipient"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	IV        string    `json:"iv,omitempty"`
	AuthTag   string    `json:"auth_tag,omitempty"`
	Encrypted bool      `json:"encrypted"`
}

// History returns the messages visible to the session's user: broadcast
// traffic plus private messages they sent or received. Records come back
// in server order; callers sort them for display.
//
// A 401 response matches ErrSessionExpired.
func (c *Client) History(ctx context.Context) ([]HistoryRecord, error) {
	var out []HistoryRecord
	if err := c.get(ctx, "/api/history", &out); err != nil {
		return nil, err
	}
	return out, nil
}
