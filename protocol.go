package messenger

import (
	"encoding/json"
	"fmt"
	"time"
)

// Wire kinds carried in the type field of a Frame.
const (
	TypeAuth       = "auth"
	TypeGeneral    = "general"
	TypePrivate    = "private"
	TypeHistory    = "history"
	TypeUsersList  = "users_list"
	TypeUserJoined = "user_joined"
	TypeUserLeft   = "user_left"
	TypeTyping     = "typing"
	TypeSuccess    = "success"
	TypeError      = "error"
	TypePing       = "ping"
	TypePong       = "pong"
)

// Broadcast is the recipient used for messages to the general channel.
const Broadcast = "all"

// Frame is a single JSON message on the realtime channel.
type Frame struct {
	Type         string     `json:"type"`
	ID           string     `json:"id,omitempty"`
	Sender       string     `json:"sender,omitempty"`
	Recipient    string     `json:"recipient,omitempty"`
	Content      string     `json:"content,omitempty"`
	Timestamp    time.Time  `json:"timestamp,omitzero"`
	Users        []UserInfo `json:"users,omitempty"`
	Error        string     `json:"error,omitempty"`
	IV           string     `json:"iv,omitempty"`
	AuthTag      string     `json:"auth_tag,omitempty"`
	KeyID        string     `json:"key_id,omitempty"`
	SessionToken string     `json:"session_token,omitempty"`
	Username     string     `json:"username,omitempty"`
	Password     string     `json:"password,omitempty"`
}

// UserInfo is a roster entry as sent by the server.
type UserInfo struct {
	Username  string    `json:"username"`
	PublicKey string    `json:"public_key,omitempty"`
	IsOnline  bool      `json:"is_online"`
	LastSeen  time.Time `json:"last_seen,omitzero"`
	JoinedAt  time.Time `json:"joined_at,omitzero"`
}

// AuthFrame builds the first frame sent on every new connection.
func AuthFrame(username, sessionToken string) Frame {
	return Frame{Type: TypeAuth, SessionToken: sessionToken, Username: username}
}

// ParseFrame decodes one inbound frame. A frame without a type is
// rejected.
func ParseFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, err
	}
	if f.Type == "" {
		return Frame{}, fmt.Errorf("messenger: frame has no type")
	}
	return f, nil
}

// Marshal encodes the frame for the wire.
func (f Frame) Marshal() ([]byte, error) {
	return json.Marshal(f)
}
