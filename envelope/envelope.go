// Package envelope transforms message text to and from the wire envelope
// carried by general and private frames.
//
// An Envelope is the encoded content plus two pieces of metadata: the
// initialization data (IV / nonce) and an authentication tag. Codecs are
// pluggable; MarkerCodec speaks the legacy reversible encoding that
// browser clients understand, AEADCodec keeps the same shape but
// actually encrypts.
package envelope

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Marker prefixes every encoded content string.
const Marker = "🔐 "

// recipientOpen and recipientClose wrap the recipient hint appended to
// encoded content. Both are part of the wire format shared with the
// browser client.
const (
	recipientOpen  = " [для: "
	recipientClose = "]"
)

// ErrDecode reports content that claims to be encoded but cannot be
// decoded.
var ErrDecode = errors.New("envelope: malformed encoding")

// Envelope is encoded message content plus its transform metadata.
type Envelope struct {
	Content            string
	InitializationData []byte
	AuthTag            []byte
}

// Codec encodes plaintext for a recipient and reverses the transform.
// Decode(Encode(m, r)) must return m for every string m.
type Codec interface {
	Encode(plaintext, recipient string) (Envelope, error)
	Decode(env Envelope) (string, error)
}

// IsEncoded reports whether env carries transform metadata and the
// marker framing. Content without initialization data is plain text even
// when it happens to start with the marker.
func IsEncoded(env Envelope) bool {
	if len(env.InitializationData) == 0 {
		return false
	}
	_, _, ok := split(env.Content)
	return ok
}

// Open decodes env with codec. Plain content is returned unchanged with
// encoded=false. When decoding fails the marker-stripped content is
// returned together with an error wrapping ErrDecode, so the caller can
// still deliver the message.
func Open(codec Codec, env Envelope) (text string, encoded bool, err error) {
	if !IsEncoded(env) {
		return env.Content, false, nil
	}
	text, err = codec.Decode(env)
	if err != nil {
		if !errors.Is(err, ErrDecode) {
			err = fmt.Errorf("%w: %v", ErrDecode, err)
		}
		return Strip(env.Content), true, err
	}
	return text, true, nil
}

// OpenFramed is Open for sources that drop the transform metadata, such as
// the server's history replay. Content counts as encoded when the marker
// framing splits around a valid base64 body. Without an IV only the marker
// transform can be reversed, so the configured codec is tried first and
// MarkerCodec second.
func OpenFramed(codec Codec, env Envelope) (text string, encoded bool, err error) {
	if IsEncoded(env) {
		return Open(codec, env)
	}
	body, _, ok := split(env.Content)
	if !ok || body == "" {
		return env.Content, false, nil
	}
	if _, err := base64.StdEncoding.DecodeString(body); err != nil {
		return env.Content, false, nil
	}
	if text, err = codec.Decode(env); err == nil {
		return text, true, nil
	}
	if _, isMarker := codec.(MarkerCodec); !isMarker {
		if text, mErr := (MarkerCodec{}).Decode(env); mErr == nil && utf8.ValidString(text) {
			return text, true, nil
		}
	}
	if !errors.Is(err, ErrDecode) {
		err = fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return Strip(env.Content), true, err
}

// Strip removes the marker prefix, leaving the rest of the content as is.
func Strip(content string) string {
	return strings.TrimPrefix(content, Marker)
}

// frame builds the content string around an already encoded body.
func frame(body, recipient string) string {
	return Marker + body + recipientOpen + recipient + recipientClose
}

// split undoes frame. The body is base64 and never contains a space, so
// the first recipientOpen after the marker ends it.
func split(content string) (body, recipient string, ok bool) {
	rest, found := strings.CutPrefix(content, Marker)
	if !found {
		return "", "", false
	}
	i := strings.Index(rest, recipientOpen)
	if i < 0 {
		return "", "", false
	}
	tail := rest[i+len(recipientOpen):]
	if !strings.HasSuffix(tail, recipientClose) {
		return "", "", false
	}
	return rest[:i], strings.TrimSuffix(tail, recipientClose), true
}

// MetaToWire renders envelope metadata for the iv and auth_tag frame
// fields.
func MetaToWire(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(b)
}

// MetaFromWire parses an iv or auth_tag frame field. Older clients send
// the tag as a bare string, which is kept verbatim when it is not valid
// base64.
func MetaFromWire(s string) []byte {
	if s == "" {
		return nil
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b
	}
	return []byte(s)
}
