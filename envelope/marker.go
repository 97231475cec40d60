package envelope

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

const (
	ivSize    = 12
	markerTag = "demo_tag"
)

// MarkerCodec is the reversible base64 transform used by the browser
// client. It provides no confidentiality and exists for protocol
// compatibility only.
type MarkerCodec struct {
	// Rand supplies initialization data. Nil means crypto/rand.
	Rand io.Reader
}

func (c MarkerCodec) Encode(plaintext, recipient string) (Envelope, error) {
	iv, err := randomBytes(c.Rand, ivSize)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		Content:            frame(base64.StdEncoding.EncodeToString([]byte(plaintext)), recipient),
		InitializationData: iv,
		AuthTag:            []byte(markerTag),
	}, nil
}

func (c MarkerCodec) Decode(env Envelope) (string, error) {
	body, _, ok := split(env.Content)
	if !ok {
		return "", ErrDecode
	}
	decoded, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return string(decoded), nil
}

func randomBytes(r io.Reader, n int) ([]byte, error) {
	if r == nil {
		r = rand.Reader
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, fmt.Errorf("envelope: reading random bytes: %w", err)
	}
	return b, nil
}
