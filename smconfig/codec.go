package smconfig

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/ledblwka/secure-messenger/envelope"
)

// DefaultEnvelopeKeyEnv names the variable holding the shared AEAD secret
// when key_env is not set.
const DefaultEnvelopeKeyEnv = "SM_ENVELOPE_KEY"

const (
	CodecMarker = "marker"
	CodecAEAD   = "aead"
)

// EnvelopeSettings chooses the message envelope codec. The marker codec
// is what browser clients speak; aead requires every participant to share
// the secret.
type EnvelopeSettings struct {
	Codec  string `yaml:"codec,omitempty"`
	KeyEnv string `yaml:"key_env,omitempty"`
}

// NewCodec builds the configured codec. The secret may be base64 or raw
// text.
func (s EnvelopeSettings) NewCodec() (envelope.Codec, error) {
	switch strings.ToLower(strings.TrimSpace(s.Codec)) {
	case "", CodecMarker:
		return envelope.MarkerCodec{}, nil
	case CodecAEAD:
		keyEnv := firstNonEmpty(s.KeyEnv, DefaultEnvelopeKeyEnv)
		raw := strings.TrimSpace(os.Getenv(keyEnv))
		if raw == "" {
			return nil, fmt.Errorf("envelope codec aead needs a secret in $%s", keyEnv)
		}
		secret, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			secret = []byte(raw)
		}
		codec, err := envelope.NewAEADCodec(secret, nil)
		if err != nil {
			return nil, fmt.Errorf("envelope key $%s: %w", keyEnv, err)
		}
		return codec, nil
	default:
		return nil, fmt.Errorf("unknown envelope codec %q (want %s or %s)", s.Codec, CodecMarker, CodecAEAD)
	}
}
