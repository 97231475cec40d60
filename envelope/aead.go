package envelope

import (
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// MinSecretSize is the shortest shared secret NewAEADCodec accepts.
const MinSecretSize = 16

const keyInfoPrefix = "secure-messenger envelope v1:"

// AEADCodec seals content with ChaCha20-Poly1305. Each recipient gets its
// own key, derived with HKDF-SHA256 from a secret shared by all clients of
// a deployment. The recipient is bound as associated data.
//
// The envelope keeps the marker framing: the body is the base64
// ciphertext, InitializationData is the nonce and AuthTag is the Poly1305
// tag split off the sealed output.
type AEADCodec struct {
	secret []byte
	rand   io.Reader
}

// NewAEADCodec returns a codec keyed by secret. rand may be nil.
func NewAEADCodec(secret []byte, rand io.Reader) (*AEADCodec, error) {
	if len(secret) < MinSecretSize {
		return nil, fmt.Errorf("envelope: secret must be at least %d bytes", MinSecretSize)
	}
	return &AEADCodec{secret: append([]byte(nil), secret...), rand: rand}, nil
}

func (c *AEADCodec) aead(recipient string) (cipher.AEAD, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	kdf := hkdf.New(sha256.New, c.secret, nil, []byte(keyInfoPrefix+recipient))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("envelope: deriving key: %w", err)
	}
	return chacha20poly1305.New(key)
}

func (c *AEADCodec) Encode(plaintext, recipient string) (Envelope, error) {
	aead, err := c.aead(recipient)
	if err != nil {
		return Envelope{}, err
	}
	nonce, err := randomBytes(c.rand, aead.NonceSize())
	if err != nil {
		return Envelope{}, err
	}
	sealed := aead.Seal(nil, nonce, []byte(plaintext), []byte(recipient))
	split := len(sealed) - aead.Overhead()
	return Envelope{
		Content:            frame(base64.StdEncoding.EncodeToString(sealed[:split]), recipient),
		InitializationData: nonce,
		AuthTag:            sealed[split:],
	}, nil
}

func (c *AEADCodec) Decode(env Envelope) (string, error) {
	body, recipient, ok := split(env.Content)
	if !ok {
		return "", ErrDecode
	}
	ciphertext, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	aead, err := c.aead(recipient)
	if err != nil {
		return "", err
	}
	if len(env.InitializationData) != aead.NonceSize() {
		return "", fmt.Errorf("%w: nonce is %d bytes", ErrDecode, len(env.InitializationData))
	}
	if len(env.AuthTag) != aead.Overhead() {
		return "", fmt.Errorf("%w: tag is %d bytes", ErrDecode, len(env.AuthTag))
	}
	sealed := make([]byte, 0, len(ciphertext)+len(env.AuthTag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, env.AuthTag...)
	plaintext, err := aead.Open(nil, env.InitializationData, sealed, []byte(recipient))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return string(plaintext), nil
}
