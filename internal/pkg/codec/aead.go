package codec

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/chacha20poly1305"
)

const aeadPrefix = "v1:"

// AEAD seals balances with XChaCha20-Poly1305. A fresh nonce is drawn for
// every Encode and stored in front of the ciphertext. The owning user id is
// the additional data, so a value copied to another wallet fails to open.
type AEAD struct {
	aead cipher.AEAD
}

// NewAEAD builds a codec from a 32-byte key.
func NewAEAD(key []byte) (*AEAD, error) {
	a, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCodec, err)
	}
	return &AEAD{aead: a}, nil
}

// ParseKey accepts a 32-byte key in hex or standard base64.
func ParseKey(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if b, err := hex.DecodeString(raw); err == nil && len(b) == chacha20poly1305.KeySize {
		return b, nil
	}
	if b, err := base64.StdEncoding.DecodeString(raw); err == nil && len(b) == chacha20poly1305.KeySize {
		return b, nil
	}
	return nil, fmt.Errorf("%w: key must be %d bytes in hex or base64", ErrCodec, chacha20poly1305.KeySize)
}

func (c *AEAD) Encode(userID string, amount decimal.Decimal) (string, error) {
	if err := checkEncodable(amount); err != nil {
		return "", err
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("%w: nonce: %v", ErrCodec, err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(amount.StringFixed(2)), []byte(userID))
	return aeadPrefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (c *AEAD) Decode(userID, raw string) (decimal.Decimal, error) {
	body, ok := strings.CutPrefix(raw, aeadPrefix)
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: unknown encoding", ErrCodec)
	}
	sealed, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: malformed ciphertext", ErrCodec)
	}
	if len(sealed) < c.aead.NonceSize()+c.aead.Overhead() {
		return decimal.Zero, fmt.Errorf("%w: short ciphertext", ErrCodec)
	}

	nonce, ciphertext := sealed[:c.aead.NonceSize()], sealed[c.aead.NonceSize():]
	plain, err := c.aead.Open(nil, nonce, ciphertext, []byte(userID))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: authentication failed", ErrCodec)
	}
	return parsePlain(string(plain))
}
