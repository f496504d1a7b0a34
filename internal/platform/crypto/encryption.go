package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

var ErrCiphertextTooShort = errors.New("ciphertext too short")

// Sealer encrypts payslip records at rest with AES-256-GCM. A Sealer without a
// key passes data through untouched so development setups need no secret.
type Sealer struct {
	aead cipher.AEAD
}

func New(key string) (*Sealer, error) {
	if key == "" {
		return &Sealer{}, nil
	}
	decoded := decodeKey(key)
	if len(decoded) != 32 {
		return nil, fmt.Errorf("DATA_ENCRYPTION_KEY must be 32 bytes after decoding, got %d", len(decoded))
	}
	block, err := aes.NewCipher(decoded)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Sealer{aead: aead}, nil
}

func (s *Sealer) Configured() bool {
	return s != nil && s.aead != nil
}

// Seal returns nonce||ciphertext.
func (s *Sealer) Seal(plain []byte) ([]byte, error) {
	if !s.Configured() {
		return plain, nil
	}
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return s.aead.Seal(nonce, nonce, plain, nil), nil
}

func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	if !s.Configured() {
		return sealed, nil
	}
	size := s.aead.NonceSize()
	if len(sealed) < size {
		return nil, ErrCiphertextTooShort
	}
	return s.aead.Open(nil, sealed[:size], sealed[size:], nil)
}

// decodeKey accepts hex, padded or raw base64, or the literal bytes.
func decodeKey(raw string) []byte {
	if len(raw) == 64 {
		if decoded, err := hex.DecodeString(raw); err == nil {
			return decoded
		}
	}
	if decoded, err := base64.StdEncoding.DecodeString(raw); err == nil {
		return decoded
	}
	if decoded, err := base64.RawStdEncoding.DecodeString(raw); err == nil {
		return decoded
	}
	return []byte(raw)
}
