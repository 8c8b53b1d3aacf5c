// Package sealbox encrypts content columns at rest with XChaCha20-Poly1305.
//
// Sealed values carry a short magic prefix. Values without it are returned unchanged by
// Open, so rows written before a key was configured stay readable.
package sealbox

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

var magic = []byte{0x00, 's', 'b', '1'}

var (
	ErrNoKey     = errors.New("sealbox: sealed value but no key configured")
	ErrMalformed = errors.New("sealbox: malformed sealed value")
)

// Sealer is safe for concurrent use. A nil or keyless Sealer passes data through.
type Sealer struct {
	key []byte
}

// New derives a 256-bit key from secret. An empty secret yields a passthrough Sealer.
func New(secret string) (*Sealer, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return &Sealer{}, nil
	}
	key := make([]byte, chacha20poly1305.KeySize)
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte("content-artifact/v1"))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return &Sealer{key: key}, nil
}

func (s *Sealer) Enabled() bool {
	return s != nil && len(s.key) > 0
}

// Seal encrypts plain, binding it to aad. Empty input stays empty.
func (s *Sealer) Seal(plain, aad []byte) ([]byte, error) {
	if len(plain) == 0 || !s.Enabled() {
		return plain, nil
	}
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(magic)+aead.NonceSize()+len(plain)+aead.Overhead())
	out = append(out, magic...)
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plain, aad), nil
}

// Open reverses Seal. Unsealed input is returned as is.
func (s *Sealer) Open(data, aad []byte) ([]byte, error) {
	if !IsSealed(data) {
		return data, nil
	}
	if !s.Enabled() {
		return nil, ErrNoKey
	}
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, err
	}
	body := data[len(magic):]
	if len(body) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrMalformed
	}
	nonce, ct := body[:aead.NonceSize()], body[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ct, aad)
	if err != nil {
		return nil, fmt.Errorf("sealbox: open: %w", err)
	}
	return plain, nil
}

func IsSealed(data []byte) bool {
	return bytes.HasPrefix(data, magic)
}
