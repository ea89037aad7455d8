package crypto

import (
	"crypto/rand"
	"errors"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// NonceSize is the 96-bit ChaCha20-Poly1305 nonce length.
	NonceSize = chacha20poly1305.NonceSize
	// TagSize is the Poly1305 tag appended to every ciphertext.
	TagSize = chacha20poly1305.Overhead
)

// ErrAuthFailed is the only failure the AEAD layer reports on open. A wrong
// key, corrupted bytes and deliberate tampering are indistinguishable to the
// caller.
var ErrAuthFailed = errors.New("crypto: authentication failed")

// Seal encrypts plaintext under key with a fresh random nonce. The returned
// ciphertext carries the authentication tag appended. The nonce is never
// reused for a given key: it is drawn from crypto/rand on every call.
func Seal(key, plaintext, aad []byte) (nonce, ciphertext []byte, err error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, nil, err
	}
	nonce = make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, err
	}
	ciphertext = aead.Seal(nil, nonce, plaintext, aad)
	return nonce, ciphertext, nil
}

// Open verifies the tag and decrypts. Every verification failure surfaces as
// ErrAuthFailed; no plaintext is returned unless the tag checks out.
func Open(key, nonce, ciphertext, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != NonceSize || len(ciphertext) < TagSize {
		return nil, ErrAuthFailed
	}
	pt, err := aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, ErrAuthFailed
	}
	return pt, nil
}
