package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
)

const (
	// KeySize is the length of every symmetric key in the vault.
	KeySize = 32
	// SaltSize is the length of the per-vault KDF salt.
	SaltSize = 32
)

// KDFParams are the argon2id cost parameters baked into a vault at creation
// time. A vault always replays with the parameters it was created under, so
// the cost can be raised for new vaults without breaking old ones.
type KDFParams struct {
	Time    uint32
	Memory  uint32
	Threads uint8
	Salt    []byte
}

// DefaultKDF returns the cost profile used for new vaults, with a fresh
// random salt.
func DefaultKDF() KDFParams {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		panic("crypto: entropy source unavailable: " + err.Error())
	}
	return KDFParams{Time: 3, Memory: 64 * 1024, Threads: 4, Salt: salt}
}

var vaultKeyInfo = []byte("mindvault/vault-key/v1")

// DeriveKey stretches the master secret with argon2id and expands the result
// into the vault AEAD key through HKDF-SHA256, so the raw argon2 output is
// never used as a cipher key directly. Deterministic for identical inputs.
// Non-positive cost parameters are a programming error and panic.
func DeriveKey(secret []byte, p KDFParams) []byte {
	if p.Time == 0 || p.Memory == 0 || p.Threads == 0 {
		panic("crypto: non-positive KDF cost")
	}
	if len(p.Salt) == 0 {
		panic("crypto: empty KDF salt")
	}
	master := argon2.IDKey(secret, p.Salt, p.Time, p.Memory, p.Threads, KeySize)
	defer Zero(master)

	key := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, p.Salt, vaultKeyInfo), key); err != nil {
		panic("crypto: hkdf: " + err.Error())
	}
	return key
}
