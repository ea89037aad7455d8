// Package totp implements RFC 6238 time-based one-time passwords, used as
// the vault's second authentication factor. Secrets are generated here but
// stored only inside the encrypted vault payload.
package totp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	// Step is the time slice a code is valid for.
	Step = 30 * time.Second
	// Digits is the code length.
	Digits = 6
	// driftSteps is how many adjacent steps Verify accepts on either side
	// of the current one, to tolerate client clock drift.
	driftSteps = 1

	secretSize = 20 // 160-bit shared secret
)

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// GenerateSecret returns a fresh random enrollment secret, base32-encoded
// for manual entry or QR display.
func GenerateSecret() (string, error) {
	raw := make([]byte, secretSize)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return b32.EncodeToString(raw), nil
}

// Code computes the 6-digit code for the time step containing t.
func Code(secret string, t time.Time) (string, error) {
	key, err := decodeSecret(secret)
	if err != nil {
		return "", errors.New("totp: malformed secret")
	}
	defer wipe(key)
	return hotp(key, uint64(t.Unix()/int64(Step/time.Second))), nil
}

// Verify reports whether code is valid for the step containing t or one of
// the immediately adjacent steps. Everything else is rejected.
func Verify(secret, code string, t time.Time) bool {
	code = strings.TrimSpace(code)
	if len(code) != Digits {
		return false
	}
	key, err := decodeSecret(secret)
	if err != nil {
		return false
	}
	defer wipe(key)

	counter := t.Unix() / int64(Step/time.Second)
	for i := int64(-driftSteps); i <= driftSteps; i++ {
		c := counter + i
		if c < 0 {
			continue
		}
		if hmac.Equal([]byte(hotp(key, uint64(c))), []byte(code)) {
			return true
		}
	}
	return false
}

// ProvisionURI renders the otpauth:// enrollment URI understood by
// authenticator apps.
func ProvisionURI(issuer, account, secret string) string {
	v := url.Values{}
	v.Set("secret", secret)
	v.Set("issuer", issuer)
	v.Set("algorithm", "SHA1")
	v.Set("digits", fmt.Sprintf("%d", Digits))
	v.Set("period", fmt.Sprintf("%d", int(Step/time.Second)))
	u := url.URL{
		Scheme:   "otpauth",
		Host:     "totp",
		Path:     "/" + issuer + ":" + account,
		RawQuery: v.Encode(),
	}
	return u.String()
}

// hotp is the RFC 4226 dynamic truncation over an HMAC-SHA1 of the counter.
func hotp(key []byte, counter uint64) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], counter)

	mac := hmac.New(sha1.New, key)
	mac.Write(buf[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0F
	trunc := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7FFFFFFF
	return fmt.Sprintf("%0*d", Digits, trunc%1000000)
}

func decodeSecret(secret string) ([]byte, error) {
	s := strings.ToUpper(strings.TrimSpace(secret))
	if s == "" {
		return nil, errors.New("totp: empty secret")
	}
	return b32.DecodeString(s)
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
