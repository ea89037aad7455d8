// Package passutil holds the pure password helpers: generation, a strength
// score and a duplicate scan. They operate on already-decrypted values and
// never see the vault key or ciphertext.
package passutil

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
	"unicode"

	"github.com/PyPartners/MindVault/internal/vault"
)

const (
	Uppercase = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	Lowercase = "abcdefghijklmnopqrstuvwxyz"
	Digits    = "0123456789"
	Symbols   = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"
)

var (
	ErrNoClasses    = errors.New("passutil: no character classes enabled")
	ErrLengthTooLow = errors.New("passutil: length below enabled class count")
)

// Classes selects which character sets Generate draws from.
type Classes struct {
	Upper   bool
	Lower   bool
	Digits  bool
	Symbols bool
}

func AllClasses() Classes {
	return Classes{Upper: true, Lower: true, Digits: true, Symbols: true}
}

func (c Classes) sets() []string {
	var out []string
	if c.Upper {
		out = append(out, Uppercase)
	}
	if c.Lower {
		out = append(out, Lowercase)
	}
	if c.Digits {
		out = append(out, Digits)
	}
	if c.Symbols {
		out = append(out, Symbols)
	}
	return out
}

// Generate returns a random password of length n containing at least one
// character from every enabled class.
func Generate(n int, c Classes) (string, error) {
	sets := c.sets()
	if len(sets) == 0 {
		return "", ErrNoClasses
	}
	if n < len(sets) {
		return "", ErrLengthTooLow
	}

	pool := strings.Join(sets, "")
	out := make([]byte, 0, n)
	for _, set := range sets {
		ch, err := pick(set)
		if err != nil {
			return "", err
		}
		out = append(out, ch)
	}
	for len(out) < n {
		ch, err := pick(pool)
		if err != nil {
			return "", err
		}
		out = append(out, ch)
	}
	if err := shuffle(out); err != nil {
		return "", err
	}
	return string(out), nil
}

// Strength scores a password from 0 (very weak) to 5: one point each for
// length >= 8, length >= 12, mixed case, a digit and a symbol.
func Strength(pw string) int {
	if pw == "" {
		return 0
	}
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSymbol = true
		}
	}
	score := 0
	if len(pw) >= 8 {
		score++
	}
	if len(pw) >= 12 {
		score++
	}
	if hasUpper && hasLower {
		score++
	}
	if hasDigit {
		score++
	}
	if hasSymbol {
		score++
	}
	return score
}

// Duplicates groups the sites of entries that share a password. Entries with
// an empty password are skipped.
func Duplicates(entries []vault.Entry) [][]string {
	bySecret := make(map[string][]string)
	order := []string{}
	for _, e := range entries {
		if e.Password == "" {
			continue
		}
		if _, seen := bySecret[e.Password]; !seen {
			order = append(order, e.Password)
		}
		bySecret[e.Password] = append(bySecret[e.Password], e.Site)
	}

	var groups [][]string
	for _, pw := range order {
		if sites := bySecret[pw]; len(sites) > 1 {
			groups = append(groups, sites)
		}
	}
	return groups
}

func pick(set string) (byte, error) {
	i, err := rand.Int(rand.Reader, big.NewInt(int64(len(set))))
	if err != nil {
		return 0, err
	}
	return set[i.Int64()], nil
}

func shuffle(b []byte) error {
	for i := len(b) - 1; i > 0; i-- {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return err
		}
		b[i], b[j.Int64()] = b[j.Int64()], b[i]
	}
	return nil
}
