package totp

import (
	"encoding/base32"
	"strings"
	"testing"
	"time"
)

// rfcSecret is the RFC 6238 appendix B shared secret for SHA-1.
var rfcSecret = base32.StdEncoding.WithPadding(base32.NoPadding).
	EncodeToString([]byte("12345678901234567890"))

func TestCodeRFC6238Vectors(t *testing.T) {
	cases := []struct {
		unix int64
		want string
	}{
		{59, "287082"},
		{1111111109, "081804"},
		{1111111111, "050471"},
		{1234567890, "005924"},
		{2000000000, "279037"},
	}
	for _, c := range cases {
		got, err := Code(rfcSecret, time.Unix(c.unix, 0).UTC())
		if err != nil {
			t.Fatalf("Code(%d): %v", c.unix, err)
		}
		if got != c.want {
			t.Errorf("Code at %d = %s, want %s", c.unix, got, c.want)
		}
	}
}

func TestVerifyCurrentAndAdjacentSteps(t *testing.T) {
	now := time.Unix(1111111109, 0).UTC()
	code, err := Code(rfcSecret, now)
	if err != nil {
		t.Fatalf("Code: %v", err)
	}

	if !Verify(rfcSecret, code, now) {
		t.Fatal("current-step code rejected")
	}
	if !Verify(rfcSecret, code, now.Add(Step)) {
		t.Fatal("previous-step code rejected within drift window")
	}
	if !Verify(rfcSecret, code, now.Add(-Step)) {
		t.Fatal("next-step code rejected within drift window")
	}
	if Verify(rfcSecret, code, now.Add(3*Step)) {
		t.Fatal("stale code accepted outside drift window")
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	now := time.Now()
	if Verify(rfcSecret, "000000", now) && Verify(rfcSecret, "999999", now) {
		t.Fatal("both fixed codes accepted")
	}
	if Verify(rfcSecret, "12345", now) {
		t.Fatal("short code accepted")
	}
	if Verify(rfcSecret, "1234567", now) {
		t.Fatal("long code accepted")
	}
	if Verify("not-base32!!", "123456", now) {
		t.Fatal("malformed secret accepted")
	}
}

func TestGenerateSecret(t *testing.T) {
	a, err := GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret: %v", err)
	}
	b, err := GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret: %v", err)
	}
	if a == b {
		t.Fatal("secrets must be random")
	}
	if _, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(a); err != nil {
		t.Fatalf("secret not base32: %v", err)
	}
}

func TestProvisionURI(t *testing.T) {
	uri := ProvisionURI("MindVault", "alice", rfcSecret)
	if !strings.HasPrefix(uri, "otpauth://totp/") {
		t.Fatalf("uri = %s", uri)
	}
	for _, want := range []string{"secret=" + rfcSecret, "issuer=MindVault", "digits=6", "period=30"} {
		if !strings.Contains(uri, want) {
			t.Errorf("uri missing %q: %s", want, uri)
		}
	}
}
