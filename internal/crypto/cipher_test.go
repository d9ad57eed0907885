package crypto

import (
	"errors"
	"strings"
	"testing"
)

func newTestCipher(t *testing.T) *Cipher {
	t.Helper()
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	c, err := NewCipher(key)
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}
	return c
}

func TestRoundTrip(t *testing.T) {
	c := newTestCipher(t)
	inputs := []string{
		"",
		"hello",
		"emoji 🎉🧘‍♀️ and accents é ü",
		strings.Repeat("long text ", 200),
		"line\nbreaks\tand\x00nul",
	}
	for _, in := range inputs {
		env, err := c.Encrypt(in)
		if err != nil {
			t.Fatalf("encrypt %q: %v", in, err)
		}
		if in != "" && env == in {
			t.Fatalf("envelope equals plaintext for %q", in)
		}
		out, err := c.Decrypt(env)
		if err != nil {
			t.Fatalf("decrypt %q: %v", in, err)
		}
		if out != in {
			t.Fatalf("round trip mismatch: got %q want %q", out, in)
		}
	}
}

func TestEncryptUsesFreshNonce(t *testing.T) {
	c := newTestCipher(t)
	a, _ := c.Encrypt("same")
	b, _ := c.Encrypt("same")
	if a == b {
		t.Fatal("expected distinct envelopes for repeated plaintext")
	}
}

func TestDecryptFailures(t *testing.T) {
	c := newTestCipher(t)
	if _, err := c.Decrypt("%%%not-base64"); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
	if _, err := c.Decrypt("YWJj"); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed for short envelope, got %v", err)
	}

	env, err := c.Encrypt("secret")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	other := newTestCipher(t)
	if _, err := other.Decrypt(env); !errors.Is(err, ErrAuthentication) {
		t.Fatalf("expected ErrAuthentication with wrong key, got %v", err)
	}
}

func TestNewCipherRejectsBadKeys(t *testing.T) {
	if _, err := NewCipher(""); !errors.Is(err, ErrMissingKey) {
		t.Fatalf("expected ErrMissingKey, got %v", err)
	}
	if _, err := NewCipher("c2hvcnQ="); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey for short key, got %v", err)
	}
	if _, err := NewCipher("not base64!"); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey for bad encoding, got %v", err)
	}
}
