package signing

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"
)

func newKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatal(err)
	}
	return key
}

func TestSignAndVerify(t *testing.T) {
	s := NewSigner(newKey(t))
	payload := []byte(`{"form":{"name":"db"}}`)
	sig := s.Sign("formdata", payload)
	if err := s.Verify("formdata", payload, sig); err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if len(sig) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(sig))
	}
}

func TestRejectsTampered(t *testing.T) {
	s := NewSigner(newKey(t))
	sig := s.Sign("formdata", []byte("a"))
	if err := s.Verify("formdata", []byte("b"), sig); !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
}

func TestRejectsWrongDomain(t *testing.T) {
	s := NewSigner(newKey(t))
	sig := s.Sign("service", nil)
	if s.Valid("correlation", nil, sig) {
		t.Fatal("should reject signature from another domain")
	}
}

func TestRejectsWrongKey(t *testing.T) {
	s1, s2 := NewSigner(newKey(t)), NewSigner(newKey(t))
	sig := s1.Sign("service", []byte("x"))
	if s2.Valid("service", []byte("x"), sig) {
		t.Fatal("should reject wrong key")
	}
}

func TestRejectsMalformedSignature(t *testing.T) {
	s := NewSigner(newKey(t))
	if err := s.Verify("service", nil, "zz-not-hex"); err == nil || errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestDeriveKeyDeterministic(t *testing.T) {
	master := newKey(t)
	a := DeriveKey(master, "csrf")
	b := DeriveKey(master, "csrf")
	c := DeriveKey(master, "formdata")
	if !bytes.Equal(a, b) {
		t.Fatal("same purpose should derive same key")
	}
	if bytes.Equal(a, c) {
		t.Fatal("different purposes should derive different keys")
	}
}
