package crypto

import (
	"bytes"
	"crypto/rand"
	"testing"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("failed to generate test key: %v", err)
	}
	return key
}

func TestSessionEncryptor_RoundTrip(t *testing.T) {
	enc, err := NewSessionEncryptor(testKey(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	plaintext := []byte("session state blob")
	ciphertext, err := enc.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	if bytes.Contains(ciphertext, plaintext) {
		t.Error("ciphertext must not contain the plaintext verbatim")
	}

	decrypted, err := enc.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("decrypt failed: %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Errorf("expected round-trip to recover plaintext, got %q", decrypted)
	}
}

func TestSessionEncryptor_NonceIsFreshPerCall(t *testing.T) {
	enc, _ := NewSessionEncryptor(testKey(t))
	a, _ := enc.Encrypt([]byte("same plaintext"))
	b, _ := enc.Encrypt([]byte("same plaintext"))
	if bytes.Equal(a[:NonceSize], b[:NonceSize]) {
		t.Error("expected distinct nonces across calls")
	}
}

func TestSessionEncryptor_TamperedCiphertextFails(t *testing.T) {
	enc, _ := NewSessionEncryptor(testKey(t))
	ciphertext, _ := enc.Encrypt([]byte("secret"))
	ciphertext[len(ciphertext)-1] ^= 0xFF

	if _, err := enc.Decrypt(ciphertext); err == nil {
		t.Error("expected tampered ciphertext to fail authentication")
	}
}

func TestSessionEncryptor_WrongKeyFails(t *testing.T) {
	enc1, _ := NewSessionEncryptor(testKey(t))
	enc2, _ := NewSessionEncryptor(testKey(t))

	ciphertext, _ := enc1.Encrypt([]byte("secret"))
	if _, err := enc2.Decrypt(ciphertext); err == nil {
		t.Error("expected decrypt with wrong key to fail")
	}
}

func TestSessionEncryptor_ShortInputFails(t *testing.T) {
	enc, _ := NewSessionEncryptor(testKey(t))
	if _, err := enc.Decrypt([]byte("short")); err != ErrDataTooShort {
		t.Errorf("expected ErrDataTooShort, got %v", err)
	}
}

func TestNewSessionEncryptor_RejectsWrongKeySize(t *testing.T) {
	_, err := NewSessionEncryptor([]byte("too short"))
	if err != ErrInvalidKeySize {
		t.Errorf("expected ErrInvalidKeySize, got %v", err)
	}
}
