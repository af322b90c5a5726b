package auth

import (
	"encoding/hex"
	"testing"
)

func TestRandomHex(t *testing.T) {
	value, err := RandomHex(16)
	if err != nil {
		t.Fatal(err)
	}
	if len(value) != 32 {
		t.Errorf("expected 32 hex chars for 16 bytes, got %d", len(value))
	}
	if _, err := hex.DecodeString(value); err != nil {
		t.Errorf("not valid hex: %q", value)
	}

	other, err := RandomHex(16)
	if err != nil {
		t.Fatal(err)
	}
	if value == other {
		t.Error("two random values collided")
	}
}

func TestTokenShapes(t *testing.T) {
	pairing, err := NewPairingToken()
	if err != nil {
		t.Fatal(err)
	}
	if len(pairing) != 32 {
		t.Errorf("pairing token length = %d, want 32", len(pairing))
	}

	secret, err := NewSharedSecret()
	if err != nil {
		t.Fatal(err)
	}
	if len(secret) != 64 {
		t.Errorf("shared secret length = %d, want 64", len(secret))
	}
}
