package fedauth

import (
	"testing"
)

func TestSignDeterministic(t *testing.T) {
	body := []byte(`{"hello":"world"}`)
	first := Sign("secret", body)
	second := Sign("secret", body)
	if first != second {
		t.Errorf("same input signed differently: %s vs %s", first, second)
	}
	if len(first) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(first))
	}
}

func TestVerify(t *testing.T) {
	body := []byte(`{"hello":"world"}`)
	sig := Sign("secret", body)

	tests := []struct {
		name      string
		secret    string
		body      []byte
		signature string
		want      bool
	}{
		{"valid", "secret", body, sig, true},
		{"wrong secret", "other", body, sig, false},
		{"tampered body", "secret", []byte(`{"hello":"mars"}`), sig, false},
		{"garbage signature", "secret", body, "deadbeef", false},
		{"empty signature", "secret", body, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Verify(tt.secret, tt.body, tt.signature); got != tt.want {
				t.Errorf("Verify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSignEmptyBody(t *testing.T) {
	if Sign("secret", nil) != Sign("secret", []byte{}) {
		t.Error("nil and empty body must sign identically")
	}
}

func TestCanonicalBodySortsKeys(t *testing.T) {
	a, err := CanonicalBody(map[string]any{"b": 1, "a": 2, "c": 3})
	if err != nil {
		t.Fatal(err)
	}
	b, err := CanonicalBody(map[string]any{"c": 3, "a": 2, "b": 1})
	if err != nil {
		t.Fatal(err)
	}
	if string(a) != string(b) {
		t.Errorf("key order leaked into canonical form: %s vs %s", a, b)
	}
	if string(a) != `{"a":2,"b":1,"c":3}` {
		t.Errorf("unexpected canonical form: %s", a)
	}
}

func TestCanonicalBodyCrossNodeAgreement(t *testing.T) {
	// A struct on the sender and a decoded map on a relaying node must sign
	// to the same bytes.
	type payload struct {
		SenderPUID   string `json:"sender_puid"`
		ReceiverPUID string `json:"receiver_puid"`
	}
	fromStruct, err := CanonicalBody(payload{SenderPUID: "p1", ReceiverPUID: "p2"})
	if err != nil {
		t.Fatal(err)
	}
	fromMap, err := CanonicalBody(map[string]string{"receiver_puid": "p2", "sender_puid": "p1"})
	if err != nil {
		t.Fatal(err)
	}
	if Sign("s", fromStruct) != Sign("s", fromMap) {
		t.Error("equivalent payloads produced different signatures")
	}
}
