package fedauth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Headers carried by every authenticated federation request.
const (
	HeaderNodeHostname  = "X-Node-Hostname"
	HeaderNodeSignature = "X-Node-Signature"
)

// Sign computes the hex HMAC-SHA256 of body under the shared secret. body is
// the exact bytes transmitted; GET-style calls sign the empty byte string.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the digest and compares in constant time.
func Verify(secret string, body []byte, signature string) bool {
	expected := Sign(secret, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// CanonicalBody serializes v as JSON with object keys sorted, so signer and
// verifier produce identical bytes regardless of field ordering. Structs are
// round-tripped through a generic value to pick up map-key sorting.
func CanonicalBody(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling payload: %w", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("canonicalizing payload: %w", err)
	}
	return json.Marshal(generic)
}
