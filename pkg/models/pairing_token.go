package models

import "time"

// PairingToken is a single-use secret authorizing one pairing handshake.
// It is consumed atomically by the first initiate_pairing call that
// references it, or expires.
type PairingToken struct {
	Token     string    `db:"token"`
	CreatedBy int       `db:"created_by"`
	ExpiresAt time.Time `db:"expires_at"`
}

func (t *PairingToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
