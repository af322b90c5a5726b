package store

import (
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/nodeweave/nodeweave/pkg/models"
)

type PairingTokenStore interface {
	Create(token *models.PairingToken) error
	// Consume deletes the token and returns it in one statement, so a token
	// authorizes at most one handshake even under concurrent redemption.
	// Returns (nil, nil) when the token does not exist. Callers must still
	// check expiry on the returned token.
	Consume(token string) (*models.PairingToken, error)
	PurgeExpired(now time.Time) error
}

type postgresPairingTokenStore struct {
	db *sqlx.DB
}

func NewPairingTokens(dbconn *sqlx.DB) PairingTokenStore {
	return &postgresPairingTokenStore{db: dbconn}
}

func (s *postgresPairingTokenStore) Create(token *models.PairingToken) error {
	stmt := `
	INSERT INTO pairing_tokens (token, created_by, expires_at)
	VALUES (:token, :created_by, :expires_at);
	`
	_, err := s.db.NamedExec(stmt, token)
	return err
}

func (s *postgresPairingTokenStore) Consume(token string) (*models.PairingToken, error) {
	stmt := `DELETE FROM pairing_tokens WHERE token = $1 RETURNING token, created_by, expires_at;`
	var t models.PairingToken
	err := s.db.Get(&t, stmt, token)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *postgresPairingTokenStore) PurgeExpired(now time.Time) error {
	_, err := s.db.Exec(`DELETE FROM pairing_tokens WHERE expires_at < $1;`, now)
	return err
}
