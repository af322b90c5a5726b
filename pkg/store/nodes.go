package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/nodeweave/nodeweave/pkg/models"
)

// ErrAlreadyExists is returned when an insert hits a uniqueness constraint,
// e.g. a second pairing attempt to a hostname that already has a Node row.
var ErrAlreadyExists = errors.New("row already exists")

var selectNodes = `SELECT n.* FROM nodes n`

type NodeStore interface {
	GetByHostname(hostname string) (*models.Node, error)
	GetAll() ([]*models.Node, error)
	// GetConnected lists connected nodes. Targeted-only nodes are excluded
	// unless includeTargeted is set; broadcast fan-out must not reach nodes
	// that were only ever granted narrow trust.
	GetConnected(includeTargeted bool) ([]*models.Node, error)
	// InsertPending creates the row guarding against duplicate concurrent
	// pairing attempts. Returns ErrAlreadyExists if the hostname is taken.
	InsertPending(hostname, connectionType string) error
	// MarkConnected stores the trust anchor. It upgrades a targeted row to
	// full in the same statement, atomically with respect to concurrent
	// secret reads.
	MarkConnected(hostname, sharedSecret, nuID, connectionType string) error
	SetStatus(hostname, status string) error
	SetNickname(hostname, nickname string) error
	Delete(hostname string) error
}

type postgresNodeStore struct {
	db *sqlx.DB
	// secretCache avoids a trust-store query per outbound delivery.
	secretCache *ttlcache.Cache[string, *models.Node]
}

func NewNodes(dbconn *sqlx.DB) NodeStore {
	cache := ttlcache.New[string, *models.Node](
		ttlcache.WithTTL[string, *models.Node](5 * time.Minute),
	)
	go cache.Start()
	return &postgresNodeStore{
		db:          dbconn,
		secretCache: cache,
	}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func (s *postgresNodeStore) GetByHostname(hostname string) (*models.Node, error) {
	if cached := s.secretCache.Get(hostname); cached != nil {
		return cached.Value(), nil
	}
	var node models.Node
	err := s.db.Get(&node, selectNodes+" WHERE n.hostname = $1;", hostname)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.secretCache.Set(hostname, &node, ttlcache.DefaultTTL)
	return &node, nil
}

func (s *postgresNodeStore) GetAll() ([]*models.Node, error) {
	nodes := []*models.Node{}
	err := s.db.Select(&nodes, selectNodes+" ORDER BY n.hostname;")
	if err == sql.ErrNoRows {
		return []*models.Node{}, nil
	}
	return nodes, err
}

func (s *postgresNodeStore) GetConnected(includeTargeted bool) ([]*models.Node, error) {
	stmt := selectNodes + " WHERE n.status = $1"
	args := []any{models.NodeStatusConnected}
	if !includeTargeted {
		stmt += " AND n.connection_type = $2"
		args = append(args, models.ConnectionFull)
	}
	nodes := []*models.Node{}
	err := s.db.Select(&nodes, stmt+" ORDER BY n.hostname;", args...)
	if err == sql.ErrNoRows {
		return []*models.Node{}, nil
	}
	return nodes, err
}

func (s *postgresNodeStore) InsertPending(hostname, connectionType string) error {
	stmt := `
	INSERT INTO nodes (hostname, status, connection_type)
	VALUES ($1, $2, $3);
	`
	_, err := s.db.Exec(stmt, hostname, models.NodeStatusPending, connectionType)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	return err
}

func (s *postgresNodeStore) MarkConnected(hostname, sharedSecret, nuID, connectionType string) error {
	stmt := `
	UPDATE nodes
	SET shared_secret = $1,
	    nu_id = $2,
	    status = $3,
	    connection_type = CASE WHEN connection_type = 'full' THEN 'full' ELSE $4 END
	WHERE hostname = $5;
	`
	_, err := s.db.Exec(stmt, sharedSecret, nuID, models.NodeStatusConnected, connectionType, hostname)
	if err == nil {
		s.secretCache.Delete(hostname)
	}
	return err
}

func (s *postgresNodeStore) SetStatus(hostname, status string) error {
	_, err := s.db.Exec(`UPDATE nodes SET status = $1 WHERE hostname = $2;`, status, hostname)
	if err == nil {
		s.secretCache.Delete(hostname)
	}
	return err
}

func (s *postgresNodeStore) SetNickname(hostname, nickname string) error {
	_, err := s.db.Exec(`UPDATE nodes SET nickname = $1 WHERE hostname = $2;`, nickname, hostname)
	if err == nil {
		s.secretCache.Delete(hostname)
	}
	return err
}

func (s *postgresNodeStore) Delete(hostname string) error {
	_, err := s.db.Exec(`DELETE FROM nodes WHERE hostname = $1;`, hostname)
	if err == nil {
		s.secretCache.Delete(hostname)
	}
	return err
}
