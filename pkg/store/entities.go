package store

import (
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/nodeweave/nodeweave/pkg/models"
)

var selectEntities = `SELECT e.* FROM entities e`

type EntityStore interface {
	GetByID(id int) (*models.Entity, error)
	GetByPUID(puid string) (*models.Entity, error)
	// CreateLocal inserts a locally owned entity (hostname NULL).
	CreateLocal(entity *models.Entity) error
	// ResolveStub finds or creates the stub row for a remote entity and
	// refreshes its display fields. The row's hostname is always the
	// entity's origin hostname from the ref, never the relaying node's.
	// Safe under concurrent callers: the insert upserts on the puid key.
	ResolveStub(ref models.EntityRef) (*models.Entity, error)
	// ListLocalByType lists local entities for discovery responses. Stubs
	// are never re-advertised to other nodes from here.
	ListLocalByType(entityType string) ([]*models.Entity, error)
	UpdateProfile(id int, displayName string, picturePath *string) error
}

type postgresEntityStore struct {
	db *sqlx.DB
}

func NewEntities(dbconn *sqlx.DB) EntityStore {
	return &postgresEntityStore{db: dbconn}
}

func (s *postgresEntityStore) GetByID(id int) (*models.Entity, error) {
	var e models.Entity
	err := s.db.Get(&e, selectEntities+" WHERE e.id = $1;", id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *postgresEntityStore) GetByPUID(puid string) (*models.Entity, error) {
	var e models.Entity
	err := s.db.Get(&e, selectEntities+" WHERE e.puid = $1;", puid)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *postgresEntityStore) CreateLocal(entity *models.Entity) error {
	stmt := `
	INSERT INTO entities (puid, entity_type, display_name, profile_picture_path)
	VALUES (:puid, :entity_type, :display_name, :profile_picture_path)
	RETURNING id;
	`
	rows, err := s.db.NamedQuery(stmt, entity)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return err
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&entity.ID); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *postgresEntityStore) ResolveStub(ref models.EntityRef) (*models.Entity, error) {
	// The WHERE clause keeps the upsert from ever touching a local row that
	// happens to share the puid; in that case nothing is returned and the
	// fallback select below surfaces the existing row.
	stmt := `
	INSERT INTO entities (puid, hostname, entity_type, display_name, profile_picture_path)
	VALUES ($1, $2, $3, $4, NULLIF($5, ''))
	ON CONFLICT (puid)
	DO UPDATE SET
		display_name = EXCLUDED.display_name,
		profile_picture_path = COALESCE(EXCLUDED.profile_picture_path, entities.profile_picture_path)
	WHERE entities.hostname IS NOT NULL
	RETURNING *;
	`
	var e models.Entity
	err := s.db.Get(&e, stmt, ref.PUID, ref.Hostname, ref.EntityType, ref.DisplayName, ref.ProfilePicturePath)
	if err == nil {
		return &e, nil
	}
	if err != sql.ErrNoRows && !isUniqueViolation(err) {
		return nil, err
	}
	// Conflict with a local row, or a concurrent resolver won the insert.
	// Re-read and return whatever is there.
	return s.GetByPUID(ref.PUID)
}

func (s *postgresEntityStore) ListLocalByType(entityType string) ([]*models.Entity, error) {
	entities := []*models.Entity{}
	err := s.db.Select(&entities, selectEntities+" WHERE e.hostname IS NULL AND e.entity_type = $1 ORDER BY e.display_name;", entityType)
	if err == sql.ErrNoRows {
		return []*models.Entity{}, nil
	}
	return entities, err
}

func (s *postgresEntityStore) UpdateProfile(id int, displayName string, picturePath *string) error {
	stmt := `
	UPDATE entities
	SET display_name = $1,
	    profile_picture_path = COALESCE($2, profile_picture_path)
	WHERE id = $3;
	`
	_, err := s.db.Exec(stmt, displayName, picturePath, id)
	return err
}
