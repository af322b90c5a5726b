package store

import (
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/nodeweave/nodeweave/pkg/models"
)

var selectPosts = `SELECT p.* FROM posts p`

type PostStore interface {
	GetByCUID(cuid string) (*models.Post, error)
	// Create inserts a locally authored post.
	Create(post *models.Post) error
	// UpsertRemote stores a post received over federation. Redelivery of the
	// same cuid is an update, never a duplicate. Last write wins.
	UpsertRemote(post *models.Post) error
	UpdateContent(cuid, content string) error
	DeleteByCUID(cuid string) error
	ListByAuthor(authorID int) ([]*models.Post, error)
	TagEntity(postID, entityID int) error
	// RemoveTag drops a tag/mention of the subject from a post, identified
	// by the stable cross-node pair (cuid, subject puid).
	RemoveTag(cuid, subjectPUID string) error
}

type postgresPostStore struct {
	db *sqlx.DB
}

func NewPosts(dbconn *sqlx.DB) PostStore {
	return &postgresPostStore{db: dbconn}
}

func (s *postgresPostStore) GetByCUID(cuid string) (*models.Post, error) {
	var p models.Post
	err := s.db.Get(&p, selectPosts+" WHERE p.cuid = $1;", cuid)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *postgresPostStore) Create(post *models.Post) error {
	stmt := `
	INSERT INTO posts (cuid, author_id, group_id, content, privacy)
	VALUES (:cuid, :author_id, :group_id, :content, :privacy)
	RETURNING id;
	`
	rows, err := s.db.NamedQuery(stmt, post)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return err
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&post.ID); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *postgresPostStore) UpsertRemote(post *models.Post) error {
	stmt := `
	INSERT INTO posts (cuid, author_id, group_id, content, privacy)
	VALUES (:cuid, :author_id, :group_id, :content, :privacy)
	ON CONFLICT (cuid)
	DO UPDATE SET
		content = EXCLUDED.content,
		privacy = EXCLUDED.privacy,
		updated = now()
	;`
	_, err := s.db.NamedExec(stmt, post)
	return err
}

func (s *postgresPostStore) UpdateContent(cuid, content string) error {
	_, err := s.db.Exec(`UPDATE posts SET content = $1, updated = $2 WHERE cuid = $3;`, content, time.Now(), cuid)
	return err
}

func (s *postgresPostStore) DeleteByCUID(cuid string) error {
	_, err := s.db.Exec(`DELETE FROM posts WHERE cuid = $1;`, cuid)
	return err
}

func (s *postgresPostStore) TagEntity(postID, entityID int) error {
	stmt := `
	INSERT INTO post_tags (post_id, entity_id)
	VALUES ($1, $2)
	ON CONFLICT (post_id, entity_id) DO NOTHING;
	`
	_, err := s.db.Exec(stmt, postID, entityID)
	return err
}

func (s *postgresPostStore) RemoveTag(cuid, subjectPUID string) error {
	stmt := `
	DELETE FROM post_tags t
	USING posts p, entities e
	WHERE t.post_id = p.id
	  AND t.entity_id = e.id
	  AND p.cuid = $1
	  AND e.puid = $2;
	`
	_, err := s.db.Exec(stmt, cuid, subjectPUID)
	return err
}

func (s *postgresPostStore) ListByAuthor(authorID int) ([]*models.Post, error) {
	posts := []*models.Post{}
	err := s.db.Select(&posts, selectPosts+" WHERE p.author_id = $1 ORDER BY p.created DESC;", authorID)
	if err == sql.ErrNoRows {
		return []*models.Post{}, nil
	}
	return posts, err
}
