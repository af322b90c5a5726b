package store

import (
	"database/sql"

	"github.com/jmoiron/sqlx"
)

type FollowStore interface {
	AddFollow(pageID, followerID int) error
	RemoveFollow(pageID, followerID int) error
	IsFollowing(pageID, followerID int) (bool, error)
	// ListFollowerHostnames returns the distinct home hostnames of a page's
	// remote followers.
	ListFollowerHostnames(pageID int) ([]string, error)
}

type postgresFollowStore struct {
	db *sqlx.DB
}

func NewFollows(dbconn *sqlx.DB) FollowStore {
	return &postgresFollowStore{db: dbconn}
}

func (s *postgresFollowStore) AddFollow(pageID, followerID int) error {
	stmt := `
	INSERT INTO follows (page_id, follower_id)
	VALUES ($1, $2)
	ON CONFLICT (page_id, follower_id) DO NOTHING;
	`
	_, err := s.db.Exec(stmt, pageID, followerID)
	return err
}

func (s *postgresFollowStore) RemoveFollow(pageID, followerID int) error {
	_, err := s.db.Exec(`DELETE FROM follows WHERE page_id = $1 AND follower_id = $2;`, pageID, followerID)
	return err
}

func (s *postgresFollowStore) IsFollowing(pageID, followerID int) (bool, error) {
	var exists bool
	err := s.db.Get(&exists, `SELECT EXISTS(SELECT 1 FROM follows WHERE page_id = $1 AND follower_id = $2);`, pageID, followerID)
	return exists, err
}

func (s *postgresFollowStore) ListFollowerHostnames(pageID int) ([]string, error) {
	stmt := `
	SELECT DISTINCT e.hostname
	FROM follows f
	JOIN entities e ON e.id = f.follower_id
	WHERE f.page_id = $1 AND e.hostname IS NOT NULL;
	`
	hostnames := []string{}
	err := s.db.Select(&hostnames, stmt, pageID)
	if err == sql.ErrNoRows {
		return []string{}, nil
	}
	return hostnames, err
}
