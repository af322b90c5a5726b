package store

import (
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/nodeweave/nodeweave/pkg/models"
)

type FriendStore interface {
	GetRequest(senderID, receiverID int) (*models.FriendRequest, error)
	// UpsertRequest records a friend request idempotently; redelivery of the
	// same request updates status rather than appending a duplicate row.
	UpsertRequest(senderID, receiverID int, status string) error
	SetRequestStatus(senderID, receiverID int, status string) error
	DeleteRequest(senderID, receiverID int) error
	ListPendingReceived(receiverID int) ([]*models.FriendRequest, error)
	AddFriendship(aID, bID int) error
	RemoveFriendship(aID, bID int) error
	AreFriends(aID, bID int) (bool, error)
	// ListFriendHostnames returns the distinct home hostnames of a user's
	// confirmed remote friends, the fan-out target set for friends-privacy
	// posts.
	ListFriendHostnames(userID int) ([]string, error)
	// ListRelatedHostnames returns every hostname the user has any
	// relationship with (friends plus followed pages), used for profile
	// update broadcasts.
	ListRelatedHostnames(userID int) ([]string, error)
}

type postgresFriendStore struct {
	db *sqlx.DB
}

func NewFriends(dbconn *sqlx.DB) FriendStore {
	return &postgresFriendStore{db: dbconn}
}

func (s *postgresFriendStore) GetRequest(senderID, receiverID int) (*models.FriendRequest, error) {
	var fr models.FriendRequest
	err := s.db.Get(&fr, `SELECT * FROM friend_requests WHERE sender_id = $1 AND receiver_id = $2;`, senderID, receiverID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &fr, nil
}

func (s *postgresFriendStore) UpsertRequest(senderID, receiverID int, status string) error {
	stmt := `
	INSERT INTO friend_requests (sender_id, receiver_id, status)
	VALUES ($1, $2, $3)
	ON CONFLICT (sender_id, receiver_id)
	DO UPDATE SET status = EXCLUDED.status;
	`
	_, err := s.db.Exec(stmt, senderID, receiverID, status)
	return err
}

func (s *postgresFriendStore) SetRequestStatus(senderID, receiverID int, status string) error {
	_, err := s.db.Exec(`UPDATE friend_requests SET status = $1 WHERE sender_id = $2 AND receiver_id = $3;`, status, senderID, receiverID)
	return err
}

func (s *postgresFriendStore) DeleteRequest(senderID, receiverID int) error {
	_, err := s.db.Exec(`DELETE FROM friend_requests WHERE sender_id = $1 AND receiver_id = $2;`, senderID, receiverID)
	return err
}

func (s *postgresFriendStore) ListPendingReceived(receiverID int) ([]*models.FriendRequest, error) {
	reqs := []*models.FriendRequest{}
	err := s.db.Select(&reqs, `SELECT * FROM friend_requests WHERE receiver_id = $1 AND status = $2 ORDER BY created;`, receiverID, models.FriendRequestPending)
	if err == sql.ErrNoRows {
		return []*models.FriendRequest{}, nil
	}
	return reqs, err
}

func orderPair(aID, bID int) (int, int) {
	if aID < bID {
		return aID, bID
	}
	return bID, aID
}

func (s *postgresFriendStore) AddFriendship(aID, bID int) error {
	lo, hi := orderPair(aID, bID)
	stmt := `
	INSERT INTO friendships (user_lo_id, user_hi_id)
	VALUES ($1, $2)
	ON CONFLICT (user_lo_id, user_hi_id) DO NOTHING;
	`
	_, err := s.db.Exec(stmt, lo, hi)
	return err
}

func (s *postgresFriendStore) RemoveFriendship(aID, bID int) error {
	lo, hi := orderPair(aID, bID)
	_, err := s.db.Exec(`DELETE FROM friendships WHERE user_lo_id = $1 AND user_hi_id = $2;`, lo, hi)
	return err
}

func (s *postgresFriendStore) AreFriends(aID, bID int) (bool, error) {
	lo, hi := orderPair(aID, bID)
	var exists bool
	err := s.db.Get(&exists, `SELECT EXISTS(SELECT 1 FROM friendships WHERE user_lo_id = $1 AND user_hi_id = $2);`, lo, hi)
	return exists, err
}

func (s *postgresFriendStore) ListFriendHostnames(userID int) ([]string, error) {
	stmt := `
	SELECT DISTINCT e.hostname
	FROM friendships f
	JOIN entities e ON e.id = CASE WHEN f.user_lo_id = $1 THEN f.user_hi_id ELSE f.user_lo_id END
	WHERE (f.user_lo_id = $1 OR f.user_hi_id = $1)
	  AND e.hostname IS NOT NULL;
	`
	hostnames := []string{}
	err := s.db.Select(&hostnames, stmt, userID)
	if err == sql.ErrNoRows {
		return []string{}, nil
	}
	return hostnames, err
}

func (s *postgresFriendStore) ListRelatedHostnames(userID int) ([]string, error) {
	stmt := `
	SELECT DISTINCT e.hostname
	FROM friendships f
	JOIN entities e ON e.id = CASE WHEN f.user_lo_id = $1 THEN f.user_hi_id ELSE f.user_lo_id END
	WHERE (f.user_lo_id = $1 OR f.user_hi_id = $1) AND e.hostname IS NOT NULL
	UNION
	SELECT DISTINCT e.hostname
	FROM follows fo
	JOIN entities e ON e.id = fo.page_id
	WHERE fo.follower_id = $1 AND e.hostname IS NOT NULL;
	`
	hostnames := []string{}
	err := s.db.Select(&hostnames, stmt, userID)
	if err == sql.ErrNoRows {
		return []string{}, nil
	}
	return hostnames, err
}
