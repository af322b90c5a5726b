package models

import "time"

// Post privacy levels. The privacy level decides the propagation target set
// when a post is distributed.
const (
	PrivacyPublic  = "public"
	PrivacyFriends = "friends"
	PrivacyGroup   = "group"
)

// Post is a locally stored post, authored locally or received from a remote
// node. CUID is the globally stable content identifier; remote deliveries of
// the same CUID are upserts, never duplicates.
type Post struct {
	ID       int       `db:"id"`
	CUID     string    `db:"cuid"`
	AuthorID int       `db:"author_id"`
	GroupID  *int      `db:"group_id"`
	Content  string    `db:"content"`
	Privacy  string    `db:"privacy"`
	Created  time.Time `db:"created"`
	Updated  time.Time `db:"updated"`
}
