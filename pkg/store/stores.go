package store

import "github.com/jmoiron/sqlx"

// Stores bundles every table-level store the server uses.
type Stores struct {
	Nodes         NodeStore
	PairingTokens PairingTokenStore
	Entities      EntityStore
	Friends       FriendStore
	Follows       FollowStore
	Groups        GroupStore
	Posts         PostStore
	Outbox        OutboxStore
}

func NewStores(db *sqlx.DB) Stores {
	return Stores{
		Nodes:         NewNodes(db),
		PairingTokens: NewPairingTokens(db),
		Entities:      NewEntities(db),
		Friends:       NewFriends(db),
		Follows:       NewFollows(db),
		Groups:        NewGroups(db),
		Posts:         NewPosts(db),
		Outbox:        NewOutbox(db),
	}
}
