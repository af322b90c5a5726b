package models

import "time"

// Friend request status values.
const (
	FriendRequestPending  = "pending"
	FriendRequestAccepted = "accepted"
	FriendRequestRejected = "rejected"
)

// FriendRequest references entities by node-local id; puids are swapped in
// only at the wire boundary.
type FriendRequest struct {
	ID         int       `db:"id"`
	SenderID   int       `db:"sender_id"`
	ReceiverID int       `db:"receiver_id"`
	Status     string    `db:"status"`
	Created    time.Time `db:"created"`
}

// Group membership status values.
const (
	MembershipPending = "pending"
	MembershipActive  = "active"
	MembershipBanned  = "banned"
)

// Group membership roles.
const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

type GroupMembership struct {
	GroupID           int       `db:"group_id"`
	MemberID          int       `db:"member_id"`
	Role              string    `db:"role"`
	Status            string    `db:"status"`
	RulesAgreed       bool      `db:"rules_agreed"`
	QuestionResponses *string   `db:"question_responses"`
	Created           time.Time `db:"created"`
}

// GroupSettings holds a local group's join policy, served to remote nodes
// via the group_join_settings endpoint.
type GroupSettings struct {
	GroupID         int     `db:"group_id"`
	JoinRules       *string `db:"join_rules"`
	JoinRulesPublic bool    `db:"join_rules_public"`
	JoinQuestions   *string `db:"join_questions"`
}
