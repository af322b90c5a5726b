package models

import "time"

// Node status values.
const (
	NodeStatusPending   = "pending"
	NodeStatusConnected = "connected"
	NodeStatusFailed    = "failed"
)

// Node connection types.
const (
	ConnectionFull = "full"
	// ConnectionTargeted is a narrow trust relationship covering a single
	// remote entity (a followed page, a joined group). Targeted nodes are
	// excluded from broadcast fan-out.
	ConnectionTargeted = "targeted"
)

// Node is one remote instance this node has paired or subscribed with.
// A hostname has at most one row regardless of connection type; upgrading a
// targeted subscription to a full pairing mutates status in place.
type Node struct {
	ID             int       `db:"id"`
	Hostname       string    `db:"hostname"`
	SharedSecret   *string   `db:"shared_secret"`
	Status         string    `db:"status"`
	NuID           *string   `db:"nu_id"`
	Nickname       *string   `db:"nickname"`
	ConnectionType string    `db:"connection_type"`
	Created        time.Time `db:"created"`
}

// IsConnected reports whether the trust anchor for this node is usable.
// shared_secret is non-null iff status is connected.
func (n *Node) IsConnected() bool {
	return n.Status == NodeStatusConnected && n.SharedSecret != nil && *n.SharedSecret != ""
}
