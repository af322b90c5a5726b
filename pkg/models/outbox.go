package models

import "time"

// Outbox item status values.
const (
	OutboxPending   = "pending"
	OutboxDelivered = "delivered"
	OutboxDead      = "dead"
)

// OutboxItem is one queued federation delivery. Items sharing a BatchID are
// delivered to their target strictly in Seq order; a failed item blocks the
// rest of its batch until it succeeds or dead-letters.
type OutboxItem struct {
	ID             int64     `db:"id"`
	BatchID        string    `db:"batch_id"`
	Seq            int       `db:"seq"`
	TargetHostname string    `db:"target_hostname"`
	Endpoint       string    `db:"endpoint"`
	Payload        []byte    `db:"payload"`
	Attempts       int       `db:"attempts"`
	NextAttempt    time.Time `db:"next_attempt"`
	Status         string    `db:"status"`
	Created        time.Time `db:"created"`
}
