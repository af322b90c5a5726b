package store

import (
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/nodeweave/nodeweave/pkg/models"
)

type OutboxStore interface {
	// Enqueue stores an ordered batch of deliveries in one transaction.
	Enqueue(items []*models.OutboxItem) error
	// NextReady returns due pending items, at most one per (target, batch):
	// the lowest-seq pending item of each batch. A failing item therefore
	// holds back the rest of its batch, preserving per-batch order.
	NextReady(now time.Time, limit int) ([]*models.OutboxItem, error)
	MarkDelivered(id int64) error
	// MarkFailed schedules the next attempt.
	MarkFailed(id int64, attempts int, nextAttempt time.Time) error
	// MarkDead dead-letters an item and everything behind it in its batch.
	MarkDead(id int64) error
	PendingCount() (int, error)
}

type postgresOutboxStore struct {
	db *sqlx.DB
}

func NewOutbox(dbconn *sqlx.DB) OutboxStore {
	return &postgresOutboxStore{db: dbconn}
}

func (s *postgresOutboxStore) Enqueue(items []*models.OutboxItem) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return err
	}
	stmt := `
	INSERT INTO outbox (batch_id, seq, target_hostname, endpoint, payload, next_attempt)
	VALUES (:batch_id, :seq, :target_hostname, :endpoint, :payload, :next_attempt);
	`
	for _, item := range items {
		if item.NextAttempt.IsZero() {
			item.NextAttempt = time.Now()
		}
		if _, err := tx.NamedExec(stmt, item); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *postgresOutboxStore) NextReady(now time.Time, limit int) ([]*models.OutboxItem, error) {
	// The head of each (target, batch) is picked before the due check, so a
	// backed-off head still blocks its batch tail. The due filter and the
	// limit then apply to the heads only; heads in backoff never crowd due
	// batches for other targets out of the window.
	stmt := `
	SELECT * FROM (
		SELECT DISTINCT ON (o.target_hostname, o.batch_id) o.*
		FROM outbox o
		WHERE o.status = 'pending'
		ORDER BY o.target_hostname, o.batch_id, o.seq
	) heads
	WHERE heads.next_attempt <= $1
	ORDER BY heads.id
	LIMIT $2;
	`
	items := []*models.OutboxItem{}
	if err := s.db.Select(&items, stmt, now, limit); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *postgresOutboxStore) MarkDelivered(id int64) error {
	_, err := s.db.Exec(`UPDATE outbox SET status = 'delivered' WHERE id = $1;`, id)
	return err
}

func (s *postgresOutboxStore) MarkFailed(id int64, attempts int, nextAttempt time.Time) error {
	_, err := s.db.Exec(`UPDATE outbox SET attempts = $1, next_attempt = $2 WHERE id = $3;`, attempts, nextAttempt, id)
	return err
}

func (s *postgresOutboxStore) MarkDead(id int64) error {
	stmt := `
	UPDATE outbox
	SET status = 'dead'
	WHERE batch_id = (SELECT batch_id FROM outbox WHERE id = $1)
	  AND seq >= (SELECT seq FROM outbox WHERE id = $1)
	  AND status = 'pending';
	`
	_, err := s.db.Exec(stmt, id)
	return err
}

func (s *postgresOutboxStore) PendingCount() (int, error) {
	var count int
	err := s.db.Get(&count, `SELECT COUNT(*) FROM outbox WHERE status = 'pending';`)
	return count, err
}
