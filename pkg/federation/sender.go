package federation

import (
	"context"
	"log/slog"
	"time"

	"github.com/nodeweave/nodeweave/pkg/models"
	"github.com/nodeweave/nodeweave/pkg/store"
)

const (
	senderPollInterval = time.Second
	senderBatchSize    = 32
	maxRetryDelay      = time.Hour
)

// Sender drains the outbox: one goroutine delivering due items with bounded
// exponential backoff. Failures never bubble anywhere near the request that
// caused the mutation; after the retry budget an item dead-letters together
// with the rest of its batch.
type Sender struct {
	outbox      store.OutboxStore
	nodes       store.NodeStore
	client      *Client
	maxAttempts int
	baseDelay   time.Duration
}

func NewSender(outbox store.OutboxStore, nodes store.NodeStore, client *Client, maxAttempts int, baseDelay time.Duration) *Sender {
	return &Sender{
		outbox:      outbox,
		nodes:       nodes,
		client:      client,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
	}
}

// Run delivers until ctx is cancelled.
func (s *Sender) Run(ctx context.Context) {
	ticker := time.NewTicker(senderPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Drain(ctx)
		}
	}
}

// Drain processes everything currently due. Exposed separately so tests can
// step the sender without the ticker.
func (s *Sender) Drain(ctx context.Context) {
	for {
		items, err := s.outbox.NextReady(time.Now(), senderBatchSize)
		if err != nil {
			slog.Error("error reading outbox", "error", err)
			return
		}
		if len(items) == 0 {
			return
		}
		for _, item := range items {
			if ctx.Err() != nil {
				return
			}
			s.deliver(ctx, item)
		}
	}
}

func (s *Sender) deliver(ctx context.Context, item *models.OutboxItem) {
	node, err := s.nodes.GetByHostname(item.TargetHostname)
	if err != nil {
		slog.Error("error loading target node", "error", err, "hostname", item.TargetHostname)
		return
	}
	if node == nil || !node.IsConnected() {
		// Trust was revoked after enqueue. Nothing to deliver with.
		slog.Warn("dead-lettering delivery to unconnected node", "hostname", item.TargetHostname, "endpoint", item.Endpoint)
		if err := s.outbox.MarkDead(item.ID); err != nil {
			slog.Error("error dead-lettering outbox item", "error", err, "id", item.ID)
		}
		return
	}

	var resp StatusResponse
	err = s.client.PostSignedRaw(ctx, node.Hostname, *node.SharedSecret, item.Endpoint, item.Payload, &resp)
	if err == nil {
		if err := s.outbox.MarkDelivered(item.ID); err != nil {
			slog.Error("error marking outbox item delivered", "error", err, "id", item.ID)
		}
		return
	}

	attempts := item.Attempts + 1
	if attempts >= s.maxAttempts {
		slog.Error("delivery exhausted retries, dead-lettering", "error", err,
			"hostname", item.TargetHostname, "endpoint", item.Endpoint, "attempts", attempts)
		if err := s.outbox.MarkDead(item.ID); err != nil {
			slog.Error("error dead-lettering outbox item", "error", err, "id", item.ID)
		}
		return
	}

	delay := s.baseDelay << (attempts - 1)
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	slog.Warn("delivery failed, will retry", "error", err,
		"hostname", item.TargetHostname, "endpoint", item.Endpoint, "attempts", attempts, "retry_in", delay)
	if err := s.outbox.MarkFailed(item.ID, attempts, time.Now().Add(delay)); err != nil {
		slog.Error("error rescheduling outbox item", "error", err, "id", item.ID)
	}
}
