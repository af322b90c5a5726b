package federation

import (
	"context"
	"errors"
	"log/slog"

	"github.com/nodeweave/nodeweave/pkg/auth"
	"github.com/nodeweave/nodeweave/pkg/models"
	"github.com/nodeweave/nodeweave/pkg/store"
)

// Subscriptions manages targeted trust: following a single remote page or
// joining a single remote group without full bidirectional pairing. A
// targeted node shares the Node row namespace with full connections, and a
// later full pairing upgrades the row in place.
type Subscriptions struct {
	localHostname string
	localNuID     string
	nodes         store.NodeStore
	client        *Client
}

func NewSubscriptions(localHostname string, nodes store.NodeStore, client *Client) *Subscriptions {
	return &Subscriptions{
		localHostname: localHostname,
		localNuID:     LocalNuID(localHostname),
		nodes:         nodes,
		client:        client,
	}
}

// GetOrCreate returns a connected Node row for hostname, performing the
// lightweight subscription handshake if no usable connection exists yet.
// An existing connection of either type is reused as-is.
func (s *Subscriptions) GetOrCreate(ctx context.Context, hostname, entityType, entityPUID string) (*models.Node, error) {
	node, err := s.nodes.GetByHostname(hostname)
	if err != nil {
		return nil, err
	}
	if node != nil && node.IsConnected() {
		return node, nil
	}
	if node == nil {
		if err := s.nodes.InsertPending(hostname, models.ConnectionTargeted); err != nil && !errors.Is(err, store.ErrAlreadyExists) {
			return nil, err
		}
	}

	req := SubscribeRequest{
		Hostname:   s.localHostname,
		NuID:       s.localNuID,
		EntityType: entityType,
		EntityPUID: entityPUID,
	}
	var resp PairingResponse
	if err := s.client.PostUnsigned(ctx, hostname, EndpointTargetedSubscribe, req, &resp); err != nil {
		slog.Error("targeted subscription handshake failed", "error", err, "remote", hostname)
		return nil, err
	}
	if resp.SharedSecret == "" || resp.NuID == "" {
		return nil, ErrMalformedResponse
	}

	if err := s.nodes.MarkConnected(hostname, resp.SharedSecret, resp.NuID, models.ConnectionTargeted); err != nil {
		return nil, err
	}
	slog.Info("targeted subscription established", "remote", hostname, "entity_puid", entityPUID)
	return s.nodes.GetByHostname(hostname)
}

// HandleSubscribe is the responder side. Narrow trust is granted without a
// pairing token, but only when the named entity is a local page or group
// somebody could legitimately subscribe to. An existing full connection is
// never downgraded.
func (s *Subscriptions) HandleSubscribe(ctx context.Context, req SubscribeRequest, entities store.EntityStore) (*PairingResponse, error) {
	if req.Hostname == "" || req.EntityPUID == "" {
		return nil, ErrTokenInvalid
	}
	entity, err := entities.GetByPUID(req.EntityPUID)
	if err != nil {
		return nil, err
	}
	if entity == nil || entity.IsRemote() {
		return nil, ErrLocalEntity
	}
	if entity.EntityType != models.EntityTypeGroup && entity.EntityType != models.EntityTypePage {
		return nil, ErrLocalEntity
	}

	existing, err := s.nodes.GetByHostname(req.Hostname)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.IsConnected() {
		// Already trusted; hand back the existing secret rather than
		// rotating it under an in-flight connection.
		return &PairingResponse{
			SharedSecret: *existing.SharedSecret,
			NuID:         s.localNuID,
		}, nil
	}

	secret, err := auth.NewSharedSecret()
	if err != nil {
		return nil, err
	}
	if err := s.nodes.InsertPending(req.Hostname, models.ConnectionTargeted); err != nil && !errors.Is(err, store.ErrAlreadyExists) {
		return nil, err
	}
	if err := s.nodes.MarkConnected(req.Hostname, secret, req.NuID, models.ConnectionTargeted); err != nil {
		return nil, err
	}
	slog.Info("accepted targeted subscription", "remote", req.Hostname, "entity_puid", req.EntityPUID)

	return &PairingResponse{
		SharedSecret: secret,
		NuID:         s.localNuID,
	}, nil
}
