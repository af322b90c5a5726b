package federation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nodeweave/nodeweave/pkg/auth"
	"github.com/nodeweave/nodeweave/pkg/models"
	"github.com/nodeweave/nodeweave/pkg/store"
)

// LocalNuID derives this node's stable opaque identifier from its hostname.
// Remote nodes learn it during pairing and use it to recognize us later.
func LocalNuID(hostname string) string {
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte("nodeweave:"+hostname)).String()
}

// Pairing drives the handshake state machine on both sides:
// NONE -> PENDING -> CONNECTED, with FAILED reachable from PENDING.
type Pairing struct {
	localHostname string
	localNuID     string
	tokenTTL      time.Duration
	nodes         store.NodeStore
	tokens        store.PairingTokenStore
	client        *Client
}

func NewPairing(localHostname string, tokenTTL time.Duration, nodes store.NodeStore, tokens store.PairingTokenStore, client *Client) *Pairing {
	return &Pairing{
		localHostname: localHostname,
		localNuID:     LocalNuID(localHostname),
		tokenTTL:      tokenTTL,
		nodes:         nodes,
		tokens:        tokens,
		client:        client,
	}
}

func (p *Pairing) LocalNuID() string {
	return p.localNuID
}

// GenerateToken mints a single-use pairing token for the admin to hand to
// the operator of the node being paired with.
func (p *Pairing) GenerateToken(adminID int) (*models.PairingToken, error) {
	value, err := auth.NewPairingToken()
	if err != nil {
		return nil, err
	}
	token := &models.PairingToken{
		Token:     value,
		CreatedBy: adminID,
		ExpiresAt: time.Now().Add(p.tokenTTL),
	}
	if err := p.tokens.Create(token); err != nil {
		return nil, err
	}
	return token, nil
}

// Initiate performs the initiator half of the handshake. The pending Node
// row is inserted first so a second concurrent attempt to the same hostname
// fails up front. On transport failure the pending row stays behind; the
// admin must remove it before retrying.
func (p *Pairing) Initiate(ctx context.Context, remoteHostname, token string) (*models.Node, error) {
	if remoteHostname == p.localHostname {
		return nil, fmt.Errorf("cannot pair a node with itself")
	}
	if err := p.nodes.InsertPending(remoteHostname, models.ConnectionFull); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, ErrNodeExists
		}
		return nil, err
	}

	req := PairingRequest{
		Hostname: p.localHostname,
		Token:    token,
		NuID:     p.localNuID,
	}
	var resp PairingResponse
	if err := p.client.PostUnsigned(ctx, remoteHostname, EndpointInitiatePairing, req, &resp); err != nil {
		slog.Error("pairing initiation failed", "error", err, "remote", remoteHostname)
		return nil, err
	}
	if resp.SharedSecret == "" || resp.NuID == "" {
		p.nodes.SetStatus(remoteHostname, models.NodeStatusFailed)
		return nil, ErrMalformedResponse
	}

	if err := p.nodes.MarkConnected(remoteHostname, resp.SharedSecret, resp.NuID, models.ConnectionFull); err != nil {
		return nil, err
	}
	slog.Info("pairing established", "remote", remoteHostname, "nu_id", resp.NuID)
	return p.nodes.GetByHostname(remoteHostname)
}

// HandleInitiate performs the responder half: consume the token, mint the
// shared secret, persist the initiator's Node row as connected and return
// the secret. The token is consumed atomically with the handshake; a reused
// or expired token authorizes nothing.
func (p *Pairing) HandleInitiate(ctx context.Context, req PairingRequest) (*PairingResponse, error) {
	if req.Hostname == "" || req.Token == "" {
		return nil, ErrTokenInvalid
	}
	token, err := p.tokens.Consume(req.Token)
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, ErrTokenInvalid
	}
	if token.Expired(time.Now()) {
		return nil, ErrTokenExpired
	}

	secret, err := auth.NewSharedSecret()
	if err != nil {
		return nil, err
	}

	// An existing targeted row for this hostname is upgraded in place;
	// MarkConnected handles both cases with a single statement.
	if err := p.nodes.InsertPending(req.Hostname, models.ConnectionFull); err != nil && !errors.Is(err, store.ErrAlreadyExists) {
		return nil, err
	}
	if err := p.nodes.MarkConnected(req.Hostname, secret, req.NuID, models.ConnectionFull); err != nil {
		return nil, err
	}
	slog.Info("accepted pairing", "remote", req.Hostname, "nu_id", req.NuID)

	return &PairingResponse{
		SharedSecret: secret,
		NuID:         p.localNuID,
	}, nil
}
