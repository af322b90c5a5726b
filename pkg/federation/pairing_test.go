package federation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nodeweave/nodeweave/pkg/models"
	"github.com/nodeweave/nodeweave/pkg/store/storetest"
)

// responderServer mounts a responder-side pairing handler the way the web
// router does, on a loopback listener the insecure client can reach.
func responderServer(t *testing.T, responder *Pairing) (*httptest.Server, string) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != EndpointInitiatePairing {
			http.NotFound(w, r)
			return
		}
		var req PairingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request", http.StatusBadRequest)
			return
		}
		resp, err := responder.HandleInitiate(r.Context(), req)
		if errors.Is(err, ErrTokenExpired) || errors.Is(err, ErrTokenInvalid) {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		if err != nil {
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv, strings.TrimPrefix(srv.URL, "http://")
}

func TestPairingHandshake(t *testing.T) {
	aStores, _ := storetest.New()
	bStores, _ := storetest.New()

	responder := NewPairing("b.example", 15*time.Minute, bStores.Nodes, bStores.PairingTokens, nil)
	_, bHost := responderServer(t, responder)

	client := NewClient("a.example", true, 5*time.Second)
	initiator := NewPairing("a.example", 15*time.Minute, aStores.Nodes, aStores.PairingTokens, client)

	token, err := responder.GenerateToken(1)
	if err != nil {
		t.Fatal(err)
	}

	node, err := initiator.Initiate(context.Background(), bHost, token.Token)
	if err != nil {
		t.Fatalf("handshake failed: %v", err)
	}
	if !node.IsConnected() {
		t.Fatalf("initiator row not connected: %+v", node)
	}
	if node.ConnectionType != models.ConnectionFull {
		t.Errorf("expected full connection, got %s", node.ConnectionType)
	}
	if node.NuID == nil || *node.NuID != LocalNuID("b.example") {
		t.Errorf("initiator did not record responder nu_id: %v", node.NuID)
	}

	// The responder recorded the initiator under its declared hostname, with
	// the same shared secret.
	bRow, err := bStores.Nodes.GetByHostname("a.example")
	if err != nil {
		t.Fatal(err)
	}
	if bRow == nil || !bRow.IsConnected() {
		t.Fatalf("responder row not connected: %+v", bRow)
	}
	if *bRow.SharedSecret != *node.SharedSecret {
		t.Error("the two sides hold different shared secrets")
	}
	if bRow.NuID == nil || *bRow.NuID != LocalNuID("a.example") {
		t.Errorf("responder did not record initiator nu_id: %v", bRow.NuID)
	}
}

func TestPairingTokenSingleUse(t *testing.T) {
	bStores, _ := storetest.New()
	responder := NewPairing("b.example", 15*time.Minute, bStores.Nodes, bStores.PairingTokens, nil)

	token, err := responder.GenerateToken(1)
	if err != nil {
		t.Fatal(err)
	}
	req := PairingRequest{Hostname: "a.example", Token: token.Token, NuID: "nu-a"}
	if _, err := responder.HandleInitiate(context.Background(), req); err != nil {
		t.Fatalf("first redemption failed: %v", err)
	}

	req.Hostname = "c.example"
	if _, err := responder.HandleInitiate(context.Background(), req); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("second redemption should fail with ErrTokenInvalid, got %v", err)
	}
}

func TestPairingTokenExpired(t *testing.T) {
	bStores, fakes := storetest.New()
	responder := NewPairing("b.example", 15*time.Minute, bStores.Nodes, bStores.PairingTokens, nil)

	fakes.Tokens.Create(&models.PairingToken{
		Token:     "stale00000000000000000000000000ff",
		CreatedBy: 1,
		ExpiresAt: time.Now().Add(-time.Minute),
	})

	req := PairingRequest{Hostname: "a.example", Token: "stale00000000000000000000000000ff", NuID: "nu-a"}
	if _, err := responder.HandleInitiate(context.Background(), req); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("expected ErrTokenExpired, got %v", err)
	}
	if node, _ := bStores.Nodes.GetByHostname("a.example"); node != nil && node.IsConnected() {
		t.Error("expired token must not establish a connection")
	}
}

func TestPairingDuplicateInitiate(t *testing.T) {
	aStores, _ := storetest.New()
	client := NewClient("a.example", true, time.Second)
	initiator := NewPairing("a.example", 15*time.Minute, aStores.Nodes, aStores.PairingTokens, client)

	aStores.Nodes.InsertPending("b.example", models.ConnectionFull)

	if _, err := initiator.Initiate(context.Background(), "b.example", "sometoken"); !errors.Is(err, ErrNodeExists) {
		t.Errorf("expected ErrNodeExists for duplicate initiation, got %v", err)
	}
}

func TestPairingSelfPairRejected(t *testing.T) {
	aStores, _ := storetest.New()
	client := NewClient("a.example", true, time.Second)
	initiator := NewPairing("a.example", 15*time.Minute, aStores.Nodes, aStores.PairingTokens, client)

	if _, err := initiator.Initiate(context.Background(), "a.example", "sometoken"); err == nil {
		t.Error("pairing a node with itself should fail")
	}
	if node, _ := aStores.Nodes.GetByHostname("a.example"); node != nil {
		t.Error("self-pair attempt must not leave a node row")
	}
}

func TestPairingMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()
	host := strings.TrimPrefix(srv.URL, "http://")

	aStores, _ := storetest.New()
	client := NewClient("a.example", true, time.Second)
	initiator := NewPairing("a.example", 15*time.Minute, aStores.Nodes, aStores.PairingTokens, client)

	if _, err := initiator.Initiate(context.Background(), host, "sometoken"); !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
	node, _ := aStores.Nodes.GetByHostname(host)
	if node == nil || node.Status != models.NodeStatusFailed {
		t.Errorf("malformed handshake should mark the row failed: %+v", node)
	}
}

func TestPairingTransportFailureLeavesPendingRow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	host := strings.TrimPrefix(srv.URL, "http://")
	srv.Close()

	aStores, _ := storetest.New()
	client := NewClient("a.example", true, time.Second)
	initiator := NewPairing("a.example", 15*time.Minute, aStores.Nodes, aStores.PairingTokens, client)

	if _, err := initiator.Initiate(context.Background(), host, "sometoken"); err == nil {
		t.Fatal("expected transport error")
	}
	node, _ := aStores.Nodes.GetByHostname(host)
	if node == nil || node.Status != models.NodeStatusPending {
		t.Errorf("transport failure should leave the pending row for the admin: %+v", node)
	}

	// A retry without cleaning up hits the guard, not the network.
	if _, err := initiator.Initiate(context.Background(), host, "sometoken"); !errors.Is(err, ErrNodeExists) {
		t.Errorf("retry should report the existing pending row, got %v", err)
	}
}

func TestLocalNuIDStable(t *testing.T) {
	if LocalNuID("a.example") != LocalNuID("a.example") {
		t.Error("nu_id must be stable across restarts")
	}
	if LocalNuID("a.example") == LocalNuID("b.example") {
		t.Error("different hostnames must derive different nu_ids")
	}
}
