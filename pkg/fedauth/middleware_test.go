package fedauth

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nodeweave/nodeweave/pkg/models"
)

type staticNodes struct {
	nodes map[string]*models.Node
}

func (s *staticNodes) GetByHostname(hostname string) (*models.Node, error) {
	return s.nodes[hostname], nil
}

func connectedNode(hostname, secret string) *models.Node {
	nuID := "nu-" + hostname
	return &models.Node{
		Hostname:       hostname,
		Status:         models.NodeStatusConnected,
		ConnectionType: models.ConnectionFull,
		SharedSecret:   &secret,
		NuID:           &nuID,
	}
}

func TestMiddlewareAcceptsValidSignature(t *testing.T) {
	auth := &NodeAuthenticator{Nodes: &staticNodes{nodes: map[string]*models.Node{
		"b.example": connectedNode("b.example", "topsecret"),
	}}}

	body := []byte(`{"cuid":"c1"}`)
	var sawNode *AuthenticatedNode
	var sawBody []byte
	handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawNode, _ = FromContext(r.Context())
		sawBody, _ = io.ReadAll(r.Body)
	}))

	req := httptest.NewRequest("POST", "/federation/api/v1/receive_post", bytes.NewReader(body))
	req.Header.Set(HeaderNodeHostname, "b.example")
	req.Header.Set(HeaderNodeSignature, Sign("topsecret", body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if sawNode == nil || sawNode.Hostname != "b.example" {
		t.Fatalf("handler did not receive authenticated node: %+v", sawNode)
	}
	if sawNode.NuID != "nu-b.example" {
		t.Errorf("nu_id not propagated: %q", sawNode.NuID)
	}
	if !bytes.Equal(sawBody, body) {
		t.Errorf("body not restored after verification: %q", sawBody)
	}
}

func TestMiddlewareRejections(t *testing.T) {
	auth := &NodeAuthenticator{Nodes: &staticNodes{nodes: map[string]*models.Node{
		"b.example": connectedNode("b.example", "topsecret"),
		"pending.example": {
			Hostname: "pending.example",
			Status:   models.NodeStatusPending,
		},
	}}}
	body := []byte(`{"cuid":"c1"}`)

	tests := []struct {
		name      string
		hostname  string
		signature string
	}{
		{"missing headers", "", ""},
		{"unknown node", "stranger.example", Sign("topsecret", body)},
		{"pending node", "pending.example", Sign("topsecret", body)},
		{"wrong secret", "b.example", Sign("wrong", body)},
		{"signature over different body", "b.example", Sign("topsecret", []byte(`{}`))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ran := false
			handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				ran = true
			}))
			req := httptest.NewRequest("POST", "/federation/api/v1/receive_post", bytes.NewReader(body))
			if tt.hostname != "" {
				req.Header.Set(HeaderNodeHostname, tt.hostname)
				req.Header.Set(HeaderNodeSignature, tt.signature)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", rec.Code)
			}
			if ran {
				t.Error("handler ran despite failed authentication")
			}
		})
	}
}

func TestMiddlewareSignedGet(t *testing.T) {
	auth := &NodeAuthenticator{Nodes: &staticNodes{nodes: map[string]*models.Node{
		"b.example": connectedNode("b.example", "topsecret"),
	}}}
	handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest("GET", "/federation/api/v1/discover_users", nil)
	req.Header.Set(HeaderNodeHostname, "b.example")
	req.Header.Set(HeaderNodeSignature, Sign("topsecret", nil))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("signed body-less GET rejected: %d", rec.Code)
	}
}
