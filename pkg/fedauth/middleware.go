package fedauth

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/nodeweave/nodeweave/pkg/models"
)

// NodeSource is the slice of the trust store the authenticator needs.
type NodeSource interface {
	GetByHostname(hostname string) (*models.Node, error)
}

// AuthenticatedNode identifies the remote node a verified request came from.
// Handlers behind the authenticator receive it from the request context
// instead of re-checking headers and signatures themselves.
type AuthenticatedNode struct {
	Hostname       string
	NuID           string
	ConnectionType string
}

type contextKey struct{}

// FromContext returns the authenticated sender, if the request passed
// through the authenticator.
func FromContext(ctx context.Context) (*AuthenticatedNode, bool) {
	n, ok := ctx.Value(contextKey{}).(*AuthenticatedNode)
	return n, ok
}

const maxBodyBytes = 1 << 20

// NodeAuthenticator verifies the signature on every inbound federation
// request before the wrapped handler runs. A bad or missing signature is a
// terminal rejection: no handler code executes and no state is mutated.
type NodeAuthenticator struct {
	Nodes NodeSource
}

func (a *NodeAuthenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hostname := r.Header.Get(HeaderNodeHostname)
		signature := r.Header.Get(HeaderNodeSignature)
		if hostname == "" || signature == "" {
			http.Error(w, "missing federation headers", http.StatusUnauthorized)
			return
		}

		node, err := a.Nodes.GetByHostname(hostname)
		if err != nil {
			slog.Error("error loading node for authentication", "error", err, "hostname", hostname)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		if node == nil || !node.IsConnected() {
			slog.Warn("federation request from unknown or unconnected node", "hostname", hostname)
			http.Error(w, "unknown node", http.StatusUnauthorized)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			http.Error(w, "error reading request body", http.StatusBadRequest)
			return
		}
		r.Body.Close()

		if !Verify(*node.SharedSecret, body, signature) {
			slog.Warn("federation signature mismatch", "hostname", hostname, "path", r.URL.Path)
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}

		// Hand the verified bytes back to the handler.
		r.Body = io.NopCloser(bytes.NewReader(body))

		authed := &AuthenticatedNode{
			Hostname:       node.Hostname,
			ConnectionType: node.ConnectionType,
		}
		if node.NuID != nil {
			authed.NuID = *node.NuID
		}
		ctx := context.WithValue(r.Context(), contextKey{}, authed)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
