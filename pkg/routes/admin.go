package routes

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/nodeweave/nodeweave/pkg/federation"
)

// Session key set by the (out of scope) admin login flow.
const sessionKeyAdminID = "admin_user_id"

// requireAdmin resolves the acting admin from the session. Federated-viewer
// sessions can never pass this check; they carry no local identity at all.
func (wr *WebRouter) requireAdmin(w http.ResponseWriter, r *http.Request) (int, bool) {
	session, err := wr.getSession(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return 0, false
	}
	adminID, ok := session.Values[sessionKeyAdminID].(int)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return 0, false
	}
	return adminID, true
}

type PairingTokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

func (wr *WebRouter) createPairingToken(w http.ResponseWriter, r *http.Request) {
	adminID, ok := wr.requireAdmin(w, r)
	if !ok {
		return
	}

	token, err := wr.Pairing.GenerateToken(adminID)
	if err != nil {
		slog.Error("error generating pairing token", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, PairingTokenResponse{
		Token:     token.Token,
		ExpiresAt: token.ExpiresAt.Format(time.RFC3339),
	})
}

type PairRequest struct {
	Hostname string `json:"hostname"`
	Token    string `json:"token"`
}

type PairResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Hostname string `json:"hostname,omitempty"`
	NuID     string `json:"nu_id,omitempty"`
}

// pairWithNode initiates the handshake with a remote node, using a token its
// admin issued there. Pairing is admin-facing, so the response carries the
// precise failure: bad token, timeout, already pending.
func (wr *WebRouter) pairWithNode(w http.ResponseWriter, r *http.Request) {
	if _, ok := wr.requireAdmin(w, r); !ok {
		return
	}
	var req PairRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Hostname == "" || req.Token == "" {
		http.Error(w, "hostname and token are required", http.StatusBadRequest)
		return
	}

	node, err := wr.Pairing.Initiate(r.Context(), req.Hostname, req.Token)
	switch {
	case errors.Is(err, federation.ErrNodeExists):
		w.WriteHeader(http.StatusConflict)
		writeJSON(w, PairResponse{Success: false, Message: err.Error()})
		return
	case errors.Is(err, federation.ErrMalformedResponse):
		w.WriteHeader(http.StatusBadGateway)
		writeJSON(w, PairResponse{Success: false, Message: err.Error()})
		return
	case err != nil:
		// Timeout or unreachable. The pending row stays behind; the admin
		// deletes it to retry.
		w.WriteHeader(http.StatusBadGateway)
		writeJSON(w, PairResponse{Success: false, Message: "could not reach remote node: " + err.Error()})
		return
	}

	resp := PairResponse{Success: true, Message: "pairing established", Hostname: node.Hostname}
	if node.NuID != nil {
		resp.NuID = *node.NuID
	}
	writeJSON(w, resp)
}

type NodeResponse struct {
	Hostname       string  `json:"hostname"`
	Status         string  `json:"status"`
	ConnectionType string  `json:"connection_type"`
	Nickname       *string `json:"nickname"`
	NuID           *string `json:"nu_id"`
	Created        string  `json:"created"`
}

func (wr *WebRouter) listNodes(w http.ResponseWriter, r *http.Request) {
	if _, ok := wr.requireAdmin(w, r); !ok {
		return
	}

	nodes, err := wr.storage.Nodes.GetAll()
	if err != nil {
		slog.Error("error listing nodes", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	resp := make([]NodeResponse, len(nodes))
	for i, n := range nodes {
		resp[i] = NodeResponse{
			Hostname:       n.Hostname,
			Status:         n.Status,
			ConnectionType: n.ConnectionType,
			Nickname:       n.Nickname,
			NuID:           n.NuID,
			Created:        n.Created.Format("2006-01-02 15:04:05"),
		}
	}
	writeJSON(w, map[string]any{"nodes": resp})
}

type SetNicknameRequest struct {
	Nickname string `json:"nickname"`
}

func (wr *WebRouter) setNodeNickname(w http.ResponseWriter, r *http.Request) {
	if _, ok := wr.requireAdmin(w, r); !ok {
		return
	}
	hostname := mux.Vars(r)["hostname"]
	var req SetNicknameRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := wr.storage.Nodes.SetNickname(hostname, req.Nickname); err != nil {
		slog.Error("error setting node nickname", "error", err, "hostname", hostname)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"success": true})
}

// browseRemoteUsers proxies a signed directory listing from a connected node
// so the admin UI can browse who lives there.
func (wr *WebRouter) browseRemoteUsers(w http.ResponseWriter, r *http.Request) {
	if _, ok := wr.requireAdmin(w, r); !ok {
		return
	}
	hostname := mux.Vars(r)["hostname"]

	users, err := wr.Directory.DiscoverUsers(r.Context(), hostname)
	switch {
	case errors.Is(err, federation.ErrNodeNotConnected):
		http.Error(w, "node is not connected", http.StatusConflict)
		return
	case err != nil:
		slog.Error("error discovering remote users", "error", err, "hostname", hostname)
		http.Error(w, "could not reach remote node", http.StatusBadGateway)
		return
	}
	writeJSON(w, federation.DiscoverUsersResponse{Users: users})
}

func (wr *WebRouter) browseRemoteGroups(w http.ResponseWriter, r *http.Request) {
	if _, ok := wr.requireAdmin(w, r); !ok {
		return
	}
	hostname := mux.Vars(r)["hostname"]

	groups, err := wr.Directory.DiscoverGroups(r.Context(), hostname)
	switch {
	case errors.Is(err, federation.ErrNodeNotConnected):
		http.Error(w, "node is not connected", http.StatusConflict)
		return
	case err != nil:
		slog.Error("error discovering remote groups", "error", err, "hostname", hostname)
		http.Error(w, "could not reach remote node", http.StatusBadGateway)
		return
	}
	writeJSON(w, federation.DiscoverGroupsResponse{Groups: groups})
}

// remoteGroupJoinSettings fetches a remote group's join policy so the join
// form can show its questions before a request is submitted.
func (wr *WebRouter) remoteGroupJoinSettings(w http.ResponseWriter, r *http.Request) {
	if _, ok := wr.requireAdmin(w, r); !ok {
		return
	}
	vars := mux.Vars(r)

	settings, err := wr.Directory.FetchGroupJoinSettings(r.Context(), vars["hostname"], vars["puid"])
	switch {
	case errors.Is(err, federation.ErrNodeNotConnected):
		http.Error(w, "node is not connected", http.StatusConflict)
		return
	case err != nil:
		slog.Error("error fetching group join settings", "error", err, "hostname", vars["hostname"], "group", vars["puid"])
		http.Error(w, "could not reach remote node", http.StatusBadGateway)
		return
	}
	writeJSON(w, settings)
}

// deleteNode severs all federation with a node: trust row gone, no further
// signed traffic accepted or sent. Stubs and relationship rows remain until
// their own lifecycles remove them.
func (wr *WebRouter) deleteNode(w http.ResponseWriter, r *http.Request) {
	if _, ok := wr.requireAdmin(w, r); !ok {
		return
	}
	hostname := mux.Vars(r)["hostname"]

	node, err := wr.storage.Nodes.GetByHostname(hostname)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if node == nil {
		http.Error(w, "no such node", http.StatusNotFound)
		return
	}

	if err := wr.storage.Nodes.Delete(hostname); err != nil {
		slog.Error("error deleting node", "error", err, "hostname", hostname)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	slog.Info("federation severed", "hostname", hostname, "was_status", node.Status)
	writeJSON(w, map[string]any{"success": true})
}
