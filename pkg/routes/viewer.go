package routes

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
)

// Session keys for the federated-viewer session. A federated viewer never
// holds local credentials; authorization for such a session branches on the
// viewer's puid, not on any local user row.
const (
	sessionKeyFederatedViewer = "federated_viewer"
	sessionKeyViewerPUID      = "viewer_puid"
	sessionKeyViewerSettings  = "viewer_settings"
)

// ViewerTokenMiddleware redeems a viewer_token query parameter into a
// federated-viewer session, then redirects to the same URL with the token
// stripped so it never lingers in history or referrer headers.
func (wr *WebRouter) ViewerTokenMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("viewer_token")
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		grant, ok := wr.ViewerBroker.Redeem(token)
		if ok {
			session, err := wr.getSession(r)
			if err == nil {
				session.Values[sessionKeyFederatedViewer] = true
				session.Values[sessionKeyViewerPUID] = grant.ViewerPUID
				session.Values[sessionKeyViewerSettings] = grant.Settings
				if err := session.Save(r, w); err != nil {
					slog.Error("error saving federated viewer session", "error", err)
				}
			}
		} else {
			slog.Warn("invalid or expired viewer token presented", "path", r.URL.Path)
		}

		// Redirect regardless of redemption outcome: the token must not
		// survive in the URL.
		redirect := *r.URL
		q := redirect.Query()
		q.Del("viewer_token")
		redirect.RawQuery = q.Encode()
		http.Redirect(w, r, redirect.String(), http.StatusFound)
	})
}

// FederatedViewer returns the acting viewer's puid when the session was
// established through a viewer token.
func (wr *WebRouter) FederatedViewer(r *http.Request) (string, bool) {
	session, err := wr.getSession(r)
	if err != nil {
		return "", false
	}
	isFederated, _ := session.Values[sessionKeyFederatedViewer].(bool)
	puid, _ := session.Values[sessionKeyViewerPUID].(string)
	if !isFederated || puid == "" {
		return "", false
	}
	return puid, true
}

type ProfileResponse struct {
	PUID               string  `json:"puid"`
	DisplayName        string  `json:"display_name"`
	ProfilePicturePath *string `json:"profile_picture_path,omitempty"`
	EntityType         string  `json:"entity_type"`
	ViewedAsFederated  bool    `json:"viewed_as_federated"`
	ViewerPUID         string  `json:"viewer_puid,omitempty"`
}

// profilePage is the minimal content route the viewer-token flow lands on.
// The full profile rendering lives in the web frontend; federation only
// needs the session branch to exist.
func (wr *WebRouter) profilePage(w http.ResponseWriter, r *http.Request) {
	puid := mux.Vars(r)["puid"]
	entity, err := wr.storage.Entities.GetByPUID(puid)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if entity == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	resp := ProfileResponse{
		PUID:               entity.PUID,
		DisplayName:        entity.DisplayName,
		ProfilePicturePath: entity.ProfilePicturePath,
		EntityType:         entity.EntityType,
	}
	if viewerPUID, ok := wr.FederatedViewer(r); ok {
		resp.ViewedAsFederated = true
		resp.ViewerPUID = viewerPUID
	}
	writeJSON(w, resp)
}
