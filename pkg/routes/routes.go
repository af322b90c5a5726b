package routes

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gorilla/sessions"
	"github.com/nodeweave/nodeweave/pkg/config"
	"github.com/nodeweave/nodeweave/pkg/fedauth"
	"github.com/nodeweave/nodeweave/pkg/federation"
	"github.com/nodeweave/nodeweave/pkg/store"
)

const (
	sessionName = "nodeweave"
)

type WebRouter struct {
	config       config.Configuration
	storage      store.Stores
	sessionStore *sessions.CookieStore

	Pairing       *federation.Pairing
	Resolver      *federation.Resolver
	ViewerBroker  *federation.ViewerBroker
	Subscriptions *federation.Subscriptions
	Propagator    *federation.Propagator
	Directory     *federation.Directory
}

func (wr *WebRouter) getSession(r *http.Request) (*sessions.Session, error) {
	return wr.sessionStore.Get(r, sessionName)
}

// Initialize wires the router and blocks serving on the configured address.
func (wr *WebRouter) Initialize(cfg config.Configuration, stores store.Stores) error {
	wr.config = cfg
	wr.storage = stores
	wr.sessionStore = sessions.NewCookieStore([]byte(cfg.SessionSecret))

	return http.ListenAndServe(cfg.ListenAddr, wr.Handler())
}

// Handler builds the full middleware/router stack. Split from Initialize so
// tests can mount it on httptest servers.
func (wr *WebRouter) Handler() http.Handler {
	if wr.sessionStore == nil {
		wr.sessionStore = sessions.NewCookieStore([]byte(wr.config.SessionSecret))
	}
	myRouter := mux.NewRouter().StrictSlash(true)

	// Bootstrap endpoints: these run before any shared secret exists, so
	// they sit outside the node authenticator. initiate_pairing is guarded
	// by its single-use token instead.
	myRouter.HandleFunc(federation.EndpointInitiatePairing, wr.initiatePairing).Methods("POST")
	myRouter.HandleFunc(federation.EndpointTargetedSubscribe, wr.targetedSubscribe).Methods("POST")

	// Every other federation endpoint passes through the authenticator; a
	// handler only runs once the sender's signature has checked out.
	authenticator := &fedauth.NodeAuthenticator{Nodes: wr.storage.Nodes}
	fed := myRouter.PathPrefix("/federation/api/v1").Subrouter()
	fed.Use(authenticator.Middleware)
	fed.HandleFunc("/request_viewer_token", wr.requestViewerToken).Methods("POST")
	fed.HandleFunc("/receive_friend_request", wr.receiveFriendRequest).Methods("POST")
	fed.HandleFunc("/friend_request_response", wr.friendRequestResponse).Methods("POST")
	fed.HandleFunc("/unfriend", wr.receiveUnfriend).Methods("POST")
	fed.HandleFunc("/receive_group_join_request", wr.receiveGroupJoinRequest).Methods("POST")
	fed.HandleFunc("/group_membership_update", wr.groupMembershipUpdate).Methods("POST")
	fed.HandleFunc("/group_join_settings/{puid}", wr.groupJoinSettings).Methods("GET")
	fed.HandleFunc("/discover_users", wr.discoverUsers).Methods("GET")
	fed.HandleFunc("/discover_groups", wr.discoverGroups).Methods("GET")
	fed.HandleFunc("/receive_follow", wr.receiveFollow).Methods("POST")
	fed.HandleFunc("/receive_unfollow", wr.receiveUnfollow).Methods("POST")
	fed.HandleFunc("/receive_post", wr.receivePost).Methods("POST")
	fed.HandleFunc("/delete_post", wr.deletePost).Methods("POST")
	fed.HandleFunc("/profile_update", wr.profileUpdate).Methods("POST")
	fed.HandleFunc("/remove_tag", wr.removeTag).Methods("POST")

	// Admin surface for operating the trust store. The admin UI itself
	// lives elsewhere; these are its JSON contracts.
	myRouter.HandleFunc("/api/federation/pairing-token", wr.createPairingToken).Methods("POST")
	myRouter.HandleFunc("/api/federation/pair", wr.pairWithNode).Methods("POST")
	myRouter.HandleFunc("/api/federation/nodes", wr.listNodes).Methods("GET")
	myRouter.HandleFunc("/api/federation/nodes/{hostname}/nickname", wr.setNodeNickname).Methods("PUT")
	myRouter.HandleFunc("/api/federation/nodes/{hostname}/discover_users", wr.browseRemoteUsers).Methods("GET")
	myRouter.HandleFunc("/api/federation/nodes/{hostname}/discover_groups", wr.browseRemoteGroups).Methods("GET")
	myRouter.HandleFunc("/api/federation/nodes/{hostname}/group_join_settings/{puid}", wr.remoteGroupJoinSettings).Methods("GET")
	myRouter.HandleFunc("/api/federation/nodes/{hostname}", wr.deleteNode).Methods("DELETE")

	// Content routes redeem viewer tokens before the handler sees the
	// request.
	content := myRouter.PathPrefix("/profile").Subrouter()
	content.Use(wr.ViewerTokenMiddleware)
	content.HandleFunc("/{puid}", wr.profilePage).Methods("GET")

	myRouter.Use(handlers.ProxyHeaders)
	myRouter.Use(RequestLogger)
	h := handlers.RecoveryHandler()
	return h(myRouter)
}

func RequestLogger(h http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		slog.Info("endpoint hit", "method", r.Method, "path", r.URL.Path, "remote_host", r.RemoteAddr, "user_agent", r.UserAgent())
		h.ServeHTTP(w, r)
	}
	return http.HandlerFunc(fn)
}
