package routes

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/sessions"
	"github.com/nodeweave/nodeweave/pkg/config"
	"github.com/nodeweave/nodeweave/pkg/fedauth"
	"github.com/nodeweave/nodeweave/pkg/federation"
	"github.com/nodeweave/nodeweave/pkg/store/storetest"
)

const testHostname = "a.example"

func newTestRouter(t *testing.T) (*WebRouter, *storetest.Fakes, *httptest.Server) {
	t.Helper()
	stores, fakes := storetest.New()

	cfg := config.Configuration{
		NodeHostname:  testHostname,
		SessionSecret: "test-session-secret",
	}
	client := federation.NewClient(testHostname, true, 5*time.Second)
	wr := &WebRouter{
		config:        cfg,
		storage:       stores,
		sessionStore:  sessions.NewCookieStore([]byte(cfg.SessionSecret)),
		Pairing:       federation.NewPairing(testHostname, 15*time.Minute, stores.Nodes, stores.PairingTokens, client),
		Resolver:      federation.NewResolver(testHostname, stores.Entities),
		ViewerBroker:  federation.NewViewerBroker(time.Minute),
		Subscriptions: federation.NewSubscriptions(testHostname, stores.Nodes, client),
		Propagator:    federation.NewPropagator(testHostname, stores),
		Directory:     federation.NewDirectory(stores.Nodes, client),
	}

	srv := httptest.NewServer(wr.Handler())
	t.Cleanup(srv.Close)
	return wr, fakes, srv
}

// signedPost sends a federation POST signed the way a paired node would.
func signedPost(t *testing.T, srv *httptest.Server, fromHostname, secret, path string, payload any) *http.Response {
	t.Helper()
	body, err := fedauth.CanonicalBody(payload)
	if err != nil {
		t.Fatal(err)
	}
	req, err := http.NewRequest("POST", srv.URL+path, bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(fedauth.HeaderNodeHostname, fromHostname)
	req.Header.Set(fedauth.HeaderNodeSignature, fedauth.Sign(secret, body))
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func signedGet(t *testing.T, srv *httptest.Server, fromHostname, secret, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequest("GET", srv.URL+path, nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set(fedauth.HeaderNodeHostname, fromHostname)
	req.Header.Set(fedauth.HeaderNodeSignature, fedauth.Sign(secret, nil))
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decodeStatus(t *testing.T, resp *http.Response) federation.StatusResponse {
	t.Helper()
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var status federation.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatal(err)
	}
	return status
}

func wantStatus(t *testing.T, resp *http.Response, want string) federation.StatusResponse {
	t.Helper()
	status := decodeStatus(t, resp)
	if status.Status != want {
		t.Fatalf("status = %q (%s), want %q", status.Status, status.Message, want)
	}
	return status
}

// adminCookie builds a session cookie carrying an admin identity, standing in
// for the out-of-scope login flow.
func adminCookie(t *testing.T, wr *WebRouter, adminID int) *http.Cookie {
	t.Helper()
	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()
	session, err := wr.sessionStore.Get(req, sessionName)
	if err != nil {
		t.Fatal(err)
	}
	session.Values[sessionKeyAdminID] = adminID
	if err := session.Save(req, rec); err != nil {
		t.Fatal(err)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("no session cookie produced")
	}
	return cookies[0]
}
