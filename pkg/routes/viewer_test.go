package routes

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/nodeweave/nodeweave/pkg/models"
)

// noRedirectClient lets tests observe the redirect the token middleware
// issues instead of following it.
func noRedirectClient(srv *httptest.Server) *http.Client {
	c := *srv.Client()
	c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &c
}

func TestViewerTokenEstablishesSession(t *testing.T) {
	wr, fakes, srv := newTestRouter(t)
	fakes.Entities.AddLocal("puid-alice", models.EntityTypeUser, "Alice")

	token, err := wr.ViewerBroker.Issue("puid-bob", "puid-alice", "")
	if err != nil {
		t.Fatal(err)
	}

	client := noRedirectClient(srv)
	resp, err := client.Get(srv.URL + "/profile/puid-alice?viewer_token=" + token)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusFound {
		t.Fatalf("expected redirect, got %d", resp.StatusCode)
	}
	loc, err := url.Parse(resp.Header.Get("Location"))
	if err != nil {
		t.Fatal(err)
	}
	if loc.Query().Get("viewer_token") != "" {
		t.Errorf("token survived in redirect URL: %s", loc)
	}
	if loc.Path != "/profile/puid-alice" {
		t.Errorf("redirect path = %q", loc.Path)
	}
	cookies := resp.Cookies()
	if len(cookies) == 0 {
		t.Fatal("no session cookie set on redemption")
	}

	// Following the redirect with the session shows the federated view.
	req, _ := http.NewRequest("GET", srv.URL+loc.String(), nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	resp2, err := client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp2.Body.Close()
	var profile ProfileResponse
	if err := json.NewDecoder(resp2.Body).Decode(&profile); err != nil {
		t.Fatal(err)
	}
	if !profile.ViewedAsFederated || profile.ViewerPUID != "puid-bob" {
		t.Errorf("federated viewer session not applied: %+v", profile)
	}
}

func TestViewerTokenSingleUseOverHTTP(t *testing.T) {
	wr, fakes, srv := newTestRouter(t)
	fakes.Entities.AddLocal("puid-alice", models.EntityTypeUser, "Alice")

	token, err := wr.ViewerBroker.Issue("puid-bob", "puid-alice", "")
	if err != nil {
		t.Fatal(err)
	}
	client := noRedirectClient(srv)

	first, err := client.Get(srv.URL + "/profile/puid-alice?viewer_token=" + token)
	if err != nil {
		t.Fatal(err)
	}
	first.Body.Close()

	// Second redemption from a different browser: still redirected so the
	// token leaves the URL, but no session materializes.
	second, err := client.Get(srv.URL + "/profile/puid-alice?viewer_token=" + token)
	if err != nil {
		t.Fatal(err)
	}
	defer second.Body.Close()
	if second.StatusCode != http.StatusFound {
		t.Fatalf("expected redirect on reuse, got %d", second.StatusCode)
	}
	if len(second.Cookies()) != 0 {
		t.Error("reused token produced a session cookie")
	}
}

func TestProfileWithoutViewerSession(t *testing.T) {
	_, fakes, srv := newTestRouter(t)
	fakes.Entities.AddLocal("puid-alice", models.EntityTypeUser, "Alice")

	resp, err := srv.Client().Get(srv.URL + "/profile/puid-alice")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var profile ProfileResponse
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		t.Fatal(err)
	}
	if profile.ViewedAsFederated {
		t.Error("anonymous request marked as federated viewer")
	}
	if profile.DisplayName != "Alice" {
		t.Errorf("display name = %q", profile.DisplayName)
	}
}
