package federation

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nodeweave/nodeweave/pkg/fedauth"
	"github.com/nodeweave/nodeweave/pkg/models"
	"github.com/nodeweave/nodeweave/pkg/store/storetest"
)

// directoryServer plays the remote node: it verifies the signed GET and
// serves canned directory responses.
func directoryServer(t *testing.T, secret string) (*httptest.Server, string) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc(EndpointDiscoverUsers, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if !fedauth.Verify(secret, body, r.Header.Get(fedauth.HeaderNodeSignature)) {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(DiscoverUsersResponse{Users: []models.EntityRef{
			{PUID: "puid-bob", EntityType: models.EntityTypeUser, DisplayName: "Bob", Hostname: "b.example"},
		}})
	})
	mux.HandleFunc(EndpointGroupJoinSettings+"/", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/puid-g") {
			http.Error(w, "no such group", http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(GroupJoinSettingsResponse{
			JoinRules:       "be kind",
			JoinRulesPublic: true,
			JoinQuestions:   `["why?"]`,
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, strings.TrimPrefix(srv.URL, "http://")
}

func TestDirectoryDiscoverUsers(t *testing.T) {
	_, remoteHost := directoryServer(t, "secret-b")
	stores, fakes := storetest.New()
	fakes.Nodes.AddConnected(remoteHost, "secret-b", models.ConnectionFull)

	dir := NewDirectory(stores.Nodes, NewClient("a.example", true, 5*time.Second))
	users, err := dir.DiscoverUsers(context.Background(), remoteHost)
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 1 || users[0].PUID != "puid-bob" {
		t.Fatalf("users = %+v, want the remote listing", users)
	}
}

func TestDirectoryFetchGroupJoinSettings(t *testing.T) {
	_, remoteHost := directoryServer(t, "secret-b")
	stores, fakes := storetest.New()
	fakes.Nodes.AddConnected(remoteHost, "secret-b", models.ConnectionFull)

	dir := NewDirectory(stores.Nodes, NewClient("a.example", true, 5*time.Second))
	settings, err := dir.FetchGroupJoinSettings(context.Background(), remoteHost, "puid-g")
	if err != nil {
		t.Fatal(err)
	}
	if settings.JoinRules != "be kind" || !settings.JoinRulesPublic {
		t.Fatalf("settings = %+v", settings)
	}

	if _, err := dir.FetchGroupJoinSettings(context.Background(), remoteHost, "puid-other"); err == nil {
		t.Fatal("expected an error for an unknown group")
	}
}

func TestDirectoryRequiresConnection(t *testing.T) {
	stores, _ := storetest.New()
	if err := stores.Nodes.InsertPending("p.example", models.ConnectionFull); err != nil {
		t.Fatal(err)
	}

	// A nil-transport client would panic on any outbound call; reaching it
	// means the connection check did not run first.
	dir := NewDirectory(stores.Nodes, nil)

	for _, hostname := range []string{"unknown.example", "p.example"} {
		if _, err := dir.DiscoverUsers(context.Background(), hostname); !errors.Is(err, ErrNodeNotConnected) {
			t.Errorf("DiscoverUsers(%q) err = %v, want ErrNodeNotConnected", hostname, err)
		}
		if _, err := dir.DiscoverGroups(context.Background(), hostname); !errors.Is(err, ErrNodeNotConnected) {
			t.Errorf("DiscoverGroups(%q) err = %v, want ErrNodeNotConnected", hostname, err)
		}
	}
}
