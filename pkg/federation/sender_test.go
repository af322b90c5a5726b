package federation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nodeweave/nodeweave/pkg/fedauth"
	"github.com/nodeweave/nodeweave/pkg/models"
	"github.com/nodeweave/nodeweave/pkg/store/storetest"
)

// receivingServer records inbound deliveries and verifies their signatures.
type receivingServer struct {
	mu        sync.Mutex
	secret    string
	failAll   bool
	endpoints []string
}

func (rs *receivingServer) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if !fedauth.Verify(rs.secret, body, r.Header.Get(fedauth.HeaderNodeSignature)) {
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}
		rs.mu.Lock()
		fail := rs.failAll
		if !fail {
			rs.endpoints = append(rs.endpoints, r.URL.Path)
		}
		rs.mu.Unlock()
		if fail {
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(StatusResponse{Status: StatusSuccess})
	})
}

func (rs *receivingServer) received() []string {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return append([]string{}, rs.endpoints...)
}

func (rs *receivingServer) setFailAll(fail bool) {
	rs.mu.Lock()
	rs.failAll = fail
	rs.mu.Unlock()
}

func enqueueBatch(t *testing.T, fakes *storetest.Fakes, target, batchID string, endpoints ...string) {
	t.Helper()
	items := make([]*models.OutboxItem, len(endpoints))
	for i, ep := range endpoints {
		items[i] = &models.OutboxItem{
			BatchID:        batchID,
			Seq:            i + 1,
			TargetHostname: target,
			Endpoint:       ep,
			Payload:        []byte(`{"cuid":"c1"}`),
			NextAttempt:    time.Now().Add(-time.Second),
		}
	}
	if err := fakes.Outbox.Enqueue(items); err != nil {
		t.Fatal(err)
	}
}

func TestSenderDeliversSigned(t *testing.T) {
	rs := &receivingServer{secret: "secret-b"}
	srv := httptest.NewServer(rs.handler())
	defer srv.Close()
	host := strings.TrimPrefix(srv.URL, "http://")

	stores, fakes := storetest.New()
	fakes.Nodes.AddConnected(host, "secret-b", models.ConnectionFull)
	client := NewClient("a.example", true, 5*time.Second)
	sender := NewSender(stores.Outbox, stores.Nodes, client, 3, time.Minute)

	enqueueBatch(t, fakes, host, "batch-1", EndpointReceivePost)
	sender.Drain(context.Background())

	if got := rs.received(); len(got) != 1 || got[0] != EndpointReceivePost {
		t.Fatalf("delivery not received: %v", got)
	}
	items := fakes.Outbox.Items()
	if items[0].Status != models.OutboxDelivered {
		t.Errorf("item status = %q, want delivered", items[0].Status)
	}
	if n, _ := stores.Outbox.PendingCount(); n != 0 {
		t.Errorf("pending count = %d", n)
	}
}

func TestSenderPreservesBatchOrder(t *testing.T) {
	rs := &receivingServer{secret: "secret-b"}
	srv := httptest.NewServer(rs.handler())
	defer srv.Close()
	host := strings.TrimPrefix(srv.URL, "http://")

	stores, fakes := storetest.New()
	fakes.Nodes.AddConnected(host, "secret-b", models.ConnectionFull)
	client := NewClient("a.example", true, 5*time.Second)
	sender := NewSender(stores.Outbox, stores.Nodes, client, 3, time.Minute)

	enqueueBatch(t, fakes, host, "batch-1", EndpointReceivePost, EndpointRemoveTag, EndpointDeletePost)
	sender.Drain(context.Background())

	got := rs.received()
	want := []string{EndpointReceivePost, EndpointRemoveTag, EndpointDeletePost}
	if len(got) != len(want) {
		t.Fatalf("received %d deliveries, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("delivery %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestSenderRetriesWithBackoff(t *testing.T) {
	rs := &receivingServer{secret: "secret-b", failAll: true}
	srv := httptest.NewServer(rs.handler())
	defer srv.Close()
	host := strings.TrimPrefix(srv.URL, "http://")

	stores, fakes := storetest.New()
	fakes.Nodes.AddConnected(host, "secret-b", models.ConnectionFull)
	client := NewClient("a.example", true, 5*time.Second)
	sender := NewSender(stores.Outbox, stores.Nodes, client, 5, time.Minute)

	enqueueBatch(t, fakes, host, "batch-1", EndpointReceivePost)

	before := time.Now()
	sender.Drain(context.Background())

	item := fakes.Outbox.Items()[0]
	if item.Status != models.OutboxPending {
		t.Fatalf("failed item should stay pending for retry, got %q", item.Status)
	}
	if item.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", item.Attempts)
	}
	if item.NextAttempt.Before(before.Add(50 * time.Second)) {
		t.Errorf("next attempt not pushed out by the base delay: %v", item.NextAttempt)
	}

	// Not due yet, so another drain must not hit the wire again.
	sender.Drain(context.Background())
	if item := fakes.Outbox.Items()[0]; item.Attempts != 1 {
		t.Errorf("drain retried an item before its backoff elapsed, attempts = %d", item.Attempts)
	}

	// Once it recovers and the item comes due, delivery succeeds.
	rs.setFailAll(false)
	fakes.Outbox.MarkFailed(item.ID, item.Attempts, time.Now().Add(-time.Second))
	sender.Drain(context.Background())
	if item := fakes.Outbox.Items()[0]; item.Status != models.OutboxDelivered {
		t.Errorf("recovered item not delivered: %q", item.Status)
	}
}

func TestSenderDeadLettersBatchTail(t *testing.T) {
	rs := &receivingServer{secret: "secret-b", failAll: true}
	srv := httptest.NewServer(rs.handler())
	defer srv.Close()
	host := strings.TrimPrefix(srv.URL, "http://")

	stores, fakes := storetest.New()
	fakes.Nodes.AddConnected(host, "secret-b", models.ConnectionFull)
	client := NewClient("a.example", true, 5*time.Second)
	// One attempt only: first failure dead-letters.
	sender := NewSender(stores.Outbox, stores.Nodes, client, 1, time.Minute)

	enqueueBatch(t, fakes, host, "batch-1", EndpointReceivePost, EndpointRemoveTag)
	sender.Drain(context.Background())

	for _, item := range fakes.Outbox.Items() {
		if item.Status != models.OutboxDead {
			t.Errorf("item seq %d status = %q, want dead; the batch tail must die with its head", item.Seq, item.Status)
		}
	}
}

func TestSenderDeadLettersRevokedTrust(t *testing.T) {
	stores, fakes := storetest.New()
	client := NewClient("a.example", true, time.Second)
	sender := NewSender(stores.Outbox, stores.Nodes, client, 3, time.Minute)

	// Enqueued while connected, trust revoked before delivery.
	enqueueBatch(t, fakes, "gone.example", "batch-1", EndpointReceivePost)
	sender.Drain(context.Background())

	if item := fakes.Outbox.Items()[0]; item.Status != models.OutboxDead {
		t.Errorf("delivery to revoked node should dead-letter, got %q", item.Status)
	}
}

func TestSenderIndependentBatchesProgress(t *testing.T) {
	rs := &receivingServer{secret: "secret-b"}
	srv := httptest.NewServer(rs.handler())
	defer srv.Close()
	host := strings.TrimPrefix(srv.URL, "http://")

	stores, fakes := storetest.New()
	fakes.Nodes.AddConnected(host, "secret-b", models.ConnectionFull)
	client := NewClient("a.example", true, 5*time.Second)
	sender := NewSender(stores.Outbox, stores.Nodes, client, 3, time.Hour)

	// One batch is stuck in backoff; the other must still deliver.
	enqueueBatch(t, fakes, host, "stuck", EndpointReceivePost)
	stuck := fakes.Outbox.Items()[0]
	fakes.Outbox.MarkFailed(stuck.ID, 1, time.Now().Add(time.Hour))
	enqueueBatch(t, fakes, host, "live", EndpointProfileUpdate)

	sender.Drain(context.Background())

	if got := rs.received(); len(got) != 1 || got[0] != EndpointProfileUpdate {
		t.Fatalf("independent batch did not progress: %v", got)
	}
}

func TestSenderBackloggedTargetDoesNotStarveOthers(t *testing.T) {
	rs := &receivingServer{secret: "secret-b"}
	srv := httptest.NewServer(rs.handler())
	defer srv.Close()
	host := strings.TrimPrefix(srv.URL, "http://")

	stores, fakes := storetest.New()
	fakes.Nodes.AddConnected("0.backlogged.example", "secret-0", models.ConnectionFull)
	fakes.Nodes.AddConnected(host, "secret-b", models.ConnectionFull)
	client := NewClient("a.example", true, 5*time.Second)
	sender := NewSender(stores.Outbox, stores.Nodes, client, 5, time.Hour)

	// More backed-off batches than fit in one read window, all for a node
	// that sorts before the reachable one. The one due batch must still go
	// out in a single drain.
	for i := 0; i < 40; i++ {
		items := []*models.OutboxItem{{
			BatchID:        fmt.Sprintf("backlog-%02d", i),
			Seq:            1,
			TargetHostname: "0.backlogged.example",
			Endpoint:       EndpointReceivePost,
			Payload:        []byte(`{"cuid":"c1"}`),
			NextAttempt:    time.Now().Add(time.Hour),
		}}
		if err := fakes.Outbox.Enqueue(items); err != nil {
			t.Fatal(err)
		}
	}
	enqueueBatch(t, fakes, host, "live", EndpointProfileUpdate)

	sender.Drain(context.Background())

	if got := rs.received(); len(got) != 1 || got[0] != EndpointProfileUpdate {
		t.Fatalf("due batch starved behind backed-off batches: %v", got)
	}
	if item := fakes.Outbox.Items()[40]; item.Status != models.OutboxDelivered {
		t.Errorf("due item status = %q, want delivered", item.Status)
	}
}
