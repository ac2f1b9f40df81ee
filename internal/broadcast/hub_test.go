package broadcast

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func hubServer(t *testing.T, h *Hub, companyID string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		h.Serve(companyID, conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForSubscribers(t *testing.T, h *Hub, companyID string, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for h.SubscriberCount(companyID) != n {
		if time.Now().After(deadline) {
			t.Fatalf("subscribers = %d, want %d", h.SubscriberCount(companyID), n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestPublishReachesCompanySubscribers(t *testing.T) {
	h := NewHub(nil)
	srv := hubServer(t, h, "co-1")
	conn := dial(t, srv)
	waitForSubscribers(t, h, "co-1", 1)

	h.Publish(StatusUpdate{
		AlbumID:     "alb-1",
		CompanyID:   "co-1",
		AlbumCode:   "AR-101",
		OldStatusID: 1,
		NewStatusID: 3,
		StatusCode:  "production",
	})

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got StatusUpdate
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.AlbumCode != "AR-101" || got.NewStatusID != 3 || got.StatusCode != "production" {
		t.Fatalf("update = %+v", got)
	}
}

func TestPublishScopedByCompany(t *testing.T) {
	h := NewHub(nil)
	srv := hubServer(t, h, "co-other")
	conn := dial(t, srv)
	waitForSubscribers(t, h, "co-other", 1)

	h.Publish(StatusUpdate{AlbumID: "alb-1", CompanyID: "co-1", StatusCode: "sent"})

	conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("update crossed company scope")
	}
}

func TestDisconnectRemovesSubscriber(t *testing.T) {
	h := NewHub(nil)
	srv := hubServer(t, h, "co-1")
	conn := dial(t, srv)
	waitForSubscribers(t, h, "co-1", 1)

	conn.Close()
	waitForSubscribers(t, h, "co-1", 0)

	// Publishing with nobody listening is fine.
	h.Publish(StatusUpdate{AlbumID: "alb-1", CompanyID: "co-1"})
}
