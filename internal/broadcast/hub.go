// Package broadcast delivers status updates to connected realtime
// subscribers. Delivery is best effort: connected subscribers get the
// message at least once, disconnected ones get nothing, there is no replay.
package broadcast

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// StatusUpdate is the wire payload published after an applied transition.
type StatusUpdate struct {
	AlbumID     string `json:"albumId"`
	ProjectID   string `json:"projectId"`
	CompanyID   string `json:"companyId"`
	AlbumCode   string `json:"albumCode"`
	AlbumName   string `json:"albumName"`
	OldStatusID int    `json:"oldStatusId"`
	NewStatusID int    `json:"newStatusId"`
	StatusCode  string `json:"statusCode"`
}

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 16
)

type subscriber struct {
	companyID string
	send      chan []byte
}

// Hub fans status updates out to subscribers scoped by company.
type Hub struct {
	log  *zap.Logger
	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		log:  log,
		subs: make(map[*subscriber]struct{}),
	}
}

// Publish sends the update to every subscriber of the update's company.
// Subscribers whose buffers are full are dropped rather than blocking the
// publisher.
func (h *Hub) Publish(u StatusUpdate) {
	data, err := json.Marshal(u)
	if err != nil {
		h.log.Error("marshal status update", zap.Error(err))
		return
	}
	h.mu.RLock()
	var stale []*subscriber
	for s := range h.subs {
		if s.companyID != u.CompanyID {
			continue
		}
		select {
		case s.send <- data:
		default:
			stale = append(stale, s)
		}
	}
	h.mu.RUnlock()
	for _, s := range stale {
		h.remove(s)
		h.log.Debug("dropped slow subscriber", zap.String("company_id", s.companyID))
	}
}

// SubscriberCount reports how many connections are registered for the
// company.
func (h *Hub) SubscriberCount(companyID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for s := range h.subs {
		if s.companyID == companyID {
			n++
		}
	}
	return n
}

// Serve registers the connection for the company and pumps messages until
// the peer goes away. It blocks; callers run it from the HTTP handler
// goroutine.
func (h *Hub) Serve(companyID string, conn *websocket.Conn) {
	s := &subscriber{companyID: companyID, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	defer func() {
		h.remove(s)
		conn.Close()
	}()

	done := make(chan struct{})
	go func() {
		// Reader discards inbound frames; the subscription is one-way.
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-s.send:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	if _, ok := h.subs[s]; ok {
		delete(h.subs, s)
		close(s.send)
	}
	h.mu.Unlock()
}
