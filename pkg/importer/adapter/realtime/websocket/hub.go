// Package websocket pushes job progress to browsers subscribed to a job.
package websocket

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	model "github.com/tigerroll/payroll-import/pkg/importer/core/domain/model"
	"github.com/tigerroll/payroll-import/pkg/importer/core/ports"
	"github.com/tigerroll/payroll-import/pkg/importer/support/util/logger"
)

const (
	sendBuffer   = 16
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = pongTimeout * 9 / 10
)

type subscriber struct {
	jobID string
	conn  *websocket.Conn
	send  chan model.ProgressUpdate
	once  sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.send) })
}

// Hub keeps the subscribers of every job and fans progress updates out to them.
type Hub struct {
	upgrader websocket.Upgrader

	mu   sync.RWMutex
	subs map[string]map[*subscriber]struct{}
}

// NewHub creates a Hub. An empty or "*" allowedOrigin accepts any origin.
func NewHub(allowedOrigin string) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if allowedOrigin == "" || allowedOrigin == "*" {
					return true
				}
				return r.Header.Get("Origin") == allowedOrigin
			},
		},
		subs: make(map[string]map[*subscriber]struct{}),
	}
}

// ServeWS upgrades the request and subscribes the connection to jobID until the
// client goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, jobID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warnf("Websocket upgrade failed for job %s: %v", jobID, err)
		return
	}
	s := &subscriber{jobID: jobID, conn: conn, send: make(chan model.ProgressUpdate, sendBuffer)}
	h.register(s)

	go h.writeLoop(s)
	h.readLoop(s)
}

// Broadcast sends update to the subscribers of its job. A subscriber that cannot keep
// up is disconnected.
func (h *Hub) Broadcast(update model.ProgressUpdate) {
	h.mu.RLock()
	var slow []*subscriber
	for s := range h.subs[update.JobID] {
		select {
		case s.send <- update:
		default:
			slow = append(slow, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range slow {
		logger.Warnf("Dropping slow websocket subscriber of job %s", s.jobID)
		h.unregister(s)
	}
}

// Subscribers returns the number of connections subscribed to jobID.
func (h *Hub) Subscribers(jobID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[jobID])
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	all := h.subs
	h.subs = make(map[string]map[*subscriber]struct{})
	h.mu.Unlock()
	for _, set := range all {
		for s := range set {
			s.close()
		}
	}
}

func (h *Hub) register(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[s.jobID]
	if !ok {
		set = make(map[*subscriber]struct{})
		h.subs[s.jobID] = set
	}
	set[s] = struct{}{}
	logger.Debugf("Websocket subscriber joined job %s (%d total)", s.jobID, len(set))
}

func (h *Hub) unregister(s *subscriber) {
	h.mu.Lock()
	if set, ok := h.subs[s.jobID]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(h.subs, s.jobID)
		}
	}
	h.mu.Unlock()
	s.close()
}

// readLoop only watches for the client going away; inbound frames are ignored.
func (h *Hub) readLoop(s *subscriber) {
	defer h.unregister(s)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(s *subscriber) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()
	for {
		select {
		case update, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := s.conn.WriteJSON(update); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

var _ ports.ProgressBroadcaster = (*Hub)(nil)
