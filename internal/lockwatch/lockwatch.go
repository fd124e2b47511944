// Package lockwatch is an optional debug server that broadcasts table-lock
// events over WebSocket (spec.md §5's concurrency layer, SPEC_FULL.md §10.8).
// It implements core/database's LockObserver interface structurally — it
// never imports core/database, keeping the façade free of any compile-time
// dependency on it.
package lockwatch

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/go-dbfacade/dbfacade/internal/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true }, // debug tool only
}

// Event is one table-lock state transition, serialized as a JSON frame.
type Event struct {
	Type      string `json:"type"` // "acquire" or "release"
	Table     string `json:"table"`
	Owner     string `json:"owner"`
	Timestamp string `json:"timestamp"`
}

// client is one connected debug viewer.
type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Server fans out lock events to every connected WebSocket client. The
// zero value is not usable; construct with NewServer.
type Server struct {
	mu      sync.RWMutex
	clients map[string]*client
}

// NewServer creates an empty lock-event hub.
func NewServer() *Server {
	return &Server{clients: make(map[string]*client)}
}

// OnLockEvent satisfies core/database's LockObserver interface: every
// table-lock acquire/release the façade reports is fanned out here.
func (s *Server) OnLockEvent(event, table, owner string) {
	data, err := json.Marshal(Event{
		Type:      event,
		Table:     table,
		Owner:     owner,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		logging.Error("lockwatch: marshal event", "error", err.Error())
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.clients {
		select {
		case c.send <- data:
		default:
			logging.Warn("lockwatch: client send buffer full, dropping frame", "client", c.id)
		}
	}
}

// ServeHTTP upgrades the request to a WebSocket connection and registers
// it as a viewer. Connections are read-only from the client's side; any
// inbound message just keeps the connection's read deadline alive.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error("lockwatch: upgrade failed", "error", err.Error())
		return
	}

	c := &client{id: uuid.NewString(), conn: conn, send: make(chan []byte, 64)}
	s.mu.Lock()
	s.clients[c.id] = c
	s.mu.Unlock()
	logging.Info("lockwatch: client connected", "client", c.id)

	go s.writePump(c)
	s.readPump(c)
}

func (s *Server) readPump(c *client) {
	defer s.disconnect(c)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writePump(c *client) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) disconnect(c *client) {
	s.mu.Lock()
	if _, ok := s.clients[c.id]; ok {
		delete(s.clients, c.id)
		close(c.send)
	}
	s.mu.Unlock()
	c.conn.Close()
	logging.Info("lockwatch: client disconnected", "client", c.id)
}

// ListenAndServe runs an HTTP server on addr exposing s at "/" until the
// process exits or the server errors. Intended for the CLI's
// --watch-locks flag to run in its own goroutine.
func (s *Server) ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/", s)
	return http.ListenAndServe(addr, mux)
}
