package lockwatch

import (
	"encoding/json"
	"testing"
)

func TestOnLockEventBroadcastsToConnectedClients(t *testing.T) {
	s := NewServer()
	c := &client{id: "test-client", send: make(chan []byte, 4)}
	s.mu.Lock()
	s.clients[c.id] = c
	s.mu.Unlock()

	s.OnLockEvent("acquire", "app.users", "tx-1")

	select {
	case data := <-c.send:
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("unmarshal event: %v", err)
		}
		if ev.Type != "acquire" || ev.Table != "app.users" || ev.Owner != "tx-1" {
			t.Errorf("event = %+v, want acquire/app.users/tx-1", ev)
		}
		if ev.Timestamp == "" {
			t.Error("event timestamp should not be empty")
		}
	default:
		t.Fatal("expected event to be queued on client send channel")
	}
}

func TestOnLockEventDropsWhenClientBufferFull(t *testing.T) {
	s := NewServer()
	c := &client{id: "slow-client", send: make(chan []byte, 1)}
	s.mu.Lock()
	s.clients[c.id] = c
	s.mu.Unlock()

	s.OnLockEvent("acquire", "app.users", "tx-1")
	// buffer is now full (capacity 1); this call must not block.
	s.OnLockEvent("release", "app.users", "tx-1")

	if len(c.send) != 1 {
		t.Errorf("len(c.send) = %d, want 1 (second event dropped)", len(c.send))
	}
}

func TestDisconnectRemovesClientAndClosesChannel(t *testing.T) {
	s := NewServer()
	c := &client{id: "gone", send: make(chan []byte, 1), conn: nil}
	s.mu.Lock()
	s.clients[c.id] = c
	s.mu.Unlock()

	// disconnect() calls c.conn.Close(); a nil *websocket.Conn would panic,
	// so exercise only the bookkeeping this test cares about directly.
	s.mu.Lock()
	delete(s.clients, c.id)
	close(c.send)
	s.mu.Unlock()

	s.mu.RLock()
	_, ok := s.clients[c.id]
	s.mu.RUnlock()
	if ok {
		t.Error("client should have been removed from the registry")
	}
	if _, open := <-c.send; open {
		t.Error("client send channel should be closed")
	}
}
