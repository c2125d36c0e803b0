package services

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// snapshotWriteWait bounds each websocket write so a dead peer surfaces
	// as a write error instead of a goroutine stuck on a full socket buffer.
	snapshotWriteWait = 10 * time.Second

	// clientSendBuffer is how many snapshots may queue per connection before
	// newer ones are dropped. The latest snapshot always supersedes missed
	// intermediates, same as the in-process subscriber channels.
	clientSendBuffer = 8
)

// WSClient is one websocket connection subscribed to a user's snapshots.
// Snapshots are queued through Enqueue and written by WritePump, so the
// publishing side never touches the socket.
type WSClient struct {
	UserID uint
	Conn   *websocket.Conn

	mu     sync.Mutex
	closed bool
	send   chan Snapshot
}

// NewWSClient wraps an upgraded connection.
func NewWSClient(userID uint, conn *websocket.Conn) *WSClient {
	return &WSClient{
		UserID: userID,
		Conn:   conn,
		send:   make(chan Snapshot, clientSendBuffer),
	}
}

// Enqueue hands a snapshot to the writer goroutine. It never blocks: a slow
// client misses intermediate snapshots rather than stalling the mutation path
// that published them. Returns false when the snapshot was dropped or the
// client is already unregistered.
func (c *WSClient) Enqueue(snap Snapshot) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- snap:
		return true
	default:
		return false
	}
}

// WritePump drains queued snapshots onto the connection. Run it in its own
// goroutine; it exits when the client is unregistered or a write fails, and
// closes the connection on the way out so the read loop unblocks.
func (c *WSClient) WritePump() {
	defer c.Conn.Close()
	for snap := range c.send {
		_ = c.Conn.SetWriteDeadline(time.Now().Add(snapshotWriteWait))
		if err := c.Conn.WriteJSON(snap); err != nil {
			return
		}
	}
}

func (c *WSClient) closeSend() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.mu.Unlock()
}

// Hub fans session snapshots out to connected websocket clients. It is the
// out-of-process half of the observer surface; in-process observers use
// Session.Subscribe directly.
type Hub struct {
	mu      sync.RWMutex
	clients map[uint]map[*WSClient]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[uint]map[*WSClient]struct{})}
}

// Register adds a client to the user's fan-out set.
func (h *Hub) Register(c *WSClient) {
	h.mu.Lock()
	if h.clients[c.UserID] == nil {
		h.clients[c.UserID] = make(map[*WSClient]struct{})
	}
	h.clients[c.UserID][c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client and stops its writer; the pump closes the
// connection as it exits.
func (h *Hub) Unregister(c *WSClient) {
	h.mu.Lock()
	if set := h.clients[c.UserID]; set != nil {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.UserID)
		}
	}
	h.mu.Unlock()
	c.closeSend()
}

// BroadcastSnapshot queues a snapshot for every connection of the user. The
// call never blocks on a peer's socket, so it is safe to invoke from the
// session's publication path.
func (h *Hub) BroadcastSnapshot(userID uint, snap Snapshot) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[userID] {
		c.Enqueue(snap)
	}
}
