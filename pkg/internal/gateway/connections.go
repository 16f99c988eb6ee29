package gateway

import (
	"sync"

	"github.com/richmwhite1/hangouts-consensus/pkg/internal/metrics"
	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
)

// outboundBuffer bounds the per-connection send queue; a consumer that falls
// further behind starts losing frames, never blocking the dispatcher.
const outboundBuffer = 64

// Connection is one authenticated websocket bound to an account. A user may
// hold several at once, one per device.
type Connection struct {
	ID        string
	AccountID uint

	ws        *websocket.Conn
	out       chan []byte
	closeOnce sync.Once
	closed    chan struct{}
}

func NewConnection(accountID uint, ws *websocket.Conn) *Connection {
	return &Connection{
		ID:        uuid.NewString(),
		AccountID: accountID,
		ws:        ws,
		out:       make(chan []byte, outboundBuffer),
		closed:    make(chan struct{}),
	}
}

// Send queues a frame without blocking. Delivery is at-most-once and
// best-effort: a full queue or a closed connection drops the frame.
func (c *Connection) Send(frame []byte) bool {
	select {
	case <-c.closed:
		return false
	default:
	}

	select {
	case c.out <- frame:
		return true
	default:
		return false
	}
}

// WritePump drains the outbound queue onto the socket until the connection
// closes. Runs on its own goroutine per connection.
func (c *Connection) WritePump() {
	for {
		select {
		case frame := <-c.out:
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.Close()
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.ws.Close()
	})
}

// ConnectionManager tracks which connections belong to which account and
// which poll rooms each one subscribed to. It owns no poll state; that stays
// with the room registry.
type ConnectionManager struct {
	mu        sync.RWMutex
	byAccount map[uint]map[*Connection]struct{}
	byRoom    map[uint]map[*Connection]struct{}
	rooms     map[*Connection]map[uint]struct{}
}

func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		byAccount: make(map[uint]map[*Connection]struct{}),
		byRoom:    make(map[uint]map[*Connection]struct{}),
		rooms:     make(map[*Connection]map[uint]struct{}),
	}
}

func (m *ConnectionManager) Register(conn *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.byAccount[conn.AccountID] == nil {
		m.byAccount[conn.AccountID] = make(map[*Connection]struct{})
	}
	m.byAccount[conn.AccountID][conn] = struct{}{}
	m.rooms[conn] = make(map[uint]struct{})

	metrics.SetLiveConnections(len(m.rooms))
}

// Unregister removes the connection from every room and from the account
// multimap, returning the rooms it was subscribed to so the caller can run
// the room-side cleanup. Safe to call more than once.
func (m *ConnectionManager) Unregister(conn *Connection) []uint {
	m.mu.Lock()
	defer m.mu.Unlock()

	subscribed, ok := m.rooms[conn]
	if !ok {
		return nil
	}

	left := make([]uint, 0, len(subscribed))
	for pollID := range subscribed {
		delete(m.byRoom[pollID], conn)
		if len(m.byRoom[pollID]) == 0 {
			delete(m.byRoom, pollID)
		}
		left = append(left, pollID)
	}
	delete(m.rooms, conn)

	if peers, ok := m.byAccount[conn.AccountID]; ok {
		delete(peers, conn)
		if len(peers) == 0 {
			delete(m.byAccount, conn.AccountID)
		}
	}

	metrics.SetLiveConnections(len(m.rooms))

	return left
}

// Subscribe adds the connection to a poll room, reporting whether it was a
// new subscription; re-joining the same room is a no-op.
func (m *ConnectionManager) Subscribe(conn *Connection, pollID uint) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	subscribed, ok := m.rooms[conn]
	if !ok {
		return false
	}
	if _, ok := subscribed[pollID]; ok {
		return false
	}

	subscribed[pollID] = struct{}{}
	if m.byRoom[pollID] == nil {
		m.byRoom[pollID] = make(map[*Connection]struct{})
	}
	m.byRoom[pollID][conn] = struct{}{}

	return true
}

func (m *ConnectionManager) Unsubscribe(conn *Connection, pollID uint) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	subscribed, ok := m.rooms[conn]
	if !ok {
		return false
	}
	if _, ok := subscribed[pollID]; !ok {
		return false
	}

	delete(subscribed, pollID)
	delete(m.byRoom[pollID], conn)
	if len(m.byRoom[pollID]) == 0 {
		delete(m.byRoom, pollID)
	}

	return true
}

func (m *ConnectionManager) RoomConnections(pollID uint) []*Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conns := make([]*Connection, 0, len(m.byRoom[pollID]))
	for conn := range m.byRoom[pollID] {
		conns = append(conns, conn)
	}
	return conns
}

func (m *ConnectionManager) AccountConnections(accountID uint) []*Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conns := make([]*Connection, 0, len(m.byAccount[accountID]))
	for conn := range m.byAccount[accountID] {
		conns = append(conns, conn)
	}
	return conns
}
