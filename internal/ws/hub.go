package ws

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Hub tracks live WebSocket connections keyed by user ID and routes
// outbound events to them. Each client has its own buffered send
// channel, so delivery order is preserved per recipient while a slow
// or dead connection never blocks the rest. Presence here is
// ephemeral: a dropped connection only means the user stops receiving
// pushes, nothing else in the system changes.
type Hub struct {
	clients    map[*Client]bool
	users      map[string]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	log        *logrus.Logger
}

func NewHub(log *logrus.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		users:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		log:        log,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.clients[client] = true
	if h.users[client.UserID] == nil {
		h.users[client.UserID] = make(map[*Client]bool)
	}
	h.users[client.UserID][client] = true

	h.log.WithField("user_id", client.UserID).Debug("websocket client connected")
}

func (h *Hub) unregisterClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)

	if conns := h.users[client.UserID]; conns != nil {
		delete(conns, client)
		if len(conns) == 0 {
			delete(h.users, client.UserID)
		}
	}

	h.log.WithField("user_id", client.UserID).Debug("websocket client disconnected")
}

// Push queues payload for every live connection of the given user. The
// enqueue is non-blocking: a connection whose buffer is full has its
// message dropped rather than stalling other recipients. An offline
// user is a silent no-op.
func (h *Hub) Push(userID string, payload []byte) error {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	for client := range h.users[userID] {
		select {
		case client.send <- payload:
		default:
			h.log.WithField("user_id", userID).Warn("websocket send buffer full, dropping event")
		}
	}
	return nil
}

// Connected reports whether the user has at least one live connection.
func (h *Hub) Connected(userID string) bool {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.users[userID]) > 0
}
