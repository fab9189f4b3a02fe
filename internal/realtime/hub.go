package realtime

import (
	"sync"

	"orderbridge/internal/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Client is one connected socket. Its membership lives only in this process.
type Client struct {
	ID     uuid.UUID
	UserID uuid.UUID
	send   chan []byte
}

func NewClient(userID uuid.UUID, buffer int) *Client {
	if buffer <= 0 {
		buffer = 32
	}
	return &Client{ID: uuid.New(), UserID: userID, send: make(chan []byte, buffer)}
}

// Send yields frames for the client; it is closed on Unregister.
func (c *Client) Send() <-chan []byte {
	return c.send
}

// Hub is the process-local presence registry: channel -> clients.
// It is rebuilt from reconnects and never persisted.
type Hub struct {
	mu       sync.RWMutex
	channels map[string]map[*Client]struct{}
	clients  map[*Client]map[string]struct{}
	log      *zap.Logger
	metrics  *metrics.Metrics
}

func NewHub(log *zap.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		channels: make(map[string]map[*Client]struct{}),
		clients:  make(map[*Client]map[string]struct{}),
		log:      log.Named("hub"),
		metrics:  m,
	}
}

// Register adds a client and joins it to the given channels.
func (h *Hub) Register(c *Client, channels ...string) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.clients[c] = make(map[string]struct{})
		h.metrics.RealtimeClients(1)
	}
	for _, ch := range channels {
		h.join(c, ch)
	}
	h.mu.Unlock()
}

func (h *Hub) Join(c *Client, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		h.join(c, channel)
	}
}

func (h *Hub) join(c *Client, channel string) {
	members, ok := h.channels[channel]
	if !ok {
		members = make(map[*Client]struct{})
		h.channels[channel] = members
	}
	members[c] = struct{}{}
	h.clients[c][channel] = struct{}{}
}

func (h *Hub) Leave(c *Client, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leave(c, channel)
}

func (h *Hub) leave(c *Client, channel string) {
	if members, ok := h.channels[channel]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.channels, channel)
		}
	}
	if joined, ok := h.clients[c]; ok {
		delete(joined, channel)
	}
}

// Unregister drops the client from every channel and closes its send buffer.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	joined, ok := h.clients[c]
	if !ok {
		return
	}
	for ch := range joined {
		h.leave(c, ch)
	}
	delete(h.clients, c)
	close(c.send)
	h.metrics.RealtimeClients(-1)
}

// Deliver hands data to every member of channel without blocking.
// Slow clients lose the frame. It returns how many clients accepted it.
func (h *Hub) Deliver(channel string, data []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for c := range h.channels[channel] {
		select {
		case c.send <- data:
			delivered++
		default:
			h.metrics.RealtimeDropped()
			h.log.Debug("dropping frame for slow client",
				zap.String("channel", channel), zap.String("client_id", c.ID.String()))
		}
	}
	return delivered
}

// Members returns the number of clients joined to channel.
func (h *Hub) Members(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

// Reply queues a frame for a single registered client without blocking.
func (h *Hub) Reply(c *Client, data []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; !ok {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		h.metrics.RealtimeDropped()
		return false
	}
}
