package realtime

import (
	"context"

	log "github.com/sirupsen/logrus"
)

// Hub tracks connected clients and fans every published frame out to all of
// them. There is no per-client filtering: every authenticated connection sees
// the same board. Delivery is at-most-once; a client whose send buffer is
// full is dropped and must reconnect and resync.
type Hub struct {
	register   chan *Conn
	unregister chan *Conn
	broadcast  chan []byte
	clients    map[*Conn]struct{}
	done       chan struct{}
	logger     *log.Logger
}

// NewHub creates a hub. Run must be started before clients connect.
func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Hub{
		register:   make(chan *Conn),
		unregister: make(chan *Conn),
		broadcast:  make(chan []byte, 64),
		clients:    make(map[*Conn]struct{}),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Register adds a connection to the subscriber set. No-op after shutdown.
func (h *Hub) Register(c *Conn) {
	select {
	case h.register <- c:
	case <-h.done:
	}
}

// Unregister removes a connection and closes its send channel. No-op after
// shutdown; Run already closed every send channel on its way out.
func (h *Hub) Unregister(c *Conn) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Broadcast queues a frame for delivery to every connected client. Frames
// offered after shutdown are dropped.
func (h *Hub) Broadcast(frame []byte) {
	select {
	case h.broadcast <- frame:
	case <-h.done:
	}
}

// Run is the hub's main loop. It owns the client set; all membership changes
// and deliveries happen here.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			return
		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.logger.WithField("user", c.user.Email).Debug("client connected")
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				h.logger.WithField("user", c.user.Email).Debug("client disconnected")
			}
		case frame := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- frame:
				default:
					// Slow consumer; drop it rather than block the board.
					delete(h.clients, c)
					close(c.send)
					h.logger.WithField("user", c.user.Email).Warn("send buffer full, dropping client")
				}
			}
		}
	}
}
