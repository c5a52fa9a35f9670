package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"board-api/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 256
)

// Conn is one websocket subscription to the board.
type Conn struct {
	hub   *Hub
	coord *Coordinator
	ws    *websocket.Conn
	send  chan []byte
	user  domain.User
}

// NewConn wraps an upgraded websocket connection. The caller must register it
// with the hub and start both pumps.
func NewConn(hub *Hub, coord *Coordinator, ws *websocket.Conn, user domain.User) *Conn {
	return &Conn{
		hub:   hub,
		coord: coord,
		ws:    ws,
		send:  make(chan []byte, sendBuffer),
		user:  user,
	}
}

// deliver queues a frame for this connection only, dropping it when the
// buffer is full. Used for resync replies.
func (c *Conn) deliver(frame []byte) {
	select {
	case c.send <- frame:
	default:
	}
}

// ReadPump consumes frames from the peer and dispatches the two client-sent
// signals. It unregisters the connection on any read error.
func (c *Conn) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.ws.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.hub.logger.WithError(err).WithField("user", c.user.Email).Warn("websocket read")
			}
			return
		}
		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.hub.logger.WithError(err).WithField("user", c.user.Email).Warn("bad frame from client")
			continue
		}
		ctx := context.Background()
		switch msg.Event {
		case EventClientTaskUpdate:
			var info ClientUpdateInfo
			if len(msg.Data) > 0 {
				_ = json.Unmarshal(msg.Data, &info)
			}
			c.coord.RefreshAll(ctx, c.user, info)
		case EventResync:
			c.coord.Resync(ctx, c)
		default:
			c.hub.logger.WithField("event", msg.Event).Debug("ignoring unknown client event")
		}
	}
}

// WritePump pushes queued frames to the peer and keeps the connection alive
// with pings.
func (c *Conn) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
