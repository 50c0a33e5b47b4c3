// Package rest is the HTTP front door: the JSON API, the websocket event
// feed and the prometheus endpoint.
package rest

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/andrejs2008/evomint/internal/logging"
	"github.com/andrejs2008/evomint/internal/server/lifecycle"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Hub fans lifecycle events out to connected websocket clients. It
// implements lifecycle.EventPublisher; Publish never blocks, a full queue
// drops the event for everyone and a slow client drops it for itself.
type Hub struct {
	register   chan *wsClient
	unregister chan *wsClient
	broadcast  chan lifecycle.Event
	done       chan struct{}
	logger     logging.Logger
}

type wsClient struct {
	conn *websocket.Conn
	send chan lifecycle.Event
}

func NewHub(logger logging.Logger) *Hub {
	return &Hub{
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		broadcast:  make(chan lifecycle.Event, 64),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Publish queues an event for broadcast.
func (h *Hub) Publish(e lifecycle.Event) {
	select {
	case h.broadcast <- e:
	default:
	}
}

// Run owns the client set until ctx is cancelled, then closes every
// connection.
func (h *Hub) Run(ctx context.Context) {
	clients := make(map[*wsClient]bool)

	for {
		select {
		case c := <-h.register:
			clients[c] = true
			h.logger.Debug(ctx, "event feed client connected", "clients", len(clients))

		case c := <-h.unregister:
			if clients[c] {
				delete(clients, c)
				close(c.send)
			}
			h.logger.Debug(ctx, "event feed client disconnected", "clients", len(clients))

		case e := <-h.broadcast:
			for c := range clients {
				select {
				case c.send <- e:
				default:
					delete(clients, c)
					close(c.send)
				}
			}

		case <-ctx.Done():
			close(h.done)
			for c := range clients {
				close(c.send)
				c.conn.Close()
			}
			return
		}
	}
}

// serve upgrades the request and pumps events until either side closes.
func (h *Hub) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn(r.Context(), "websocket upgrade failed", "error", err)
		return
	}

	c := &wsClient{conn: conn, send: make(chan lifecycle.Event, 16)}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	c.readPump(h)
}

// writePump delivers queued events; it exits when the hub closes the
// channel.
func (c *wsClient) writePump() {
	defer c.conn.Close()
	for e := range c.send {
		if err := c.conn.WriteJSON(e); err != nil {
			return
		}
	}
}

// readPump discards inbound frames; its only job is noticing the close.
func (c *wsClient) readPump(h *Hub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
