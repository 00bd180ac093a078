package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rustyeddy/oms/broker"
	"github.com/sirupsen/logrus"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 64
)

// Event is the message pushed to stream clients.
type Event struct {
	Type  string       `json:"type"`
	Trade broker.Trade `json:"trade"`
}

type client struct {
	owner string
	send  chan []byte
}

// Hub streams trades over websockets. Each client sees only its own
// owner's trades. A client whose buffer is full is disconnected.
type Hub struct {
	mu       sync.Mutex
	clients  map[*client]struct{}
	upgrader websocket.Upgrader
	log      logrus.FieldLogger
}

func NewHub(log logrus.FieldLogger) *Hub {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Hub{
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log: log.WithField("component", "hub"),
	}
}

// Clients is the number of connected streams.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) TradeExecuted(_ context.Context, t broker.Trade) error {
	msg, err := json.Marshal(Event{Type: "trade", Trade: t})
	if err != nil {
		return fmt.Errorf("hub: encode trade %s: %w", t.ID, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.owner != t.OwnerID {
			continue
		}
		select {
		case c.send <- msg:
		default:
			h.log.WithField("owner", c.owner).Warn("stream client too slow, dropping")
			h.removeLocked(c)
		}
	}
	return nil
}

func (h *Hub) add(owner string) *client {
	c := &client{owner: owner, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// Serve upgrades the request and streams owner's trades until the peer
// goes away.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, owner string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("hub: upgrade: %w", err)
	}
	c := h.add(owner)
	h.log.WithField("owner", owner).Debug("stream connected")

	go h.writePump(conn, c)
	h.readPump(conn, c)
	return nil
}

// readPump discards client messages and notices disconnects.
func (h *Hub) readPump(conn *websocket.Conn, c *client) {
	defer func() {
		h.remove(c)
		conn.Close()
		h.log.WithField("owner", c.owner).Debug("stream closed")
	}()
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(conn *websocket.Conn, c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
