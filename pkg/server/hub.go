package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/harrisonrobin/taskboard/pkg/model"
	"github.com/harrisonrobin/taskboard/pkg/session"
)

// Message types pushed to websocket clients.
const (
	MessageTasks   = "tasks"
	MessageSession = "session"
)

// Message is one server push. Clients may send {"type":"tasks"} to request
// the current list again.
type Message struct {
	Type    string         `json:"type"`
	Tasks   []model.Task   `json:"tasks,omitempty"`
	Session *session.State `json:"session,omitempty"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// Hub pushes every list change of the session to all connected clients.
type Hub struct {
	mu          sync.RWMutex
	clients     map[*client]struct{}
	ctl         *session.Controller
	origins     []string
	log         *slog.Logger
	unsubscribe func()
}

func NewHub(ctl *session.Controller, origins []string, log *slog.Logger) *Hub {
	h := &Hub{
		clients: make(map[*client]struct{}),
		ctl:     ctl,
		origins: origins,
		log:     log,
	}
	h.unsubscribe = ctl.Subscribe(func(tasks []model.Task) {
		h.broadcast(Message{Type: MessageTasks, Tasks: nonNil(tasks)})
	})
	return h
}

func nonNil(tasks []model.Task) []model.Task {
	if tasks == nil {
		return []model.Task{}
	}
	return tasks
}

func encode(msg Message) ([]byte, error) {
	if msg.Type == MessageTasks {
		// keep "tasks": [] on the wire for an empty list
		return json.Marshal(struct {
			Type  string       `json:"type"`
			Tasks []model.Task `json:"tasks"`
		}{msg.Type, nonNil(msg.Tasks)})
	}
	return json.Marshal(msg)
}

func (h *Hub) broadcast(msg Message) {
	data, err := encode(msg)
	if err != nil {
		h.log.Error("marshal ws message", "type", msg.Type, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.log.Warn("ws client too slow, dropping message", "type", msg.Type)
		}
	}
}

func (h *Hub) broadcastSession(st session.State) {
	h.broadcast(Message{Type: MessageSession, Session: &st})
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	h.log.Debug("ws client connected", "clients", len(h.clients))
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		h.log.Debug("ws client disconnected", "clients", len(h.clients))
	}
}

// ServeWS upgrades the connection, sends the session and the current list,
// then streams changes until the client goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.origins,
	})
	if err != nil {
		h.log.Warn("ws accept", "error", err)
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, 64),
		hub:  h,
	}
	h.register(c)

	st := h.ctl.State()
	c.queue(Message{Type: MessageSession, Session: &st})
	c.queue(Message{Type: MessageTasks, Tasks: h.ctl.Tasks()})

	ctx := r.Context()
	go c.writePump(ctx)
	c.readPump(ctx)
}

func (c *client) queue(msg Message) {
	data, err := encode(msg)
	if err != nil {
		c.hub.log.Error("marshal ws message", "type", msg.Type, "error", err)
		return
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.clients[c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *client) readPump(ctx context.Context) {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				c.hub.log.Debug("ws read closed", "status", websocket.CloseStatus(err))
			} else {
				c.hub.log.Debug("ws read error", "error", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.hub.log.Debug("ws bad message", "error", err)
			continue
		}
		switch msg.Type {
		case MessageTasks:
			c.queue(Message{Type: MessageTasks, Tasks: c.hub.ctl.Tasks()})
		case MessageSession:
			st := c.hub.ctl.State()
			c.queue(Message{Type: MessageSession, Session: &st})
		default:
			c.hub.log.Debug("ws unknown message type", "type", msg.Type)
		}
	}
}

func (c *client) writePump(ctx context.Context) {
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.Write(ctx, websocket.MessageText, msg); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// Close detaches from the session and disconnects all clients.
func (h *Hub) Close() {
	if h.unsubscribe != nil {
		h.unsubscribe()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.conn.Close(websocket.StatusGoingAway, "server shutdown")
		delete(h.clients, c)
		close(c.send)
	}
}
