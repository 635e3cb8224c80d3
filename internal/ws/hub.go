package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"messenger-service/internal/models"
	"messenger-service/internal/observability"
)

// Client is one websocket connection. A client may be joined to many chat
// rooms at once; writes are serialized per connection.
type Client struct {
	conn *websocket.Conn
	info ConnInfo

	writeMu sync.Mutex

	stateMu sync.Mutex
	joined  map[int]struct{}
}

// NewClient wraps an upgraded connection.
func NewClient(conn *websocket.Conn, info ConnInfo) *Client {
	return &Client{conn: conn, info: info, joined: map[int]struct{}{}}
}

// Info returns the connection metadata captured at handshake time.
func (c *Client) Info() ConnInfo {
	return c.info
}

func (c *Client) send(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *Client) joinedRooms() []int {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	ids := make([]int, 0, len(c.joined))
	for id := range c.joined {
		ids = append(ids, id)
	}
	return ids
}

func (c *Client) markJoined(chatID int) {
	c.stateMu.Lock()
	c.joined[chatID] = struct{}{}
	c.stateMu.Unlock()
}

func (c *Client) markLeft(chatID int) {
	c.stateMu.Lock()
	delete(c.joined, chatID)
	c.stateMu.Unlock()
}

// room holds the member set for one chat. Each room carries its own lock so
// fan-out to disjoint chats never contends.
type room struct {
	mu      sync.Mutex
	members map[*Client]bool
}

func (r *room) add(c *Client) {
	r.mu.Lock()
	r.members[c] = true
	r.mu.Unlock()
}

func (r *room) remove(c *Client) int {
	r.mu.Lock()
	delete(r.members, c)
	n := len(r.members)
	r.mu.Unlock()
	return n
}

func (r *room) snapshot() []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Client, 0, len(r.members))
	for c := range r.members {
		out = append(out, c)
	}
	return out
}

// Hub is the realtime bus: room-scoped message fan-out plus a per-user
// connection registry for participant-scoped chat list refreshes. The hub
// lock only guards the two tables; delivery runs under room locks.
type Hub struct {
	mu    sync.RWMutex
	rooms map[int]*room
	users map[int]map[*Client]bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		rooms: make(map[int]*room),
		users: make(map[int]map[*Client]bool),
	}
}

// Register adds a freshly connected client to the user registry.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.users[c.info.UserID]; !ok {
		h.users[c.info.UserID] = make(map[*Client]bool)
	}
	h.users[c.info.UserID][c] = true
}

// Join adds the client to a chat room. Idempotent. A concurrent Leave may
// tear the room down between the map lookup and the add; the re-check
// retries against the fresh map state so the client never lands in a room
// that delivery can no longer find.
func (h *Hub) Join(c *Client, chatID int) {
	for {
		h.mu.Lock()
		rm, ok := h.rooms[chatID]
		if !ok {
			rm = &room{members: make(map[*Client]bool)}
			h.rooms[chatID] = rm
		}
		h.mu.Unlock()

		rm.add(c)

		h.mu.RLock()
		current := h.rooms[chatID]
		h.mu.RUnlock()
		if current == rm {
			c.markJoined(chatID)
			return
		}
		rm.remove(c)
	}
}

// Leave removes the client from a chat room. Idempotent.
func (h *Hub) Leave(c *Client, chatID int) {
	c.markLeft(chatID)

	h.mu.RLock()
	rm, ok := h.rooms[chatID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	if rm.remove(c) == 0 {
		h.mu.Lock()
		rm.mu.Lock()
		if len(rm.members) == 0 {
			delete(h.rooms, chatID)
		}
		rm.mu.Unlock()
		h.mu.Unlock()
	}
}

// Disconnect removes a dropped connection from every room and the user
// registry. Safe to call more than once.
func (h *Hub) Disconnect(c *Client) {
	for _, chatID := range c.joinedRooms() {
		h.Leave(c, chatID)
	}

	h.mu.Lock()
	if conns, ok := h.users[c.info.UserID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.users, c.info.UserID)
		}
	}
	h.mu.Unlock()
}

// PublishMessage delivers the message to every client joined to its chat's
// room. Called only after the append committed. At-most-once: a failed
// write evicts the connection, durable history is the fallback.
func (h *Hub) PublishMessage(msg models.Message) {
	event := models.ChatEvent{Type: models.EventMessage, Message: &msg}
	h.publishToRoom(msg.ChatID, event)
}

// PublishMessageDeleted notifies the chat room of a soft deletion.
func (h *Hub) PublishMessageDeleted(chatID int, messageID int) {
	event := models.ChatEvent{Type: models.EventMessageDeleted, ChatID: chatID, MessageID: messageID}
	h.publishToRoom(chatID, event)
}

// PublishChatUpdated signals that a chat's summary changed. Scoped to the
// chat's two participants; never broadcast to unrelated connections.
func (h *Hub) PublishChatUpdated(chatID int, user1ID int, user2ID int) {
	event := models.ChatEvent{Type: models.EventChatUpdated, ChatID: chatID}
	payload, _ := json.Marshal(event)

	h.mu.RLock()
	targets := make([]*Client, 0, 4)
	for cl := range h.users[user1ID] {
		targets = append(targets, cl)
	}
	for cl := range h.users[user2ID] {
		targets = append(targets, cl)
	}
	h.mu.RUnlock()

	for _, cl := range targets {
		h.deliver(cl, payload)
	}
}

func (h *Hub) publishToRoom(chatID int, event models.ChatEvent) {
	h.mu.RLock()
	rm, ok := h.rooms[chatID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	payload, _ := json.Marshal(event)
	for _, cl := range rm.snapshot() {
		h.deliver(cl, payload)
	}
}

func (h *Hub) deliver(cl *Client, payload []byte) {
	if err := cl.send(payload); err != nil {
		log.Printf("websocket write error: %v", err)
		cl.conn.Close()
		h.Disconnect(cl)
		h.publishWSError(cl, err)
	}
}

func (h *Hub) publishWSError(cl *Client, err error) {
	info := cl.info
	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"event":       "ws_error",
			"conn_id":     info.ConnID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      err.Error(),
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}

	headers := observability.BuildHeaders(info.RequestID, info.TraceID)
	_ = observability.PublishEvent(context.Background(), observability.WSEventsRoutingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_error",
		Payload:   payload,
	}, headers)
	observability.IncWSEvent("ws_error")
}
