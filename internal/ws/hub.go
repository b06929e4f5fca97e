// Package ws is the realtime broadcast layer. Connected clients join rooms;
// the hub fans events out to a user's room, the admin room, or everyone.
package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"
)

// Room names. Every authenticated socket joins its own user room; admin
// sockets may additionally join the admin room.
const (
	AdminRoom      = "admin_room"
	userRoomPrefix = "user_"
)

func UserRoom(userID string) string {
	return userRoomPrefix + userID
}

// Envelope is the wire shape of every realtime event.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// EventObserver receives delivery notifications, for metrics.
type EventObserver interface {
	ClientConnected()
	ClientDisconnected()
	EventDelivered(event string)
}

type Hub struct {
	logger   zerolog.Logger
	observer EventObserver

	mu      sync.RWMutex
	clients map[*Client]struct{}
	rooms   map[string]map[*Client]struct{}

	closed bool
}

func NewHub(logger zerolog.Logger, observer EventObserver) *Hub {
	return &Hub{
		logger:   logger.With().Str("component", "ws").Logger(),
		observer: observer,
		clients:  make(map[*Client]struct{}),
		rooms:    make(map[string]map[*Client]struct{}),
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		c.closeSend()
		return
	}
	h.clients[c] = struct{}{}
	h.observer.ClientConnected()
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	for room := range c.rooms {
		h.leaveRoomLocked(c, room)
	}
	c.closeSend()
	h.observer.ClientDisconnected()
}

func (h *Hub) joinRoom(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
}

func (h *Hub) leaveRoomLocked(c *Client, room string) {
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
	delete(c.rooms, room)
}

// EmitToUser delivers the event to every socket in the user's room.
func (h *Hub) EmitToUser(userID string, event string, data any) {
	h.emitToRoom(UserRoom(userID), event, data)
}

// EmitToAdmins delivers the event to every socket in the admin room.
func (h *Hub) EmitToAdmins(event string, data any) {
	h.emitToRoom(AdminRoom, event, data)
}

// EmitToAll delivers the event to every authenticated socket.
func (h *Hub) EmitToAll(event string, data any) {
	payload, err := h.encode(event, data)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if _, authed := c.identity(); !authed {
			continue
		}
		c.trySend(payload, event, h)
	}
}

func (h *Hub) emitToRoom(room string, event string, data any) {
	payload, err := h.encode(event, data)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[room] {
		c.trySend(payload, event, h)
	}
}

func (h *Hub) encode(event string, data any) ([]byte, error) {
	payload, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		h.logger.Error().Err(err).Str("event", event).Msg("event encode failed")
		return nil, err
	}
	return payload, nil
}

// ConnectedCount reports how many sockets are registered.
func (h *Hub) ConnectedCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Shutdown disconnects every client and refuses new registrations.
func (h *Hub) Shutdown(ctx context.Context) {
	h.mu.Lock()
	h.closed = true
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.unregister(c)
	}
}
