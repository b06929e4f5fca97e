package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"fotoreg/api/internal/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4 << 10
	sendBuffer     = 64

	// Position samples above this rate are dropped, not queued.
	locationEventsPerMinute = 60
)

// Authenticator resolves a raw access token to a live user. The token is
// checked against the session ledger, never trusted on signature alone.
type Authenticator interface {
	ResolveToken(ctx context.Context, token string) (models.User, error)
}

// LocationSink receives position samples from authenticated operator
// sockets.
type LocationSink interface {
	Record(ctx context.Context, userID string, sample LocationUpdate) error
}

// Inbound event names.
const (
	eventAuthenticate  = "authenticate"
	eventLocation      = "location_update"
	eventJoinAdminRoom = "join_admin_room"
)

// Outbound event names.
const (
	EventAuthenticated   = "authenticated"
	EventUnauthorized    = "unauthorized"
	EventOperatorOnline  = "operator_online"
	EventOperatorOffline = "operator_offline"
)

type authenticatePayload struct {
	Token string `json:"token"`
}

// LocationUpdate is an inbound position sample.
type LocationUpdate struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Altitude   *float64  `json:"altitude,omitempty"`
	Accuracy   *float64  `json:"accuracy,omitempty"`
	Speed      *float64  `json:"speed,omitempty"`
	Heading    *float64  `json:"heading,omitempty"`
	RecordedAt time.Time `json:"recordedAt"`
}

type inboundEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type Client struct {
	hub  *Hub
	conn *websocket.Conn

	auth Authenticator
	sink LocationSink

	// mu guards the send channel state and the resolved identity. The
	// read goroutine and the hub's broadcast goroutines both touch them.
	mu            sync.Mutex
	send          chan []byte
	closed        bool
	authenticated bool
	user          models.User

	rooms map[string]struct{}

	locationLimiter *rate.Limiter
}

func newClient(hub *Hub, conn *websocket.Conn, auth Authenticator, sink LocationSink) *Client {
	return &Client{
		hub:             hub,
		conn:            conn,
		send:            make(chan []byte, sendBuffer),
		auth:            auth,
		sink:            sink,
		rooms:           make(map[string]struct{}),
		locationLimiter: rate.NewLimiter(rate.Every(time.Minute/locationEventsPerMinute), locationEventsPerMinute),
	}
}

// enqueue queues a payload for the write pump. It reports false when the
// buffer is full or the channel is already closed; it never panics on a
// dropped client.
func (c *Client) enqueue(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *Client) trySend(payload []byte, event string, h *Hub) {
	if c.enqueue(payload) {
		h.observer.EventDelivered(event)
		return
	}
	// The client is gone or cannot keep up; drop the connection rather
	// than buffer unbounded.
	go h.unregister(c)
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *Client) sendEvent(event string, data any) {
	payload, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		return
	}
	c.enqueue(payload)
}

func (c *Client) setIdentity(user models.User) {
	c.mu.Lock()
	c.authenticated = true
	c.user = user
	c.mu.Unlock()
}

func (c *Client) identity() (models.User, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user, c.authenticated
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		if user, authed := c.identity(); authed && user.Role == models.UserRoleOperator {
			c.hub.EmitToAdmins(EventOperatorOffline, map[string]any{"userId": user.ID})
		}
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg inboundEnvelope
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}

		switch msg.Event {
		case eventAuthenticate:
			c.handleAuthenticate(ctx, msg.Data)
		case eventJoinAdminRoom:
			c.handleJoinAdminRoom()
		case eventLocation:
			c.handleLocation(ctx, msg.Data)
		}
	}
}

func (c *Client) handleAuthenticate(ctx context.Context, data json.RawMessage) {
	var payload authenticatePayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.Token == "" {
		c.sendEvent(EventUnauthorized, map[string]any{"reason": "token_required"})
		return
	}

	user, err := c.auth.ResolveToken(ctx, payload.Token)
	if err != nil {
		c.sendEvent(EventUnauthorized, map[string]any{"reason": "token_invalid"})
		return
	}

	c.setIdentity(user)
	c.hub.joinRoom(c, UserRoom(user.ID))
	c.sendEvent(EventAuthenticated, map[string]any{
		"userId":   user.ID,
		"username": user.Username,
		"role":     user.Role,
	})

	if user.Role == models.UserRoleOperator {
		c.hub.EmitToAdmins(EventOperatorOnline, map[string]any{
			"userId":   user.ID,
			"username": user.Username,
			"fullName": user.FullName,
		})
	}
}

func (c *Client) handleJoinAdminRoom() {
	user, authed := c.identity()
	if !authed {
		c.sendEvent(EventUnauthorized, map[string]any{"reason": "token_required"})
		return
	}
	if user.Role != models.UserRoleAdmin {
		c.sendEvent(EventUnauthorized, map[string]any{"reason": "forbidden"})
		return
	}
	c.hub.joinRoom(c, AdminRoom)
}

func (c *Client) handleLocation(ctx context.Context, data json.RawMessage) {
	user, authed := c.identity()
	if !authed {
		c.sendEvent(EventUnauthorized, map[string]any{"reason": "token_required"})
		return
	}
	if !c.locationLimiter.Allow() {
		return
	}

	var sample LocationUpdate
	if err := json.Unmarshal(data, &sample); err != nil {
		return
	}
	if sample.RecordedAt.IsZero() {
		sample.RecordedAt = time.Now()
	}
	if err := c.sink.Record(ctx, user.ID, sample); err != nil {
		c.hub.logger.Warn().Err(err).Str("user_id", user.ID).Msg("location sample rejected")
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
