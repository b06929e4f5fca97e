package ws

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Handler upgrades HTTP connections into hub clients.
type Handler struct {
	hub      *Hub
	auth     Authenticator
	sink     LocationSink
	upgrader websocket.Upgrader
}

func NewHandler(hub *Hub, auth Authenticator, sink LocationSink, allowedOrigins []string) *Handler {
	allowAll := len(allowedOrigins) == 0
	originSet := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		originSet[origin] = struct{}{}
	}

	return &Handler{
		hub:  hub,
		auth: auth,
		sink: sink,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if allowAll {
					return true
				}
				_, ok := originSet[r.Header.Get("Origin")]
				return ok
			},
		},
	}
}

// Serve handles GET /ws. The socket starts unauthenticated; the client must
// send an authenticate event before anything else is accepted.
func (h *Handler) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	client := newClient(h.hub, conn, h.auth, h.sink)
	h.hub.register(client)

	go client.writePump()
	// The request context dies with the handler; the socket outlives it.
	go client.readPump(context.Background())
}
