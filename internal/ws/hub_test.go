package ws

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fotoreg/api/internal/models"
)

type nopObserver struct{}

func (nopObserver) ClientConnected()            {}
func (nopObserver) ClientDisconnected()         {}
func (nopObserver) EventDelivered(event string) {}

func newTestHub() *Hub {
	return NewHub(zerolog.Nop(), nopObserver{})
}

func addClient(hub *Hub, user models.User) *Client {
	c := newClient(hub, nil, nil, nil)
	hub.register(c)
	c.setIdentity(user)
	hub.joinRoom(c, UserRoom(user.ID))
	return c
}

func receivedEvents(c *Client) []string {
	var events []string
	for {
		select {
		case payload := <-c.send:
			var env Envelope
			if err := json.Unmarshal(payload, &env); err == nil {
				events = append(events, env.Event)
			}
		default:
			return events
		}
	}
}

func TestEmitToUserTargetsOneRoom(t *testing.T) {
	hub := newTestHub()
	alice := addClient(hub, models.User{ID: "alice", Role: models.UserRoleOperator})
	bob := addClient(hub, models.User{ID: "bob", Role: models.UserRoleOperator})

	hub.EmitToUser("alice", "login_success", map[string]any{"userId": "alice"})

	assert.Equal(t, []string{"login_success"}, receivedEvents(alice))
	assert.Empty(t, receivedEvents(bob))
}

func TestEmitToAdminsOnlyReachesAdminRoom(t *testing.T) {
	hub := newTestHub()
	admin := addClient(hub, models.User{ID: "admin-1", Role: models.UserRoleAdmin})
	hub.joinRoom(admin, AdminRoom)
	operator := addClient(hub, models.User{ID: "op-1", Role: models.UserRoleOperator})

	hub.EmitToAdmins("operator_location", map[string]any{"userId": "op-1"})

	assert.Equal(t, []string{"operator_location"}, receivedEvents(admin))
	assert.Empty(t, receivedEvents(operator))
}

func TestEmitToAllSkipsUnauthenticated(t *testing.T) {
	hub := newTestHub()
	authed := addClient(hub, models.User{ID: "op-1", Role: models.UserRoleOperator})

	stranger := newClient(hub, nil, nil, nil)
	hub.register(stranger)

	hub.EmitToAll("announcement", nil)

	assert.Equal(t, []string{"announcement"}, receivedEvents(authed))
	assert.Empty(t, receivedEvents(stranger))
}

func TestUnregisterLeavesRooms(t *testing.T) {
	hub := newTestHub()
	admin := addClient(hub, models.User{ID: "admin-1", Role: models.UserRoleAdmin})
	hub.joinRoom(admin, AdminRoom)

	hub.unregister(admin)
	require.Equal(t, 0, hub.ConnectedCount())

	// Emits after unregister must not panic or deliver.
	hub.EmitToAdmins("operator_location", nil)
	hub.EmitToUser("admin-1", "login_success", nil)
}

func TestAdminRoomRequiresAdminRole(t *testing.T) {
	hub := newTestHub()
	operator := addClient(hub, models.User{ID: "op-1", Role: models.UserRoleOperator})

	operator.handleJoinAdminRoom()

	events := receivedEvents(operator)
	require.Len(t, events, 1)
	assert.Equal(t, EventUnauthorized, events[0])

	hub.EmitToAdmins("operator_location", nil)
	assert.Empty(t, receivedEvents(operator))
}

// A dropped client whose read goroutine is still running may keep
// producing control events; none of them may touch the closed channel.
func TestSendAfterDropIsSafe(t *testing.T) {
	hub := newTestHub()
	admin := addClient(hub, models.User{ID: "admin-1", Role: models.UserRoleAdmin})

	hub.unregister(admin)
	require.Equal(t, 0, hub.ConnectedCount())

	admin.handleJoinAdminRoom()
	admin.sendEvent(EventUnauthorized, map[string]any{"reason": "token_required"})
	admin.trySend([]byte(`{}`), "announcement", hub)

	// Double unregister and a late close are no-ops.
	hub.unregister(admin)
	admin.closeSend()
}

type staticAuthenticator struct {
	user models.User
}

func (s staticAuthenticator) ResolveToken(ctx context.Context, token string) (models.User, error) {
	return s.user, nil
}

// Authentication flips identity state while broadcasts read it; both
// sides must synchronize.
func TestAuthenticateDuringBroadcast(t *testing.T) {
	hub := newTestHub()
	operator := models.User{ID: "op-1", Role: models.UserRoleOperator}

	c := newClient(hub, nil, staticAuthenticator{user: operator}, nil)
	hub.register(c)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			hub.EmitToAll("announcement", nil)
		}
	}()
	go func() {
		defer wg.Done()
		c.handleAuthenticate(context.Background(), json.RawMessage(`{"token":"t"}`))
	}()
	wg.Wait()

	user, authed := c.identity()
	assert.True(t, authed)
	assert.Equal(t, "op-1", user.ID)
}

func TestShutdownDisconnectsEveryone(t *testing.T) {
	hub := newTestHub()
	addClient(hub, models.User{ID: "a", Role: models.UserRoleOperator})
	addClient(hub, models.User{ID: "b", Role: models.UserRoleOperator})

	hub.Shutdown(context.Background())
	assert.Equal(t, 0, hub.ConnectedCount())

	// New registrations after shutdown are refused.
	late := newClient(hub, nil, nil, nil)
	hub.register(late)
	assert.Equal(t, 0, hub.ConnectedCount())
}
