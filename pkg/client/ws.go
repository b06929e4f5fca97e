package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// LocationSample is one position report sent over the realtime link.
type LocationSample struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Altitude   *float64  `json:"altitude,omitempty"`
	Accuracy   *float64  `json:"accuracy,omitempty"`
	Speed      *float64  `json:"speed,omitempty"`
	Heading    *float64  `json:"heading,omitempty"`
	RecordedAt time.Time `json:"recordedAt"`
}

type wsEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type outEnvelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Stream is an authenticated realtime connection.
type Stream struct {
	conn *websocket.Conn
}

// Connect dials the realtime endpoint and authenticates with the cached
// session. The server must confirm before the stream is usable.
func (c *Client) Connect(ctx context.Context) (*Stream, error) {
	session, err := c.Session(ctx)
	if err != nil {
		return nil, err
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial realtime: %w", err)
	}

	stream := &Stream{conn: conn}
	if err := stream.send("authenticate", map[string]string{"token": session.AccessToken}); err != nil {
		conn.Close()
		return nil, err
	}

	event, data, err := stream.Next(ctx)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if event != "authenticated" {
		conn.Close()
		var reason struct {
			Reason string `json:"reason"`
		}
		json.Unmarshal(data, &reason)
		return nil, fmt.Errorf("realtime authentication rejected: %s", reason.Reason)
	}

	c.touch()
	return stream, nil
}

// SendLocation reports a position sample.
func (s *Stream) SendLocation(sample LocationSample) error {
	if sample.RecordedAt.IsZero() {
		sample.RecordedAt = time.Now()
	}
	return s.send("location_update", sample)
}

// Next blocks for the next server event.
func (s *Stream) Next(ctx context.Context) (string, json.RawMessage, error) {
	if deadline, ok := ctx.Deadline(); ok {
		s.conn.SetReadDeadline(deadline)
	}
	_, raw, err := s.conn.ReadMessage()
	if err != nil {
		return "", nil, err
	}
	var env wsEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", nil, err
	}
	return env.Event, env.Data, nil
}

func (s *Stream) send(event string, data any) error {
	return s.conn.WriteJSON(outEnvelope{Event: event, Data: data})
}

func (s *Stream) Close() error {
	return s.conn.Close()
}
