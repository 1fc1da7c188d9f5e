package ws

import (
	"encoding/json"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = pongWait * 9 / 10
	maxFrameSize = 4096
	sendBuffer   = 64
)

// control is a client request to change its channels.
type control struct {
	Action   string   `json:"action"` // subscribe | unsubscribe
	Channels []string `json:"channels"`
}

// channelSet holds a client's subscriptions. A name ending in '*' matches
// every channel with that prefix.
type channelSet struct {
	mu    sync.RWMutex
	names map[string]struct{}
}

func newChannelSet(names ...string) *channelSet {
	s := &channelSet{names: make(map[string]struct{}, len(names))}
	s.add(names...)
	return s
}

func (s *channelSet) add(names ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			s.names[n] = struct{}{}
		}
	}
}

func (s *channelSet) remove(names ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range names {
		delete(s.names, strings.TrimSpace(n))
	}
}

func (s *channelSet) match(channel string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.names[channel]; ok {
		return true
	}
	for n := range s.names {
		if prefix, wild := strings.CutSuffix(n, "*"); wild && strings.HasPrefix(channel, prefix) {
			return true
		}
	}
	return false
}

func (s *channelSet) list() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.names))
	for n := range s.names {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}

type client struct {
	hub      *Hub
	conn     *websocket.Conn
	remote   string
	send     chan []byte
	channels *channelSet
}

func newClient(h *Hub, conn *websocket.Conn, channels ...string) *client {
	return &client{
		hub:      h,
		conn:     conn,
		remote:   conn.RemoteAddr().String(),
		send:     make(chan []byte, sendBuffer),
		channels: newChannelSet(channels...),
	}
}

// hello tells the client which channels it is on. It is queued ahead of any
// broadcast frame.
func (c *client) hello() {
	payload, err := json.Marshal(map[string][]string{"channels": c.channels.list()})
	if err != nil {
		return
	}
	msg, err := json.Marshal(envelope{Type: "hello", Payload: payload})
	if err != nil {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

func (c *client) apply(ctl control) {
	switch ctl.Action {
	case "subscribe":
		c.channels.add(ctl.Channels...)
	case "unsubscribe":
		c.channels.remove(ctl.Channels...)
	}
}

// readLoop applies control messages and keeps the read deadline moving on
// pongs. Any read error disconnects the client.
func (c *client) readLoop() {
	defer func() {
		c.hub.remove(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("websocket read failed",
					slog.String("remote", c.remote),
					slog.String("error", err.Error()),
				)
			}
			return
		}
		var ctl control
		if json.Unmarshal(data, &ctl) == nil {
			c.apply(ctl)
		}
	}
}

// writeLoop owns all writes to the connection. A closed send channel sends a
// close frame and ends the loop.
func (c *client) writeLoop() {
	ping := time.NewTicker(pingInterval)
	defer func() {
		ping.Stop()
		_ = c.conn.Close()
	}()

	for {
		var (
			kind = websocket.TextMessage
			data []byte
		)
		select {
		case msg, ok := <-c.send:
			if !ok {
				kind = websocket.CloseMessage
			}
			data = msg
		case <-ping.C:
			kind = websocket.PingMessage
		}

		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(kind, data); err != nil || kind == websocket.CloseMessage {
			return
		}
	}
}
