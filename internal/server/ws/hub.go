// Package ws streams iteration results to WebSocket observers.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/cyclebot/internal/domain"
)

// Hub channels. Clients start on ChannelIterations; per-exchange opportunity
// lists are published on ExchangeChannel(id).
const (
	ChannelIterations = "iterations"
	exchangePrefix    = "exchange:"
)

// ExchangeChannel names the channel carrying one exchange's opportunities.
func ExchangeChannel(id domain.ExchangeID) string { return exchangePrefix + string(id) }

const queueSize = 256

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// envelope is the frame format sent to clients.
type envelope struct {
	Type    string          `json:"type"`
	Channel string          `json:"channel,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

type frame struct {
	channel string
	data    []byte
}

// Hub fans frames out to connected clients. Frames come from Emit when the
// engine runs in this process, or from signal bus channels relayed by Run.
type Hub struct {
	bus    domain.SignalBus
	relays map[string]string // bus channel -> hub channel
	logger *slog.Logger

	queue  chan frame
	closed chan struct{}

	mu      sync.Mutex
	clients map[*client]struct{}
}

var _ domain.IterationSink = (*Hub)(nil)

// NewHub creates a Hub. relays maps bus channels to the hub channel their
// messages go out on and is ignored when bus is nil.
func NewHub(bus domain.SignalBus, relays map[string]string, logger *slog.Logger) *Hub {
	return &Hub{
		bus:     bus,
		relays:  relays,
		logger:  logger.With(slog.String("component", "ws_hub")),
		queue:   make(chan frame, queueSize),
		closed:  make(chan struct{}),
		clients: make(map[*client]struct{}),
	}
}

func (h *Hub) Name() string { return "ws" }

// Emit publishes res on ChannelIterations and each exchange's ranked
// opportunities on its exchange channel. It never blocks.
func (h *Hub) Emit(_ context.Context, res domain.IterationResult) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("ws: marshal iteration %s: %w", res.ID, err)
	}
	if err := h.Broadcast(ChannelIterations, "iteration", payload); err != nil {
		return err
	}

	byExchange := make(map[domain.ExchangeID][]domain.Opportunity)
	for _, o := range res.Ranked {
		byExchange[o.Exchange] = append(byExchange[o.Exchange], o)
	}
	for id, opps := range byExchange {
		payload, err := json.Marshal(opps)
		if err != nil {
			return fmt.Errorf("ws: marshal opportunities %s: %w", id, err)
		}
		if err := h.Broadcast(ExchangeChannel(id), "opportunities", payload); err != nil {
			return err
		}
	}
	return nil
}

// Broadcast queues payload for every client subscribed to channel. A full
// queue drops the frame and reports it.
func (h *Hub) Broadcast(channel, kind string, payload []byte) error {
	data, err := json.Marshal(envelope{Type: kind, Channel: channel, Payload: payload})
	if err != nil {
		return fmt.Errorf("ws: marshal envelope: %w", err)
	}
	select {
	case <-h.closed:
		return nil
	case h.queue <- frame{channel: channel, data: data}:
		return nil
	default:
		return fmt.Errorf("ws: queue full, dropped %s frame", channel)
	}
}

// Run delivers queued frames until ctx ends, then disconnects every client.
func (h *Hub) Run(ctx context.Context) error {
	defer h.shutdown()

	if h.bus != nil {
		for busCh, hubCh := range h.relays {
			go h.relay(ctx, busCh, hubCh)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case f := <-h.queue:
			h.deliver(f)
		}
	}
}

func (h *Hub) deliver(f frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if !c.channels.match(f.channel) {
			continue
		}
		select {
		case c.send <- f.data:
		default:
			h.logger.Warn("client too slow, frame dropped",
				slog.String("remote", c.remote),
				slog.String("channel", f.channel),
			)
		}
	}
}

func (h *Hub) shutdown() {
	close(h.closed)
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

// relay forwards one bus channel into the hub until ctx ends or the
// subscription closes.
func (h *Hub) relay(ctx context.Context, busChannel, hubChannel string) {
	log := h.logger.With(slog.String("bus_channel", busChannel))
	msgs, err := h.bus.Subscribe(ctx, busChannel)
	if err != nil {
		log.Error("bus subscribe failed", slog.String("error", err.Error()))
		return
	}
	log.Info("relaying bus channel")

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgs:
			if !ok {
				log.Warn("bus subscription closed")
				return
			}
			if err := h.Broadcast(hubChannel, "iteration", data); err != nil {
				log.Warn("relay dropped message", slog.String("error", err.Error()))
			}
		}
	}
}

// HandleWS upgrades GET /ws and subscribes the client to ChannelIterations.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := newClient(h, conn, ChannelIterations)
	c.hello()
	if !h.add(c) {
		_ = conn.Close()
		return
	}

	go c.writeLoop()
	go c.readLoop()
}

func (h *Hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	select {
	case <-h.closed:
		return false
	default:
	}
	h.clients[c] = struct{}{}
	h.logger.Info("client connected",
		slog.String("remote", c.remote),
		slog.Int("clients", len(h.clients)),
	)
	return true
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.logger.Info("client disconnected",
		slog.String("remote", c.remote),
		slog.Int("clients", len(h.clients)),
	)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
