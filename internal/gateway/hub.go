package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"trading-overlays/internal/metrics"
	"trading-overlays/internal/model"
	"trading-overlays/internal/overlay"
	redisstore "trading-overlays/internal/store/redis"

	goredis "github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// pushTimeout bounds one overlay recomputation for a websocket client.
const pushTimeout = 10 * time.Second

// Hub manages websocket clients and pushes fresh overlays to every client
// subscribed to a series when new candles for it are announced.
type Hub struct {
	svc     *overlay.Service
	prom    *metrics.Metrics
	Latency *PushLatency

	mu      sync.RWMutex
	clients map[*Client]bool
}

// NewHub creates a Hub serving overlays from svc. prom may be nil.
func NewHub(svc *overlay.Service, prom *metrics.Metrics) *Hub {
	return &Hub{
		svc:     svc,
		prom:    prom,
		Latency: NewPushLatency(4096),
		clients: make(map[*Client]bool),
	}
}

// ServeWS upgrades the request and registers the client.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "error", err)
		return
	}
	conn.EnableWriteCompression(true)

	client := &Client{
		conn:     conn,
		send:     make(chan []byte, 256),
		hub:      h,
		subs:     make(map[string]*subscription),
		lastSent: make(map[string]model.Time),
	}

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()
	if h.prom != nil {
		h.prom.WSClients.Set(float64(count))
	}
	slog.Info("ws client connected", "clients", count)

	go client.writePump()
	go client.readPump()
}

// RemoveClient unregisters c and closes its send channel.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	count := len(h.clients)
	close(c.send)
	h.mu.Unlock()
	if h.prom != nil {
		h.prom.WSClients.Set(float64(count))
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// enqueue queues data for c without blocking. Holding the read lock keeps
// RemoveClient from closing the channel underneath the send.
func (h *Hub) enqueue(c *Client, data []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.clients[c] {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		if h.prom != nil {
			h.prom.WSDropsTotal.Inc()
		}
		slog.Warn("ws client send buffer full, dropping message")
		return false
	}
}

// NotifyCandles refreshes every subscription on the series. It satisfies
// model.UpdateNotifier for single-instance deployments without Redis.
func (h *Hub) NotifyCandles(_ context.Context, symbol string, tf int, _ model.Time) error {
	h.Refresh(symbol, tf)
	return nil
}

// Refresh recomputes and pushes overlays to each client subscribed to the series.
func (h *Hub) Refresh(symbol string, tf int) {
	since := time.Now()
	key := model.SeriesKey(symbol, tf)

	type target struct {
		c   *Client
		sub subscription
	}
	var targets []target
	h.mu.RLock()
	for c := range h.clients {
		if sub, ok := c.subscription(key); ok {
			targets = append(targets, target{c, sub})
		}
	}
	h.mu.RUnlock()

	for _, t := range targets {
		go t.c.push(t.sub, "", since)
	}
}

// RunRedis refreshes subscriptions for candles announced by any instance.
// Blocks until ctx is cancelled.
func (h *Hub) RunRedis(ctx context.Context, rdb *goredis.Client) {
	slog.Info("hub listening for candle announcements")
	redisstore.Subscribe(ctx, rdb, func(u redisstore.CandlesUpdate) {
		h.Refresh(u.Symbol, u.TF)
	})
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		c.conn.Close()
	}
}
