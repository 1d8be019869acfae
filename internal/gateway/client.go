package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"trading-overlays/internal/indicator"
	"trading-overlays/internal/model"
	"trading-overlays/internal/overlay"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// Client represents a single websocket peer.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	// key = model.SeriesKey(symbol, tf)
	subMu sync.RWMutex
	subs  map[string]*subscription

	// pushMu orders pushes so a snapshot never overtakes a newer one.
	// lastSent holds the newest candle time pushed per series.
	pushMu   sync.Mutex
	lastSent map[string]model.Time
}

type subscription struct {
	Symbol string
	TF     int
	Specs  []indicator.Spec
	Preset string
	Window int
}

func (c *Client) subscription(key string) (subscription, bool) {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	sub, ok := c.subs[key]
	if !ok {
		return subscription{}, false
	}
	return *sub, true
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// Coalesce queued messages into one frame, newline separated.
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}
			if err := w.Close(); err != nil {
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

func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
		slog.Info("ws client disconnected")
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			break
		}

		var base struct {
			Type string `json:"type"`
			Ping int64  `json:"ping"`
		}
		if json.Unmarshal(msg, &base) != nil {
			continue
		}

		switch base.Type {
		case "SUBSCRIBE":
			var sub SubscribeMsg
			if err := json.Unmarshal(msg, &sub); err != nil {
				c.sendError("", "invalid SUBSCRIBE: "+err.Error())
				continue
			}
			c.handleSubscribe(sub)

		case "UNSUBSCRIBE":
			var unsub UnsubscribeMsg
			if err := json.Unmarshal(msg, &unsub); err != nil {
				continue
			}
			c.handleUnsubscribe(unsub)

		default:
			if base.Ping > 0 {
				c.sendJSON(map[string]any{
					"type":      "pong",
					"ping":      base.Ping,
					"server_ts": time.Now().UnixMilli(),
				})
			}
		}
	}
}

func (c *Client) handleSubscribe(msg SubscribeMsg) {
	if msg.Symbol == "" || msg.TF <= 0 {
		c.sendError(msg.ReqID, "symbol and tf are required")
		return
	}
	specs, err := indicator.ParseSpecs(strings.Join(msg.Indicators, ","))
	if err != nil {
		c.sendError(msg.ReqID, err.Error())
		return
	}

	sub := subscription{
		Symbol: msg.Symbol,
		TF:     msg.TF,
		Specs:  specs,
		Preset: msg.Preset,
		Window: msg.Window,
	}
	c.subMu.Lock()
	c.subs[model.SeriesKey(sub.Symbol, sub.TF)] = &sub
	c.subMu.Unlock()

	slog.Info("ws client subscribed", "series", model.SeriesKey(sub.Symbol, sub.TF), "indicators", len(specs), "preset", sub.Preset)

	go c.push(sub, msg.ReqID, time.Time{})
}

func (c *Client) handleUnsubscribe(msg UnsubscribeMsg) {
	key := model.SeriesKey(msg.Symbol, msg.TF)
	c.subMu.Lock()
	delete(c.subs, key)
	c.subMu.Unlock()
	slog.Info("ws client unsubscribed", "series", key)
}

// push computes the subscription's overlays and queues them. A non-zero
// since records announcement-to-compute latency. Pushes for one client run
// one at a time, and a refresh whose window ends before the last pushed one
// is dropped.
func (c *Client) push(sub subscription, reqID string, since time.Time) {
	c.pushMu.Lock()
	defer c.pushMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
	defer cancel()

	resp, err := c.hub.svc.Overlays(ctx, overlay.Request{
		Symbol: sub.Symbol,
		TF:     sub.TF,
		Specs:  sub.Specs,
		Preset: sub.Preset,
		Window: sub.Window,
	})
	if err != nil {
		c.sendError(reqID, err.Error())
		return
	}
	key := model.SeriesKey(sub.Symbol, sub.TF)
	last := model.LastTime(resp.Candles)
	if prev, ok := c.lastSent[key]; ok && reqID == "" && last < prev {
		slog.Debug("ws stale refresh dropped", "series", key, "last", last, "sent", prev)
		return
	}
	if !since.IsZero() {
		c.hub.Latency.Observe(time.Since(since))
	}
	c.lastSent[key] = last
	if c.sendJSON(OverlaysMsg{Type: "overlays", ReqID: reqID, Response: resp}) && c.hub.prom != nil {
		c.hub.prom.WSPushesTotal.Inc()
	}
}

func (c *Client) sendJSON(v any) bool {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("ws json marshal failed", "error", err)
		return false
	}
	return c.hub.enqueue(c, data)
}

func (c *Client) sendError(reqID, msg string) {
	c.sendJSON(ErrorMsg{Type: "error", ReqID: reqID, Error: msg})
}
