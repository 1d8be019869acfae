package redis

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"trading-overlays/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const candlesChannelPrefix = "pub:candles:"

// CandlesChannel returns the PubSub channel announcing new candles for a series.
//
//	pub:candles:{symbol}:{tf}s
func CandlesChannel(symbol string, tf int) string {
	return candlesChannelPrefix + model.SeriesKey(symbol, tf)
}

// ParseCandlesChannel splits a candles channel back into symbol and timeframe.
// The timeframe is the last segment, so symbols may contain ':'.
func ParseCandlesChannel(channel string) (symbol string, tf int, ok bool) {
	rest, found := strings.CutPrefix(channel, candlesChannelPrefix)
	if !found {
		return "", 0, false
	}
	i := strings.LastIndexByte(rest, ':')
	if i <= 0 {
		return "", 0, false
	}
	tf, err := strconv.Atoi(strings.TrimSuffix(rest[i+1:], "s"))
	if err != nil || tf <= 0 {
		return "", 0, false
	}
	return rest[:i], tf, true
}

// CandlesUpdate is the payload published after candles are ingested.
type CandlesUpdate struct {
	Symbol string     `json:"symbol"`
	TF     int        `json:"tf"`
	Last   model.Time `json:"last"`
}

// Publisher announces ingested candles to every gateway instance.
//
// While the circuit breaker is open, announcements are held per series
// (newest wins) and flushed once the breaker closes again.
type Publisher struct {
	client *goredis.Client
	cb     *CircuitBreaker
	ctx    context.Context

	mu      sync.Mutex
	pending map[string]CandlesUpdate

	// OnFlush is called after held announcements are re-published (for tests).
	OnFlush func(count int)
}

// NewPublisher creates a Publisher. ctx bounds background flushes.
func NewPublisher(ctx context.Context, client *goredis.Client, cb *CircuitBreaker) *Publisher {
	p := &Publisher{
		client:  client,
		cb:      cb,
		ctx:     ctx,
		pending: make(map[string]CandlesUpdate),
	}

	prev := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prev != nil {
			prev(from, to)
		}
		if to == StateClosed {
			go p.flush()
		}
	}
	return p
}

// NotifyCandles publishes a CandlesUpdate for the series.
func (p *Publisher) NotifyCandles(ctx context.Context, symbol string, tf int, last model.Time) error {
	upd := CandlesUpdate{Symbol: symbol, TF: tf, Last: last}
	err := p.cb.Execute(func() error { return p.publish(ctx, upd) })
	if errors.Is(err, ErrCircuitOpen) {
		p.hold(upd)
		return nil
	}
	return err
}

func (p *Publisher) publish(ctx context.Context, upd CandlesUpdate) error {
	data, err := json.Marshal(upd)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, CandlesChannel(upd.Symbol, upd.TF), data).Err()
}

func (p *Publisher) hold(upd CandlesUpdate) {
	p.mu.Lock()
	p.pending[model.SeriesKey(upd.Symbol, upd.TF)] = upd
	p.mu.Unlock()
}

// PendingCount returns the number of series waiting to be announced.
func (p *Publisher) PendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

func (p *Publisher) flush() {
	p.mu.Lock()
	if len(p.pending) == 0 {
		p.mu.Unlock()
		return
	}
	toFlush := p.pending
	p.pending = make(map[string]CandlesUpdate)
	p.mu.Unlock()

	flushed := 0
	for _, upd := range toFlush {
		if err := p.publish(p.ctx, upd); err != nil {
			slog.Warn("held candle announcement dropped", "series", model.SeriesKey(upd.Symbol, upd.TF), "error", err)
			continue
		}
		flushed++
	}
	slog.Info("flushed held candle announcements", "count", flushed)
	if p.OnFlush != nil {
		p.OnFlush(flushed)
	}
}

// Subscribe pattern-subscribes to every candles channel and calls fn for each
// well-formed update. Blocks until ctx is cancelled.
func Subscribe(ctx context.Context, client *goredis.Client, fn func(CandlesUpdate)) {
	pubsub := client.PSubscribe(ctx, candlesChannelPrefix+"*")
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			upd, ok := decodeUpdate(msg.Channel, msg.Payload)
			if !ok {
				slog.Debug("ignoring malformed candles message", "channel", msg.Channel)
				continue
			}
			fn(upd)
		}
	}
}

// decodeUpdate trusts the channel name for the series identity.
func decodeUpdate(channel, payload string) (CandlesUpdate, bool) {
	symbol, tf, ok := ParseCandlesChannel(channel)
	if !ok {
		return CandlesUpdate{}, false
	}
	var upd CandlesUpdate
	if err := json.Unmarshal([]byte(payload), &upd); err != nil {
		return CandlesUpdate{}, false
	}
	upd.Symbol, upd.TF = symbol, tf
	return upd, true
}

var _ model.UpdateNotifier = (*Publisher)(nil)
