package subscription

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/quantex/mexc-stream/internal/model"
)

// ErrNotConnected is returned when subscribe is attempted while the owning
// connection is down. No network call is made in that case.
var ErrNotConnected = errors.New("subscribe requires an active connection")

// Callback receives decoded events for a subscription, invoked synchronously
// on the frame-receive path. Callbacks must not block for long.
type Callback func(ev model.Event)

// Subscription is one registered listener.
type Subscription struct {
	ID       string
	Kind     model.SubscriptionKind
	Symbol   string // Normalized ("BTCUSDT"); empty means all symbols
	Channel  string // Channel string sent to the exchange, if any
	Callback Callback
}

// Registry holds the active subscriptions of a single connector instance.
// Ids are unique for the lifetime of the instance.
type Registry struct {
	logger    *slog.Logger
	connected func() bool

	mu   sync.RWMutex
	subs map[string]*Subscription
	seq  atomic.Uint64
}

// NewRegistry creates a Registry. The connected probe gates subscribe calls;
// a nil probe permits everything (used by tests).
func NewRegistry(connected func() bool, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger:    logger,
		connected: connected,
		subs:      make(map[string]*Subscription),
	}
}

// Subscribe registers a callback and returns its id. Fails with
// ErrNotConnected when the owning connection is down.
func (r *Registry) Subscribe(kind model.SubscriptionKind, symbol, channel string, cb Callback) (string, error) {
	if r.connected != nil && !r.connected() {
		return "", ErrNotConnected
	}

	normalized := NormalizeSymbol(symbol)
	id := r.nextID(kind, normalized)

	sub := &Subscription{
		ID:       id,
		Kind:     kind,
		Symbol:   normalized,
		Channel:  channel,
		Callback: cb,
	}

	r.mu.Lock()
	r.subs[id] = sub
	r.mu.Unlock()

	r.logger.Debug("subscription registered", "id", id, "channel", channel)
	return id, nil
}

// Unsubscribe removes a subscription and returns it, or nil when the id is
// unknown. An unknown id only logs a warning; it is never an error.
func (r *Registry) Unsubscribe(id string) *Subscription {
	r.mu.Lock()
	sub, ok := r.subs[id]
	if ok {
		delete(r.subs, id)
	}
	r.mu.Unlock()

	if !ok {
		r.logger.Warn("unsubscribe for unknown id", "id", id)
		return nil
	}

	r.logger.Debug("subscription removed", "id", id)
	return sub
}

// Dispatch routes a decoded event to every matching subscription. Unknown
// and decode-error events reach nobody.
func (r *Registry) Dispatch(ev model.Event) {
	kind, symbol, ok := routeOf(ev)
	if !ok {
		return
	}

	r.mu.RLock()
	matches := make([]*Subscription, 0, len(r.subs))
	for _, sub := range r.subs {
		if sub.Kind != kind {
			continue
		}
		if sub.Symbol != "" && symbol != "" && sub.Symbol != symbol {
			continue
		}
		matches = append(matches, sub)
	}
	r.mu.RUnlock()

	for _, sub := range matches {
		sub.Callback(ev)
	}
}

// Clear removes every subscription. Used on connector teardown.
func (r *Registry) Clear() {
	r.mu.Lock()
	n := len(r.subs)
	r.subs = make(map[string]*Subscription)
	r.mu.Unlock()

	if n > 0 {
		r.logger.Debug("subscriptions cleared", "count", n)
	}
}

// Snapshot returns the active subscriptions. Used to re-subscribe after a
// reconnect.
func (r *Registry) Snapshot() []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Subscription, 0, len(r.subs))
	for _, sub := range r.subs {
		out = append(out, sub)
	}
	return out
}

// Channels returns the distinct channel strings of active subscriptions.
func (r *Registry) Channels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{}, len(r.subs))
	out := make([]string, 0, len(r.subs))
	for _, sub := range r.subs {
		if sub.Channel == "" {
			continue
		}
		if _, dup := seen[sub.Channel]; dup {
			continue
		}
		seen[sub.Channel] = struct{}{}
		out = append(out, sub.Channel)
	}
	return out
}

// Len returns the number of active subscriptions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// nextID generates "{kind}_{symbol}_{n}", or "{kind}_{n}" for channels
// without a symbol.
func (r *Registry) nextID(kind model.SubscriptionKind, normalized string) string {
	n := r.seq.Add(1)
	if normalized == "" {
		return fmt.Sprintf("%s_%d", kind, n)
	}
	return fmt.Sprintf("%s_%s_%d", kind, normalized, n)
}

// routeOf maps a decoded event to the subscription kind it belongs to and
// the symbol it carries.
func routeOf(ev model.Event) (model.SubscriptionKind, string, bool) {
	switch ev.Kind {
	case model.EventTicker:
		kind := model.KindTicker
		if isBatchChannel(ev.Channel) {
			kind = model.KindOrderBook
		}
		return kind, NormalizeSymbol(ev.Ticker.Symbol), true
	case model.EventTrade:
		symbol := ""
		if len(ev.Trades) > 0 {
			symbol = NormalizeSymbol(ev.Trades[0].Symbol)
		}
		return model.KindTrades, symbol, true
	case model.EventOrderUpdate:
		return model.KindUserData, NormalizeSymbol(ev.Order.Symbol), true
	default:
		return "", "", false
	}
}

// isBatchChannel distinguishes the batched book snapshot channel from the
// aggregated bookTicker channel; both decode to ticker events.
func isBatchChannel(channel string) bool {
	return strings.Contains(channel, "bookTicker.batch")
}
