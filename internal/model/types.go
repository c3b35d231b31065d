package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// -----------------------------------------------------------------------------
// Connection State
// -----------------------------------------------------------------------------

// ConnectionState describes the lifecycle state of a single WebSocket connection.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateError
)

// String returns the lowercase state name.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Order Lifecycle
// -----------------------------------------------------------------------------

// OrderStatus is the canonical order lifecycle state derived from a single
// frame, never from accumulated history.
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "new"
	OrderStatusOpen            OrderStatus = "open"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCancelled       OrderStatus = "cancelled"
	OrderStatusRejected        OrderStatus = "rejected"
)

// Side is the taker side of a trade or the side of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// -----------------------------------------------------------------------------
// Subscriptions
// -----------------------------------------------------------------------------

// SubscriptionKind identifies which channel family a subscription belongs to.
type SubscriptionKind string

const (
	KindTicker    SubscriptionKind = "ticker"
	KindTrades    SubscriptionKind = "trades"
	KindOrderBook SubscriptionKind = "orderbook"
	KindUserData  SubscriptionKind = "user_data"
)

// -----------------------------------------------------------------------------
// Decoded Events
// -----------------------------------------------------------------------------

// EventKind tags the variant carried by an Event.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventTicker
	EventTrade
	EventOrderUpdate
	EventDecodeError
)

// String returns the lowercase kind name.
func (k EventKind) String() string {
	switch k {
	case EventTicker:
		return "ticker"
	case EventTrade:
		return "trade"
	case EventOrderUpdate:
		return "order_update"
	case EventDecodeError:
		return "decode_error"
	default:
		return "unknown"
	}
}

// Event is the tagged result of decoding one raw frame. Exactly one payload
// field is set for its kind; Unknown carries only the channel (if one was
// recognized). Events are created fresh per frame and never mutated after
// construction.
type Event struct {
	Kind    EventKind
	Channel string // Channel token extracted from the frame, if any

	Ticker *TickerUpdate
	Trades []TradeUpdate // Empty slice on a deals frame means "no trade"
	Order  *OrderUpdate
	Err    *DecodeError
}

// TickerUpdate is a best bid/offer update for one symbol.
type TickerUpdate struct {
	Symbol string
	Bid    decimal.Decimal
	Ask    decimal.Decimal
	BidQty decimal.Decimal
	AskQty decimal.Decimal
}

// TradeUpdate is one executed public trade.
type TradeUpdate struct {
	Symbol    string
	Price     decimal.Decimal
	Qty       decimal.Decimal
	Side      Side
	Timestamp time.Time
}

// OrderUpdate is a private order lifecycle event.
type OrderUpdate struct {
	OrderID   string
	Symbol    string
	Price     decimal.Decimal
	Qty       decimal.Decimal
	FilledQty decimal.Decimal
	Amount    decimal.Decimal // Cumulative quote amount, 0 when not present
	Side      Side
	Status    OrderStatus
	Timestamp time.Time
}

// DecodeError reports a frame that could not be decoded. It is data, not a
// Go error: the read loop logs it, drops the frame, and keeps going.
type DecodeError struct {
	Raw     []byte
	Channel string
	Reason  string
}

// IsExecution reports whether the update represents a genuine fill rather
// than a bookkeeping transition. Used to gate user-trade callbacks.
func (o *OrderUpdate) IsExecution() bool {
	if o.Status == OrderStatusFilled {
		return true
	}
	if o.Status == OrderStatusPartiallyFilled && o.FilledQty.IsPositive() {
		return true
	}
	// Stale-status frames can still carry a positive fill ratio.
	if o.Amount.IsPositive() && o.FilledQty.IsPositive() {
		return true
	}
	return false
}
