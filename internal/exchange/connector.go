package exchange

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/quantex/mexc-stream/internal/connection"
	"github.com/quantex/mexc-stream/internal/decode"
	"github.com/quantex/mexc-stream/internal/model"
	"github.com/quantex/mexc-stream/internal/subscription"
	"github.com/quantex/mexc-stream/internal/userdata"
)

// Errors
var (
	ErrClosed           = errors.New("connector closed")
	ErrNoUserDataStream = errors.New("connector has no user data stream")
)

// Pinger is the slice of the REST client the connector needs for its
// connectivity probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config configures a Connector.
type Config struct {
	WSURL string // Public market-data socket, e.g. wss://wbs.mexc.com/ws

	// Interval is the server-side aggregation interval for ticker and
	// trade channels; empty means the channel default.
	Interval string

	// HealthCheckInterval is how often the public socket is probed.
	HealthCheckInterval time.Duration

	// MaxReconnectInterval caps the public reconnect backoff.
	MaxReconnectInterval time.Duration

	// Connection is the socket template; URL and handlers are filled in
	// per session.
	Connection connection.Config

	// OnEvent observes every decoded event before dispatch. Used to feed
	// the capture store; nil disables it.
	OnEvent func(ev model.Event)
}

// DefaultConfig returns defaults; WSURL must still be set.
func DefaultConfig() Config {
	return Config{
		HealthCheckInterval:  30 * time.Second,
		MaxReconnectInterval: 30 * time.Second,
		Connection:           connection.DefaultConfig(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.HealthCheckInterval <= 0 {
		c.HealthCheckInterval = d.HealthCheckInterval
	}
	if c.MaxReconnectInterval <= 0 {
		c.MaxReconnectInterval = d.MaxReconnectInterval
	}
	if c.Connection.HandshakeTimeout <= 0 {
		c.Connection = connection.DefaultConfig()
	}
	return c
}

// Connector is the single entry point for both public market data and
// private account events.
type Connector struct {
	cfg      Config
	pinger   Pinger
	user     *userdata.Manager
	registry *subscription.Registry
	logger   *slog.Logger

	// dial builds a socket manager per session. Tests swap it out.
	dial func(connection.Config) connection.Manager

	mu   sync.Mutex
	conn connection.Manager

	closed       atomic.Bool
	reconnecting atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewConnector creates a Connector. pinger may be nil to skip the REST
// probe, and user may be nil when account events are not needed. A nil
// logger falls back to slog.Default().
func NewConnector(cfg Config, pinger Pinger, user *userdata.Manager, logger *slog.Logger) *Connector {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Connector{
		cfg:    cfg.withDefaults(),
		pinger: pinger,
		user:   user,
		logger: logger,
	}
	c.registry = subscription.NewRegistry(c.IsConnected, logger)
	c.dial = func(cc connection.Config) connection.Manager {
		return connection.NewManager(cc, logger)
	}
	return c
}

// Connect probes the REST API and opens the public market-data socket.
func (c *Connector) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}

	if c.pinger != nil {
		if err := c.pinger.Ping(ctx); err != nil {
			return fmt.Errorf("rest ping: %w", err)
		}
	}

	return c.ConnectWebSocket(ctx)
}

// ConnectWebSocket opens the public socket and starts the health monitor.
func (c *Connector) ConnectWebSocket(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}

	c.ctx, c.cancel = context.WithCancel(context.Background())

	if err := c.openSocket(ctx, nil); err != nil {
		return err
	}

	c.wg.Add(1)
	go c.healthLoop()

	return nil
}

// openSocket dials a fresh public socket and replays the given channels.
// The previous socket, if any, is torn down after the swap.
func (c *Connector) openSocket(ctx context.Context, channels []string) error {
	cc := c.cfg.Connection
	cc.URL = c.cfg.WSURL
	cc.OnFrame = c.handleFrame
	cc.OnDown = c.handleDown

	conn := c.dial(cc)
	if err := conn.Connect(ctx); err != nil {
		return fmt.Errorf("dial market data socket: %w", err)
	}

	for _, channel := range channels {
		if err := sendEnvelope(conn, connection.MethodSubscribe, channel); err != nil {
			conn.Disconnect()
			return fmt.Errorf("replay channel %s: %w", channel, err)
		}
	}

	c.mu.Lock()
	old := c.conn
	c.conn = conn
	c.mu.Unlock()

	if old != nil {
		old.Disconnect()
	}

	c.logger.Info("market data socket connected", "replayed_channels", len(channels))
	return nil
}

func sendEnvelope(conn connection.Manager, method, channel string) error {
	data, err := connection.Request{Method: method, Params: []string{channel}}.Encode()
	if err != nil {
		return err
	}
	return conn.Send(data)
}

// handleFrame decodes one raw frame and fans the event out.
func (c *Connector) handleFrame(frame []byte) {
	ev := decode.Decode(frame)

	if c.cfg.OnEvent != nil {
		c.cfg.OnEvent(ev)
	}

	switch ev.Kind {
	case model.EventDecodeError:
		c.logger.Warn("frame not decodable", "reason", ev.Err.Reason, "size", len(ev.Err.Raw))
	case model.EventUnknown:
		c.logger.Debug("unclassified frame", "channel", ev.Channel)
	default:
		c.registry.Dispatch(ev)
	}
}

// handleDown fires when the public socket dies underneath us.
func (c *Connector) handleDown(err error) {
	if c.closed.Load() {
		return
	}
	c.logger.Warn("market data socket down", "error", err)
	c.triggerReconnect()
}

// triggerReconnect starts the reconnect loop unless one is running.
func (c *Connector) triggerReconnect() {
	if !c.reconnecting.CompareAndSwap(false, true) {
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.reconnecting.Store(false)
		c.reconnectLoop()
	}()
}

// reconnectLoop retries the public socket with exponential backoff,
// replaying every channel that was active before the drop.
func (c *Connector) reconnectLoop() {
	channels := c.registry.Channels()

	backoffCfg := backoff.NewExponentialBackOff()
	backoffCfg.MaxInterval = c.cfg.MaxReconnectInterval

	for attempt := 1; ; attempt++ {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		ctx, cancel := context.WithTimeout(c.ctx, 30*time.Second)
		err := c.openSocket(ctx, channels)
		cancel()
		if err == nil {
			c.logger.Info("market data socket reconnected",
				"attempts", attempt,
				"channels", len(channels),
			)
			return
		}

		sleep := backoffCfg.NextBackOff()
		if sleep == backoff.Stop {
			sleep = c.cfg.MaxReconnectInterval
		}
		c.logger.Warn("market data reconnect failed",
			"attempt", attempt,
			"retry_in", sleep,
			"error", err,
		)

		select {
		case <-c.ctx.Done():
			return
		case <-time.After(sleep):
		}
	}
}

// healthLoop probes the public socket and reconnects dead ones.
func (c *Connector) healthLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
		}

		if c.closed.Load() {
			return
		}
		if !c.IsConnected() {
			c.logger.Warn("market data health check failed, reconnecting")
			c.triggerReconnect()
		}
	}
}

// subscribe registers a callback and sends the SUBSCRIPTION envelope.
// When the send fails the registration is rolled back, so a returned id
// always corresponds to a channel the server was asked for.
func (c *Connector) subscribe(kind model.SubscriptionKind, symbol, channel string, cb subscription.Callback) (string, error) {
	id, err := c.registry.Subscribe(kind, symbol, channel, cb)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		c.registry.Unsubscribe(id)
		return "", subscription.ErrNotConnected
	}

	if err := sendEnvelope(conn, connection.MethodSubscribe, channel); err != nil {
		c.registry.Unsubscribe(id)
		return "", fmt.Errorf("subscribe %s: %w", channel, err)
	}

	return id, nil
}

// SubscribeTicker streams best bid/offer updates for a symbol.
func (c *Connector) SubscribeTicker(symbol string, cb func(model.TickerUpdate)) (string, error) {
	return c.subscribe(model.KindTicker, symbol, subscription.TickerChannel(symbol, c.cfg.Interval),
		func(ev model.Event) {
			if ev.Ticker != nil {
				cb(*ev.Ticker)
			}
		})
}

// SubscribeOrderBook streams batched book snapshots for a symbol.
func (c *Connector) SubscribeOrderBook(symbol string, cb func(model.TickerUpdate)) (string, error) {
	return c.subscribe(model.KindOrderBook, symbol, subscription.OrderBookChannel(symbol),
		func(ev model.Event) {
			if ev.Ticker != nil {
				cb(*ev.Ticker)
			}
		})
}

// SubscribeTrades streams public trades for a symbol.
func (c *Connector) SubscribeTrades(symbol string, cb func([]model.TradeUpdate)) (string, error) {
	return c.subscribe(model.KindTrades, symbol, subscription.TradesChannel(symbol, c.cfg.Interval),
		func(ev model.Event) {
			if len(ev.Trades) > 0 {
				cb(ev.Trades)
			}
		})
}

// Unsubscribe removes a subscription and tells the server to stop the
// channel when no other subscription still needs it. Unknown ids are a
// logged no-op.
func (c *Connector) Unsubscribe(id string) {
	sub := c.registry.Unsubscribe(id)
	if sub == nil || sub.Channel == "" {
		return
	}

	// Another subscription may share the channel.
	for _, active := range c.registry.Channels() {
		if active == sub.Channel {
			return
		}
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil || !conn.IsConnected() {
		return
	}

	// Best effort. The server drops the channel with the socket anyway.
	if err := sendEnvelope(conn, connection.MethodUnsubscribe, sub.Channel); err != nil {
		c.logger.Warn("unsubscribe send failed", "channel", sub.Channel, "error", err)
	}
}

// ConnectUserDataStream opens the authenticated account event stream.
func (c *Connector) ConnectUserDataStream(ctx context.Context) error {
	if c.user == nil {
		return ErrNoUserDataStream
	}
	return c.user.Connect(ctx)
}

// SubscribeUserOrders streams the account's order status updates.
func (c *Connector) SubscribeUserOrders(cb func(model.OrderUpdate)) (string, error) {
	if c.user == nil {
		return "", ErrNoUserDataStream
	}
	return c.user.SubscribeOrders(cb)
}

// SubscribeUserTrades streams the account's executions. Status-only
// order updates are filtered out.
func (c *Connector) SubscribeUserTrades(cb func(model.OrderUpdate)) (string, error) {
	if c.user == nil {
		return "", ErrNoUserDataStream
	}
	return c.user.SubscribeTrades(cb)
}

// IsConnected reports whether the public socket is up.
func (c *Connector) IsConnected() bool {
	if c.closed.Load() {
		return false
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	return conn != nil && conn.IsConnected()
}

// IsUserDataStreamConnected reports whether the account stream is up.
func (c *Connector) IsUserDataStreamConnected() bool {
	return c.user != nil && c.user.IsConnected()
}

// WebSocketStatus returns the public socket's connection state.
func (c *Connector) WebSocketStatus() model.ConnectionState {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return model.StateDisconnected
	}
	return conn.Status()
}

// DisconnectWebSocket closes the public socket and clears all public
// subscriptions.
func (c *Connector) DisconnectWebSocket() {
	if c.cancel != nil {
		c.cancel()
	}

	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		conn.Disconnect()
	}

	c.registry.Clear()
}

// Disconnect tears down both sockets. The connector cannot be reused
// afterwards.
func (c *Connector) Disconnect() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}

	c.DisconnectWebSocket()
	if c.user != nil {
		c.user.Disconnect()
	}
	c.wg.Wait()

	c.logger.Info("connector disconnected")
}
