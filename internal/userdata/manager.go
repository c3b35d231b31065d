package userdata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/quantex/mexc-stream/internal/connection"
	"github.com/quantex/mexc-stream/internal/decode"
	"github.com/quantex/mexc-stream/internal/model"
	"github.com/quantex/mexc-stream/internal/subscription"
)

// ErrClosed is returned from Connect after Disconnect; a closed manager is
// never reused.
var ErrClosed = errors.New("user data stream closed")

// ListenKeyClient is the slice of the REST client the stream needs.
type ListenKeyClient interface {
	CreateListenKey(ctx context.Context) (string, error)
	KeepAliveListenKey(ctx context.Context, key string) error
	DeleteListenKey(ctx context.Context, key string) error
}

// Config configures the user-data stream manager.
type Config struct {
	WSBaseURL string // e.g. wss://wbs.mexc.com/ws

	// KeepAliveInterval is the listen key renewal cadence. Keys expire
	// after 60 minutes of silence; renewing every 30 keeps headroom.
	KeepAliveInterval time.Duration

	// HealthCheckInterval is how often the socket is probed for life.
	HealthCheckInterval time.Duration

	// MaxReconnectInterval caps the reconnect backoff.
	MaxReconnectInterval time.Duration

	// Connection is the socket template; URL and handlers are filled in
	// per session.
	Connection connection.Config
}

// DefaultConfig returns defaults; WSBaseURL must still be set.
func DefaultConfig() Config {
	return Config{
		KeepAliveInterval:    30 * time.Minute,
		HealthCheckInterval:  30 * time.Second,
		MaxReconnectInterval: 30 * time.Second,
		Connection:           connection.DefaultConfig(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.KeepAliveInterval <= 0 {
		c.KeepAliveInterval = d.KeepAliveInterval
	}
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

// Manager owns the authenticated user-data socket: listen key lifecycle,
// keepalive renewal, reconnect with re-subscription, and callback
// dispatch for private order and execution events.
type Manager struct {
	cfg      Config
	client   ListenKeyClient
	registry *subscription.Registry
	logger   *slog.Logger

	// dial builds a socket manager per session. Tests swap it out.
	dial func(connection.Config) connection.Manager

	mu        sync.Mutex
	conn      connection.Manager
	listenKey string
	sessionID string

	closed       atomic.Bool
	reconnecting atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a user-data stream manager. A nil logger falls back
// to slog.Default().
func NewManager(cfg Config, client ListenKeyClient, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		cfg:    cfg.withDefaults(),
		client: client,
		logger: logger,
	}
	m.registry = subscription.NewRegistry(m.IsConnected, logger)
	m.dial = func(cc connection.Config) connection.Manager {
		return connection.NewManager(cc, logger)
	}
	return m
}

// Connect acquires a listen key, opens the socket and subscribes the
// private order channel. It also starts the keepalive and health loops.
func (m *Manager) Connect(ctx context.Context) error {
	if m.closed.Load() {
		return ErrClosed
	}

	m.ctx, m.cancel = context.WithCancel(context.Background())

	if err := m.openSession(ctx); err != nil {
		return err
	}

	m.wg.Add(2)
	go m.keepaliveLoop()
	go m.healthLoop()

	return nil
}

// openSession performs one full session setup: listen key, socket,
// order channel subscription. The previous session, if any, is torn down
// first.
func (m *Manager) openSession(ctx context.Context) error {
	key, err := m.client.CreateListenKey(ctx)
	if err != nil {
		return fmt.Errorf("acquire listen key: %w", err)
	}

	cc := m.cfg.Connection
	cc.URL = m.cfg.WSBaseURL + "?listenKey=" + key
	cc.OnFrame = m.handleFrame
	cc.OnDown = m.handleDown

	conn := m.dial(cc)
	if err := conn.Connect(ctx); err != nil {
		return fmt.Errorf("dial user data socket: %w", err)
	}

	req := connection.Request{
		Method: connection.MethodSubscribe,
		Params: []string{subscription.OrdersChannel()},
	}
	data, err := req.Encode()
	if err != nil {
		conn.Disconnect()
		return fmt.Errorf("encode subscribe: %w", err)
	}
	if err := conn.Send(data); err != nil {
		conn.Disconnect()
		return fmt.Errorf("subscribe order channel: %w", err)
	}

	session := uuid.New().String()

	m.mu.Lock()
	old := m.conn
	m.conn = conn
	m.listenKey = key
	m.sessionID = session
	m.mu.Unlock()

	if old != nil {
		old.Disconnect()
	}

	m.logger.Info("user data stream connected", "session", session)
	return nil
}

// handleFrame decodes a raw frame and fans it out to subscribers.
func (m *Manager) handleFrame(frame []byte) {
	ev := decode.Decode(frame)
	if ev.Kind == model.EventDecodeError {
		m.logger.Warn("user data frame not decodable", "reason", ev.Err.Reason)
	}
	m.registry.Dispatch(ev)
}

// handleDown fires when the socket dies underneath us, most commonly on
// listen key expiry.
func (m *Manager) handleDown(err error) {
	if m.closed.Load() {
		return
	}
	m.logger.Warn("user data socket down", "error", err)
	m.triggerReconnect()
}

// triggerReconnect starts the reconnect loop unless one is already
// running. Concurrent triggers from the down handler and the health loop
// collapse into a single attempt.
func (m *Manager) triggerReconnect() {
	if !m.reconnecting.CompareAndSwap(false, true) {
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.reconnecting.Store(false)
		m.reconnectLoop()
	}()
}

// reconnectLoop retries session setup with exponential backoff until it
// succeeds or the manager is closed.
func (m *Manager) reconnectLoop() {
	backoffCfg := backoff.NewExponentialBackOff()
	backoffCfg.MaxInterval = m.cfg.MaxReconnectInterval

	for attempt := 1; ; attempt++ {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		ctx, cancel := context.WithTimeout(m.ctx, 30*time.Second)
		err := m.openSession(ctx)
		cancel()
		if err == nil {
			m.logger.Info("user data stream reconnected", "attempts", attempt)
			return
		}

		sleep := backoffCfg.NextBackOff()
		if sleep == backoff.Stop {
			sleep = m.cfg.MaxReconnectInterval
		}
		m.logger.Warn("user data reconnect failed",
			"attempt", attempt,
			"retry_in", sleep,
			"error", err,
		)

		select {
		case <-m.ctx.Done():
			return
		case <-time.After(sleep):
		}
	}
}

// keepaliveLoop renews the listen key on a timer. A failed renewal is
// retried on the next tick; the health loop catches sockets the server
// closed in the meantime.
func (m *Manager) keepaliveLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
		}

		m.mu.Lock()
		key := m.listenKey
		m.mu.Unlock()
		if key == "" {
			continue
		}

		ctx, cancel := context.WithTimeout(m.ctx, 30*time.Second)
		err := m.client.KeepAliveListenKey(ctx, key)
		cancel()
		if err != nil {
			m.logger.Warn("listen key keepalive failed", "error", err)
			continue
		}
		m.logger.Debug("listen key renewed")
	}
}

// healthLoop probes the socket and triggers a reconnect when it finds it
// dead.
func (m *Manager) healthLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
		}

		if m.closed.Load() {
			return
		}
		if !m.IsConnected() {
			m.logger.Warn("user data health check failed, reconnecting")
			m.triggerReconnect()
		}
	}
}

// SubscribeOrders registers a callback for every order status update.
func (m *Manager) SubscribeOrders(cb func(model.OrderUpdate)) (string, error) {
	return m.registry.Subscribe(model.KindUserData, "", subscription.OrdersChannel(),
		func(ev model.Event) {
			if ev.Order != nil {
				cb(*ev.Order)
			}
		})
}

// SubscribeTrades registers a callback that only sees executions, order
// updates carrying an actual fill. Plain status changes are filtered out.
func (m *Manager) SubscribeTrades(cb func(model.OrderUpdate)) (string, error) {
	return m.registry.Subscribe(model.KindUserData, "", subscription.OrdersChannel(),
		func(ev model.Event) {
			if ev.Order != nil && ev.Order.IsExecution() {
				cb(*ev.Order)
			}
		})
}

// Unsubscribe removes a previously registered callback. Unknown ids are a
// logged no-op.
func (m *Manager) Unsubscribe(id string) {
	m.registry.Unsubscribe(id)
}

// IsConnected reports whether the user-data socket is currently up.
func (m *Manager) IsConnected() bool {
	if m.closed.Load() {
		return false
	}
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	return conn != nil && conn.IsConnected()
}

// Disconnect stops the loops, closes the socket and revokes the listen
// key. Revocation is best effort; the key ages out server-side anyway.
func (m *Manager) Disconnect() {
	if !m.closed.CompareAndSwap(false, true) {
		return
	}

	if m.cancel != nil {
		m.cancel()
	}

	m.mu.Lock()
	conn := m.conn
	key := m.listenKey
	m.conn = nil
	m.listenKey = ""
	m.mu.Unlock()

	if conn != nil {
		conn.Disconnect()
	}

	if key != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.client.DeleteListenKey(ctx, key); err != nil {
			m.logger.Debug("listen key revoke failed", "error", err)
		}
	}

	m.wg.Wait()
	m.registry.Clear()
	m.logger.Info("user data stream disconnected")
}
