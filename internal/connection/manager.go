package connection

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quantex/mexc-stream/internal/model"
)

// Manager owns a single WebSocket connection.
type Manager interface {
	// Connect establishes the connection. It returns once the transport
	// reports open, or with the transport error that ended the attempt.
	Connect(ctx context.Context) error

	// Disconnect closes the connection. Idempotent, safe before Connect.
	Disconnect()

	// Send writes raw bytes to the connection.
	Send(data []byte) error

	// IsConnected reports whether the socket is currently open.
	IsConnected() bool

	// Status returns the current lifecycle state.
	Status() model.ConnectionState
}

// manager implements the Manager interface. A manager is single-use: after
// Disconnect (or a fatal socket error) the owner builds a fresh one.
type manager struct {
	cfg    Config
	logger *slog.Logger

	conn *websocket.Conn

	// Write serialization
	writeMu sync.Mutex

	// State
	mu       sync.RWMutex
	state    model.ConnectionState
	closed   bool
	lastPong time.Time

	done     chan struct{}
	downOnce sync.Once
}

// NewManager creates a connection Manager. The configured handlers must be
// set before Connect; they are not safe to swap afterwards.
func NewManager(cfg Config, logger *slog.Logger) Manager {
	if logger == nil {
		logger = slog.Default()
	}

	return &manager{
		cfg:    cfg,
		logger: logger,
		state:  model.StateDisconnected,
		done:   make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection.
func (m *manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrAlreadyClosed
	}
	if m.state != model.StateDisconnected {
		m.mu.Unlock()
		return ErrAlreadyConnected
	}
	m.state = model.StateConnecting
	m.mu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: m.cfg.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, m.cfg.URL, nil)
	if err != nil {
		m.mu.Lock()
		m.state = model.StateError
		m.mu.Unlock()
		return fmt.Errorf("dial %s: %w", m.cfg.URL, err)
	}

	m.mu.Lock()
	if m.closed {
		// Disconnect raced the dial; drop the socket quietly.
		m.mu.Unlock()
		conn.Close()
		return ErrAlreadyClosed
	}
	m.conn = conn
	m.state = model.StateConnected
	m.lastPong = time.Now()
	m.mu.Unlock()

	conn.SetPongHandler(func(string) error {
		m.mu.Lock()
		m.lastPong = time.Now()
		m.mu.Unlock()
		return nil
	})

	conn.SetPingHandler(func(data string) error {
		m.mu.Lock()
		m.lastPong = time.Now()
		m.mu.Unlock()
		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(time.Second),
		)
	})

	go m.readLoop(conn)
	go m.keepaliveLoop(conn)

	m.logger.Debug("websocket connected", "url", m.cfg.URL)

	return nil
}

// Disconnect closes the connection and stops all loops.
func (m *manager) Disconnect() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.state = model.StateDisconnected
	conn := m.conn
	m.mu.Unlock()

	close(m.done)

	if conn != nil {
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		conn.Close()
	}
}

// Send writes raw bytes to the connection.
func (m *manager) Send(data []byte) error {
	m.mu.RLock()
	conn := m.conn
	connected := m.state == model.StateConnected
	m.mu.RUnlock()

	if !connected || conn == nil {
		return ErrNotConnected
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// IsConnected returns true while the socket is open.
func (m *manager) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == model.StateConnected
}

// Status returns the current lifecycle state.
func (m *manager) Status() model.ConnectionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// readLoop reads frames and hands them to the frame handler synchronously.
func (m *manager) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.handleDown(err)
			return
		}

		select {
		case <-m.done:
			return
		default:
		}

		if m.cfg.OnFrame != nil {
			m.cfg.OnFrame(data)
		}
	}
}

// handleDown records why the socket died and notifies the owner once.
// Deliberate Disconnect ends the read loop without firing the handler.
func (m *manager) handleDown(err error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		m.state = model.StateDisconnected
	} else {
		m.state = model.StateError
	}
	conn := m.conn
	m.mu.Unlock()

	close(m.done)
	if conn != nil {
		conn.Close()
	}

	m.downOnce.Do(func() {
		m.logger.Warn("websocket down", "url", m.cfg.URL, "error", err)
		if m.cfg.OnDown != nil {
			m.cfg.OnDown(err)
		}
	})
}

// keepaliveLoop sends pings and watches for a stale socket.
func (m *manager) keepaliveLoop(conn *websocket.Conn) {
	interval := m.cfg.PingInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(m.cfg.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				m.logger.Debug("failed to send ping", "error", err)
			}

			m.mu.RLock()
			lastPong := m.lastPong
			m.mu.RUnlock()

			if m.cfg.PongTimeout > 0 && time.Since(lastPong) > m.cfg.PongTimeout {
				m.logger.Warn("no pong received, closing stale connection",
					"last_pong", lastPong,
					"timeout", m.cfg.PongTimeout,
				)
				// Closing the socket makes the read loop fail, which reports
				// ErrStaleConnection-style downtime through handleDown.
				conn.Close()
				return
			}
		}
	}
}
