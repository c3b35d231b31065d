package connection

import (
	"errors"
	"time"

	json "github.com/goccy/go-json"
)

// Errors
var (
	ErrNotConnected     = errors.New("not connected")
	ErrAlreadyClosed    = errors.New("already closed")
	ErrAlreadyConnected = errors.New("connect already attempted")
	ErrStaleConnection  = errors.New("connection stale (no pong)")
)

// Subscribe envelope methods.
const (
	MethodSubscribe   = "SUBSCRIPTION"
	MethodUnsubscribe = "UNSUBSCRIPTION"
)

// Request is the JSON envelope sent on the socket for channel management.
type Request struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
}

// Encode marshals the envelope for the wire.
func (r Request) Encode() ([]byte, error) {
	return json.Marshal(r)
}

// Config configures a connection Manager.
type Config struct {
	URL              string        // WebSocket URL (e.g. wss://wbs.mexc.com/ws)
	HandshakeTimeout time.Duration // Dial handshake deadline
	WriteTimeout     time.Duration // Write deadline for sends
	PingInterval     time.Duration // Keepalive ping cadence
	PongTimeout      time.Duration // Max silence before the socket is considered stale

	// OnFrame receives every raw frame, invoked synchronously on the read
	// loop. It must not block for long.
	OnFrame func(frame []byte)

	// OnDown fires once when the socket dies without a Disconnect call.
	// Deliberate Disconnect never triggers it.
	OnDown func(err error)
}

// DefaultConfig returns sensible defaults; URL and handlers must still be set.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		PingInterval:     15 * time.Second,
		PongTimeout:      60 * time.Second,
	}
}
