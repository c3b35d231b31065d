package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultRestURL              = "https://api.mexc.com"
	DefaultWSURL                = "wss://wbs.mexc.com/ws"
	DefaultAPITimeout           = 30 * time.Second
	DefaultMaxRetries           = 3
	DefaultInterval             = "100ms"
	DefaultHandshakeTimeout     = 10 * time.Second
	DefaultWriteTimeout         = 5 * time.Second
	DefaultPingInterval         = 15 * time.Second
	DefaultPongTimeout          = 60 * time.Second
	DefaultHealthCheckInterval  = 30 * time.Second
	DefaultMaxReconnectInterval = 30 * time.Second
	DefaultKeepAliveInterval    = 30 * time.Minute
	DefaultDBPort               = 5432
	DefaultDBSSLMode            = "prefer"
	DefaultMaxConns             = 10
	DefaultMinConns             = 2
	DefaultBatchSize            = 1000
	DefaultFlushInterval        = 1 * time.Second
	DefaultHealthPort           = 8080
	DefaultHealthPath           = "/healthz"
)

func (c *StreamerConfig) applyDefaults() {
	// API defaults
	if c.API.RestURL == "" {
		c.API.RestURL = DefaultRestURL
	}
	if c.API.WSURL == "" {
		c.API.WSURL = DefaultWSURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = DefaultMaxRetries
	}

	// Stream defaults
	if c.Stream.Interval == "" {
		c.Stream.Interval = DefaultInterval
	}
	if c.Stream.HandshakeTimeout == 0 {
		c.Stream.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Stream.WriteTimeout == 0 {
		c.Stream.WriteTimeout = DefaultWriteTimeout
	}
	if c.Stream.PingInterval == 0 {
		c.Stream.PingInterval = DefaultPingInterval
	}
	if c.Stream.PongTimeout == 0 {
		c.Stream.PongTimeout = DefaultPongTimeout
	}
	if c.Stream.HealthCheckInterval == 0 {
		c.Stream.HealthCheckInterval = DefaultHealthCheckInterval
	}
	if c.Stream.MaxReconnectInterval == 0 {
		c.Stream.MaxReconnectInterval = DefaultMaxReconnectInterval
	}

	// User data defaults
	if c.UserData.KeepAliveInterval == 0 {
		c.UserData.KeepAliveInterval = DefaultKeepAliveInterval
	}

	// Capture defaults
	if c.Capture.BatchSize == 0 {
		c.Capture.BatchSize = DefaultBatchSize
	}
	if c.Capture.FlushInterval == 0 {
		c.Capture.FlushInterval = DefaultFlushInterval
	}

	// Database defaults
	applyDBDefaults(&c.Database.Timescale)

	// Health defaults
	if c.Health.Port == 0 {
		c.Health.Port = DefaultHealthPort
	}
	if c.Health.Path == "" {
		c.Health.Path = DefaultHealthPath
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
