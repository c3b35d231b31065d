package config

import "time"

// StreamerConfig is the root configuration for a streamer instance.
type StreamerConfig struct {
	Instance InstanceConfig `yaml:"instance"`
	API      APIConfig      `yaml:"api"`
	Stream   StreamConfig   `yaml:"stream"`
	UserData UserDataConfig `yaml:"user_data"`
	Symbols  []string       `yaml:"symbols"`
	Capture  CaptureConfig  `yaml:"capture"`
	Database DatabaseConfig `yaml:"database"`
	Health   HealthConfig   `yaml:"health"`
}

// InstanceConfig identifies this streamer.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// APIConfig holds MEXC API settings.
type APIConfig struct {
	RestURL    string        `yaml:"rest_url"`
	WSURL      string        `yaml:"ws_url"`
	APIKey     string        `yaml:"api_key"`    // X-MEXC-APIKEY header value
	SecretKey  string        `yaml:"secret_key"` // HMAC signing key for private endpoints
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// StreamConfig holds public market-data socket settings.
type StreamConfig struct {
	// Interval is the server-side aggregation interval for the aggre.*
	// channels ("100ms" or "10ms").
	Interval string `yaml:"interval"`

	HandshakeTimeout     time.Duration `yaml:"handshake_timeout"`
	WriteTimeout         time.Duration `yaml:"write_timeout"`
	PingInterval         time.Duration `yaml:"ping_interval"`
	PongTimeout          time.Duration `yaml:"pong_timeout"`
	HealthCheckInterval  time.Duration `yaml:"health_check_interval"`
	MaxReconnectInterval time.Duration `yaml:"max_reconnect_interval"`
}

// UserDataConfig holds account event stream settings.
type UserDataConfig struct {
	Enabled           bool          `yaml:"enabled"`
	KeepAliveInterval time.Duration `yaml:"keepalive_interval"`
}

// CaptureConfig holds raw frame capture settings.
type CaptureConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// DatabaseConfig holds the TimescaleDB connection for captured frames and
// decoded events.
type DatabaseConfig struct {
	Timescale DBConfig `yaml:"timescale"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// HealthConfig holds the HTTP health endpoint settings.
type HealthConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}
