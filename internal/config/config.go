package config

import "time"

// HubConfig is the top-level configuration for the quote hub.
type HubConfig struct {
	Instance   InstanceConfig   `yaml:"instance"`
	Feed       FeedConfig       `yaml:"feed"`
	Enrichment EnrichmentConfig `yaml:"enrichment"`
	Session    SessionConfig    `yaml:"session"`
	Server     ServerConfig     `yaml:"server"`
	Status     StatusConfig     `yaml:"status"`
	Recorder   RecorderConfig   `yaml:"recorder"`
}

// InstanceConfig identifies this hub instance.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// FeedConfig configures the upstream streaming connection.
type FeedConfig struct {
	URL            string        `yaml:"url"`
	Key            string        `yaml:"key"`
	Secret         string        `yaml:"secret"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	PingTimeout    time.Duration `yaml:"ping_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	BufferSize     int           `yaml:"buffer_size"`
}

// EnrichmentConfig configures the cold-start data sources.
type EnrichmentConfig struct {
	DataURL       string        `yaml:"data_url"`  // primary REST quote/bars API
	ChartURL      string        `yaml:"chart_url"` // secondary chart API
	Timeout       time.Duration `yaml:"timeout"`
	MaxRetries    int           `yaml:"max_retries"`
	BarsTimeframe string        `yaml:"bars_timeframe"`
	BarsLimit     int           `yaml:"bars_limit"`
}

// SessionConfig configures the market session classifier.
type SessionConfig struct {
	Timezone string `yaml:"timezone"`
}

// ServerConfig configures the downstream WebSocket gateway.
type ServerConfig struct {
	Addr           string `yaml:"addr"`
	SendBufferSize int    `yaml:"send_buffer_size"` // per-subscriber outbound queue
}

// StatusConfig configures the operational status/health HTTP server.
type StatusConfig struct {
	Port int `yaml:"port"`
}

// RecorderConfig configures optional persistence of live quote events.
type RecorderConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
	Database      DBConfig      `yaml:"database"`
}

// DBConfig holds PostgreSQL connection parameters.
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
