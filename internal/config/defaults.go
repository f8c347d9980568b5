package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultFeedURL        = "wss://stream.data.alpaca.markets/v2/iex"
	DefaultDataURL        = "https://data.alpaca.markets"
	DefaultChartURL       = "https://query1.finance.yahoo.com"
	DefaultReconnectDelay = 5 * time.Second
	DefaultPingTimeout    = 60 * time.Second
	DefaultWriteTimeout   = 5 * time.Second
	DefaultFeedBufferSize = 10000

	DefaultEnrichTimeout  = 10 * time.Second
	DefaultMaxRetries     = 2
	DefaultBarsTimeframe  = "1Min"
	DefaultBarsLimit      = 10

	DefaultTimezone = "America/New_York"

	DefaultServerAddr     = ":8080"
	DefaultSendBufferSize = 256

	DefaultStatusPort = 9090

	DefaultBatchSize     = 500
	DefaultFlushInterval = time.Second
	DefaultBufferSize    = 10000
	DefaultDBPort        = 5432
	DefaultDBSSLMode     = "prefer"
	DefaultMaxConns      = 10
	DefaultMinConns      = 2
)

func (c *HubConfig) applyDefaults() {
	// Feed defaults
	if c.Feed.URL == "" {
		c.Feed.URL = DefaultFeedURL
	}
	if c.Feed.ReconnectDelay == 0 {
		c.Feed.ReconnectDelay = DefaultReconnectDelay
	}
	if c.Feed.PingTimeout == 0 {
		c.Feed.PingTimeout = DefaultPingTimeout
	}
	if c.Feed.WriteTimeout == 0 {
		c.Feed.WriteTimeout = DefaultWriteTimeout
	}
	if c.Feed.BufferSize == 0 {
		c.Feed.BufferSize = DefaultFeedBufferSize
	}

	// Enrichment defaults
	if c.Enrichment.DataURL == "" {
		c.Enrichment.DataURL = DefaultDataURL
	}
	if c.Enrichment.ChartURL == "" {
		c.Enrichment.ChartURL = DefaultChartURL
	}
	if c.Enrichment.Timeout == 0 {
		c.Enrichment.Timeout = DefaultEnrichTimeout
	}
	if c.Enrichment.MaxRetries == 0 {
		c.Enrichment.MaxRetries = DefaultMaxRetries
	}
	if c.Enrichment.BarsTimeframe == "" {
		c.Enrichment.BarsTimeframe = DefaultBarsTimeframe
	}
	if c.Enrichment.BarsLimit == 0 {
		c.Enrichment.BarsLimit = DefaultBarsLimit
	}

	// Session defaults
	if c.Session.Timezone == "" {
		c.Session.Timezone = DefaultTimezone
	}

	// Server defaults
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultServerAddr
	}
	if c.Server.SendBufferSize == 0 {
		c.Server.SendBufferSize = DefaultSendBufferSize
	}

	// Status defaults
	if c.Status.Port == 0 {
		c.Status.Port = DefaultStatusPort
	}

	// Recorder defaults
	if c.Recorder.BatchSize == 0 {
		c.Recorder.BatchSize = DefaultBatchSize
	}
	if c.Recorder.FlushInterval == 0 {
		c.Recorder.FlushInterval = DefaultFlushInterval
	}
	if c.Recorder.BufferSize == 0 {
		c.Recorder.BufferSize = DefaultBufferSize
	}
	applyDBDefaults(&c.Recorder.Database)
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
