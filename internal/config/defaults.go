package config

import (
	"os"
	"time"
)

// Default values for optional configuration fields.
const (
	DefaultDuration         = 30 * time.Second
	DefaultProgressInterval = 10 * time.Second
	DefaultConnectTimeout   = 10 * time.Second
	DefaultMaxSlotAge       = 1000
	DefaultDedupHorizon     = 10000
	DefaultQueueSize        = 1000
	DefaultOverflow         = "block"
	DefaultWSMethod         = "slotSubscribe"
	DefaultPingTimeout      = 60 * time.Second
	DefaultMetricsPath      = "/metrics"
	DefaultLogLevel         = "info"
)

// Environment variables that fill in the feed URLs when the file leaves
// them empty.
const (
	EnvGRPCURL  = "GRPC_URL"
	EnvShredURL = "SHRED_URL"
)

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	// Run defaults
	if c.Run.Duration == 0 {
		c.Run.Duration = DefaultDuration
	}
	if c.Run.ProgressInterval == 0 {
		c.Run.ProgressInterval = DefaultProgressInterval
	}
	if c.Run.ConnectTimeout == 0 {
		c.Run.ConnectTimeout = DefaultConnectTimeout
	}

	// Race defaults
	if c.Race.MaxSlotAge == 0 {
		c.Race.MaxSlotAge = DefaultMaxSlotAge
	}

	// Feed defaults
	applyFeedDefaults(&c.Feeds.A, "grpc", KindGeyser, "change", EnvGRPCURL)
	applyFeedDefaults(&c.Feeds.B, "shred", KindShredstream, "set", EnvShredURL)

	// Metrics defaults
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
}

func applyFeedDefaults(f *FeedConfig, name, kind, dedup, urlEnv string) {
	if f.Name == "" {
		f.Name = name
	}
	if f.Kind == "" {
		f.Kind = kind
	}
	if f.URL == "" {
		f.URL = os.Getenv(urlEnv)
	}
	if f.Dedup == "" {
		f.Dedup = dedup
	}
	if f.DedupHorizon == 0 {
		f.DedupHorizon = DefaultDedupHorizon
	}
	if f.QueueSize == 0 {
		f.QueueSize = DefaultQueueSize
	}
	if f.Overflow == "" {
		f.Overflow = DefaultOverflow
	}
	if f.Kind == KindWebsocket {
		if f.Method == "" {
			f.Method = DefaultWSMethod
		}
		if f.PingTimeout == 0 {
			f.PingTimeout = DefaultPingTimeout
		}
	}
}
