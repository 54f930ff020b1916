package config

import (
	"log/slog"
	"strings"
	"time"
)

// Feed stream kinds.
const (
	KindGeyser      = "geyser"
	KindShredstream = "shredstream"
	KindWebsocket   = "websocket"
)

// Config is the root configuration for a slot race.
type Config struct {
	Run     RunConfig     `yaml:"run"`
	Race    RaceConfig    `yaml:"race"`
	Feeds   FeedsConfig   `yaml:"feeds"`
	Metrics MetricsConfig `yaml:"metrics"`
	Log     LogConfig     `yaml:"log"`
}

// RunConfig bounds a run.
type RunConfig struct {
	Duration         time.Duration `yaml:"duration"`          // Measurement window
	ProgressInterval time.Duration `yaml:"progress_interval"` // Live snapshot logging; negative disables
	ConnectTimeout   time.Duration `yaml:"connect_timeout"`   // Per-feed handshake bound
}

// RaceConfig tunes the correlation table and statistics.
type RaceConfig struct {
	MaxSlotAge  int64 `yaml:"max_slot_age"` // Eviction horizon in slots; negative disables
	WarmupRaces int   `yaml:"warmup_races"` // Races after steady state excluded from the report
}

// FeedsConfig holds the two raced feeds.
type FeedsConfig struct {
	A FeedConfig `yaml:"a"`
	B FeedConfig `yaml:"b"`
}

// FeedConfig describes one feed.
type FeedConfig struct {
	Name         string        `yaml:"name"`
	Kind         string        `yaml:"kind"` // geyser, shredstream or websocket
	URL          string        `yaml:"url"`
	Token        string        `yaml:"token"`
	Dedup        string        `yaml:"dedup"`         // change or set
	DedupHorizon uint64        `yaml:"dedup_horizon"` // Slots remembered by the set policy
	QueueSize    int           `yaml:"queue_size"`
	Overflow     string        `yaml:"overflow"` // block or drop-oldest
	Method       string        `yaml:"method"`   // Websocket subscribe method
	PingTimeout  time.Duration `yaml:"ping_timeout"`
}

// MetricsConfig holds the metrics/health HTTP server settings.
type MetricsConfig struct {
	Port int    `yaml:"port"` // 0 disables the server
	Path string `yaml:"path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"`
}

// SlogLevel maps the configured level onto slog. Unknown levels are info.
func (c LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Names returns the display names of feed A and feed B.
func (c *Config) Names() [2]string {
	return [2]string{c.Feeds.A.Name, c.Feeds.B.Name}
}
