package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if err := c.validateCommon(); err != nil {
		return err
	}
	if err := c.Feeds.A.validate("feeds.a"); err != nil {
		return err
	}
	if err := c.Feeds.B.validate("feeds.b"); err != nil {
		return err
	}
	if c.Feeds.A.Name == c.Feeds.B.Name {
		return fmt.Errorf("feeds.a.name and feeds.b.name must differ, both are %q", c.Feeds.A.Name)
	}
	return nil
}

// ValidateFeed is Validate for tools that use a single feed ("a" or "b");
// the other feed may be left unconfigured.
func (c *Config) ValidateFeed(key string) error {
	if err := c.validateCommon(); err != nil {
		return err
	}
	switch key {
	case "a":
		return c.Feeds.A.validate("feeds.a")
	case "b":
		return c.Feeds.B.validate("feeds.b")
	default:
		return fmt.Errorf("unknown feed %q, want a or b", key)
	}
}

func (c *Config) validateCommon() error {
	if c.Run.Duration <= 0 {
		return fmt.Errorf("run.duration must be > 0, got %s", c.Run.Duration)
	}
	if c.Run.ConnectTimeout <= 0 {
		return fmt.Errorf("run.connect_timeout must be > 0, got %s", c.Run.ConnectTimeout)
	}
	if c.Race.WarmupRaces < 0 {
		return errors.New("race.warmup_races must be >= 0")
	}

	if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 0 and 65535, got %d", c.Metrics.Port)
	}
	if !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /, got %q", c.Metrics.Path)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}

	return nil
}

func (f *FeedConfig) validate(prefix string) error {
	if f.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if f.URL == "" {
		return fmt.Errorf("%s.url is required", prefix)
	}
	u, err := url.Parse(f.URL)
	if err != nil {
		return fmt.Errorf("%s.url: %w", prefix, err)
	}

	switch f.Kind {
	case KindGeyser, KindShredstream:
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("%s.url must be http:// or https:// for kind %s, got %q", prefix, f.Kind, f.URL)
		}
	case KindWebsocket:
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return fmt.Errorf("%s.url must be ws:// or wss:// for kind %s, got %q", prefix, f.Kind, f.URL)
		}
	default:
		return fmt.Errorf("%s.kind must be geyser, shredstream or websocket, got %q", prefix, f.Kind)
	}

	if f.Dedup != "change" && f.Dedup != "set" {
		return fmt.Errorf("%s.dedup must be change or set, got %q", prefix, f.Dedup)
	}
	if f.QueueSize < 1 {
		return fmt.Errorf("%s.queue_size must be >= 1", prefix)
	}
	if f.Overflow != "block" && f.Overflow != "drop-oldest" {
		return fmt.Errorf("%s.overflow must be block or drop-oldest, got %q", prefix, f.Overflow)
	}
	return nil
}
