package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/papercomputeco/pulse/pkg/supervisor"
)

// Config is the persistent pulse configuration stored as config.toml in the
// .pulse/ directory.
type Config struct {
	Version    int              `toml:"version"`
	Server     ServerConfig     `toml:"server"`
	Feed       FeedConfig       `toml:"feed"`
	Generation GenerationConfig `toml:"generation"`
	REST       RESTConfig       `toml:"rest"`
	Backoff    BackoffConfig    `toml:"backoff"`
	Log        LogConfig        `toml:"log"`
}

// ServerConfig locates the pulse server.
type ServerConfig struct {
	BaseURL string `toml:"base_url,omitempty"`
	Token   string `toml:"token,omitempty"`
}

// FeedConfig holds live feed settings.
type FeedConfig struct {
	Path           string `toml:"path,omitempty"`
	DisplayWindow  uint   `toml:"display_window,omitempty"`
	ClassifyWindow uint   `toml:"classify_window,omitempty"`
	DedupeIDs      bool   `toml:"dedupe_ids,omitempty"`

	// EnginesFile is a TOML engine table; empty uses the built-in engines.
	EnginesFile string `toml:"engines_file,omitempty"`
}

// GenerationConfig holds one-shot generation settings.
type GenerationConfig struct {
	Path string `toml:"path,omitempty"`
}

// RESTConfig holds the request/response endpoint paths.
type RESTConfig struct {
	SettingsPath string `toml:"settings_path,omitempty"`
	StatusPath   string `toml:"status_path,omitempty"`
}

// BackoffConfig is the reconnect policy. Durations use time.ParseDuration
// syntax ("500ms", "30s").
type BackoffConfig struct {
	Initial    string  `toml:"initial,omitempty"`
	Max        string  `toml:"max,omitempty"`
	Multiplier float64 `toml:"multiplier,omitempty"`
	Jitter     *bool   `toml:"jitter,omitempty"`
}

// Policy converts the section into a supervisor.Backoff.
func (b BackoffConfig) Policy() (supervisor.Backoff, error) {
	initial, err := time.ParseDuration(b.Initial)
	if err != nil {
		return supervisor.Backoff{}, fmt.Errorf("invalid backoff.initial: %w", err)
	}
	maxDelay, err := time.ParseDuration(b.Max)
	if err != nil {
		return supervisor.Backoff{}, fmt.Errorf("invalid backoff.max: %w", err)
	}
	if initial <= 0 || maxDelay < initial {
		return supervisor.Backoff{}, fmt.Errorf("invalid backoff range %s..%s", initial, maxDelay)
	}

	return supervisor.Backoff{
		Initial:    initial,
		Max:        maxDelay,
		Multiplier: b.Multiplier,
		Jitter:     b.JitterEnabled(),
	}, nil
}

// JitterEnabled reports the jitter setting, which defaults to on.
func (b BackoffConfig) JitterEnabled() bool {
	return b.Jitter == nil || *b.Jitter
}

// LogConfig controls log output.
type LogConfig struct {
	JSON  bool `toml:"json,omitempty"`
	Debug bool `toml:"debug,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func stringKey(field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

func uintKey(name string, field func(c *Config) *uint) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(*field(c)), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = uint(n)
			return nil
		},
	}
}

func boolKey(name string, field func(c *Config) *bool) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.FormatBool(*field(c)) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = b
			return nil
		},
	}
}

func durationKey(name string, field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error {
			if _, err := time.ParseDuration(v); err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = v
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"server.base_url": stringKey(func(c *Config) *string { return &c.Server.BaseURL }),
	"server.token":    stringKey(func(c *Config) *string { return &c.Server.Token }),

	"feed.path":            stringKey(func(c *Config) *string { return &c.Feed.Path }),
	"feed.display_window":  uintKey("feed.display_window", func(c *Config) *uint { return &c.Feed.DisplayWindow }),
	"feed.classify_window": uintKey("feed.classify_window", func(c *Config) *uint { return &c.Feed.ClassifyWindow }),
	"feed.dedupe_ids":      boolKey("feed.dedupe_ids", func(c *Config) *bool { return &c.Feed.DedupeIDs }),
	"feed.engines_file":    stringKey(func(c *Config) *string { return &c.Feed.EnginesFile }),

	"generation.path": stringKey(func(c *Config) *string { return &c.Generation.Path }),

	"rest.settings_path": stringKey(func(c *Config) *string { return &c.REST.SettingsPath }),
	"rest.status_path":   stringKey(func(c *Config) *string { return &c.REST.StatusPath }),

	"backoff.initial": durationKey("backoff.initial", func(c *Config) *string { return &c.Backoff.Initial }),
	"backoff.max":     durationKey("backoff.max", func(c *Config) *string { return &c.Backoff.Max }),
	"backoff.multiplier": {
		get: func(c *Config) string { return strconv.FormatFloat(c.Backoff.Multiplier, 'g', -1, 64) },
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil || f < 1 {
				return fmt.Errorf("invalid value for backoff.multiplier: %q must be a number >= 1", v)
			}
			c.Backoff.Multiplier = f
			return nil
		},
	},
	"backoff.jitter": {
		get: func(c *Config) string { return strconv.FormatBool(c.Backoff.JitterEnabled()) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for backoff.jitter: %w", err)
			}
			c.Backoff.Jitter = &b
			return nil
		},
	},

	"log.json":  boolKey("log.json", func(c *Config) *bool { return &c.Log.JSON }),
	"log.debug": boolKey("log.debug", func(c *Config) *bool { return &c.Log.Debug }),
}

// orderedKeys lists configKeys in TOML section order.
var orderedKeys = []string{
	"server.base_url",
	"server.token",
	"feed.path",
	"feed.display_window",
	"feed.classify_window",
	"feed.dedupe_ids",
	"feed.engines_file",
	"generation.path",
	"rest.settings_path",
	"rest.status_path",
	"backoff.initial",
	"backoff.max",
	"backoff.multiplier",
	"backoff.jitter",
	"log.json",
	"log.debug",
}
