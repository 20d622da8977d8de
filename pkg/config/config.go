// Package config loads, validates and persists pulse configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/pulse/pkg/dotdir"
)

const (
	configFile = "config.toml"

	// v0 is the alpha version of the config
	v0 = 0

	// CurrentV is the currently supported version, points to v0
	CurrentV = v0
)

// ErrUnknownKey is returned for a dotted key that is not in configKeys.
var ErrUnknownKey = errors.New("unknown config key")

type Configer struct {
	ddm        *dotdir.Manager
	targetPath string
}

func NewConfiger(override string) (*Configer, error) {
	cfger := &Configer{}

	cfger.ddm = dotdir.NewManager()
	target, err := cfger.ddm.Target(override)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(target, configFile)
	_, err = os.Stat(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfger.targetPath = path
	return cfger, nil
}

// ValidConfigKeys returns every supported key in config.toml section order.
func ValidConfigKeys() []string {
	return append([]string(nil), orderedKeys...)
}

// IsValidConfigKey returns true if the given key is a supported configuration key.
func IsValidConfigKey(key string) bool {
	_, ok := configKeys[key]
	return ok
}

func (c *Configer) GetTarget() string {
	return c.targetPath
}

// LoadConfig loads config.toml from the target directory. A missing file
// yields NewDefaultConfig(); fields absent from the file keep their defaults.
func (c *Configer) LoadConfig() (*Config, error) {
	if c.targetPath == "" {
		return NewDefaultConfig(), nil
	}

	data, err := os.ReadFile(c.targetPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewDefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg, err := ParseConfigTOML(data)
	if err != nil {
		return nil, err
	}

	applyDefaults(cfg)
	return cfg, nil
}

// applyDefaults fills zero-value fields in cfg with values from NewDefaultConfig().
func applyDefaults(cfg *Config) {
	defaults := NewDefaultConfig()

	if cfg.Version == 0 {
		cfg.Version = defaults.Version
	}

	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = defaults.Server.BaseURL
	}

	if cfg.Feed.Path == "" {
		cfg.Feed.Path = defaults.Feed.Path
	}
	if cfg.Feed.DisplayWindow == 0 {
		cfg.Feed.DisplayWindow = defaults.Feed.DisplayWindow
	}
	if cfg.Feed.ClassifyWindow == 0 {
		cfg.Feed.ClassifyWindow = defaults.Feed.ClassifyWindow
	}

	if cfg.Generation.Path == "" {
		cfg.Generation.Path = defaults.Generation.Path
	}

	if cfg.REST.SettingsPath == "" {
		cfg.REST.SettingsPath = defaults.REST.SettingsPath
	}
	if cfg.REST.StatusPath == "" {
		cfg.REST.StatusPath = defaults.REST.StatusPath
	}

	if cfg.Backoff.Initial == "" {
		cfg.Backoff.Initial = defaults.Backoff.Initial
	}
	if cfg.Backoff.Max == "" {
		cfg.Backoff.Max = defaults.Backoff.Max
	}
	if cfg.Backoff.Multiplier == 0 {
		cfg.Backoff.Multiplier = defaults.Backoff.Multiplier
	}
}

// Validate reports settings that would make the client misbehave.
func (c *Config) Validate() error {
	if c.Server.BaseURL == "" {
		return errors.New("server.base_url is required")
	}
	if c.Feed.DisplayWindow == 0 || c.Feed.ClassifyWindow == 0 {
		return errors.New("feed windows must be at least 1")
	}
	if c.Feed.ClassifyWindow < c.Feed.DisplayWindow {
		return fmt.Errorf("feed.classify_window (%d) must not be smaller than feed.display_window (%d)",
			c.Feed.ClassifyWindow, c.Feed.DisplayWindow)
	}
	if _, err := c.Backoff.Policy(); err != nil {
		return err
	}
	return nil
}

// SaveConfig persists the configuration to config.toml in the target directory.
func (c *Configer) SaveConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("cannot save nil config")
	}

	if c.targetPath == "" {
		return errors.New("cannot save empty target path")
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	// The file may hold a bearer token.
	if err := os.WriteFile(c.targetPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// SetConfigValue loads the config, sets key to value and saves it.
func (c *Configer) SetConfigValue(key string, value string) error {
	info, ok := configKeys[key]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return err
	}

	if err := info.set(cfg, value); err != nil {
		return err
	}

	return c.SaveConfig(cfg)
}

// GetConfigValue loads the config and returns the string form of key.
func (c *Configer) GetConfigValue(key string) (string, error) {
	info, ok := configKeys[key]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return "", err
	}

	return info.get(cfg), nil
}

// ParseConfigTOML parses raw TOML bytes into a Config.
// Returns an error if the version field is present and not equal to CurrentV.
func ParseConfigTOML(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config TOML: %w", err)
	}

	if cfg.Version != 0 && cfg.Version != CurrentV {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentV)
	}

	return cfg, nil
}
