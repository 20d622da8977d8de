package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/pulse/pkg/dotdir"
)

// EnvPrefix prefixes every environment override, e.g. PULSE_SERVER_TOKEN.
const EnvPrefix = "PULSE"

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds PULSE_* environment variables.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (PULSE_SERVER_BASE_URL, PULSE_SERVER_TOKEN, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	setViperDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	v.SetDefault("server.base_url", d.Server.BaseURL)
	v.SetDefault("server.token", d.Server.Token)

	v.SetDefault("feed.path", d.Feed.Path)
	v.SetDefault("feed.display_window", d.Feed.DisplayWindow)
	v.SetDefault("feed.classify_window", d.Feed.ClassifyWindow)
	v.SetDefault("feed.dedupe_ids", d.Feed.DedupeIDs)
	v.SetDefault("feed.engines_file", d.Feed.EnginesFile)

	v.SetDefault("generation.path", d.Generation.Path)

	v.SetDefault("rest.settings_path", d.REST.SettingsPath)
	v.SetDefault("rest.status_path", d.REST.StatusPath)

	v.SetDefault("backoff.initial", d.Backoff.Initial)
	v.SetDefault("backoff.max", d.Backoff.Max)
	v.SetDefault("backoff.multiplier", d.Backoff.Multiplier)
	v.SetDefault("backoff.jitter", d.Backoff.JitterEnabled())

	v.SetDefault("log.json", d.Log.JSON)
	v.SetDefault("log.debug", d.Log.Debug)
}

// FromViper materialises the effective configuration from v and validates
// it.
func FromViper(v *viper.Viper) (*Config, error) {
	jitter := v.GetBool("backoff.jitter")

	cfg := &Config{
		Version: v.GetInt("version"),
		Server: ServerConfig{
			BaseURL: v.GetString("server.base_url"),
			Token:   v.GetString("server.token"),
		},
		Feed: FeedConfig{
			Path:           v.GetString("feed.path"),
			DisplayWindow:  v.GetUint("feed.display_window"),
			ClassifyWindow: v.GetUint("feed.classify_window"),
			DedupeIDs:      v.GetBool("feed.dedupe_ids"),
			EnginesFile:    v.GetString("feed.engines_file"),
		},
		Generation: GenerationConfig{
			Path: v.GetString("generation.path"),
		},
		REST: RESTConfig{
			SettingsPath: v.GetString("rest.settings_path"),
			StatusPath:   v.GetString("rest.status_path"),
		},
		Backoff: BackoffConfig{
			Initial:    v.GetString("backoff.initial"),
			Max:        v.GetString("backoff.max"),
			Multiplier: v.GetFloat64("backoff.multiplier"),
			Jitter:     &jitter,
		},
		Log: LogConfig{
			JSON:  v.GetBool("log.json"),
			Debug: v.GetBool("log.debug"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
