package config

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/pulse/pkg/logger"
	"github.com/papercomputeco/pulse/pkg/transport"
)

// ConfigDirFlag is the persistent root flag naming the .pulse directory.
const ConfigDirFlag = "config-dir"

// Resolve builds the effective configuration for cmd from config.toml in
// the --config-dir directory, PULSE_* environment variables and the
// registered flags named by registryKeys, in increasing precedence.
func Resolve(cmd *cobra.Command, registryKeys ...string) (*Config, error) {
	configDir, _ := cmd.Flags().GetString(ConfigDirFlag)

	v, err := InitViper(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	BindRegisteredFlags(v, cmd, Flags, registryKeys)

	return FromViper(v)
}

// Client returns the transport settings for the configured server.
func (c *Config) Client(l *slog.Logger) transport.Config {
	return transport.Config{
		BaseURL:        c.Server.BaseURL,
		Token:          c.Server.Token,
		FeedPath:       c.Feed.Path,
		GenerationPath: c.Generation.Path,
		SettingsPath:   c.REST.SettingsPath,
		StatusPath:     c.REST.StatusPath,
		Logger:         l,
	}
}

// NewLogger returns a logger writing to w, rendered as JSON when log.json is
// set and through charmbracelet/log otherwise.
func (c *Config) NewLogger(w io.Writer, debug bool) *slog.Logger {
	return logger.New(
		logger.WithWriter(w),
		logger.WithDebug(debug || c.Log.Debug),
		logger.WithJSON(c.Log.JSON),
		logger.WithPretty(!c.Log.JSON),
	)
}
