// Package configcmder provides the config command for managing persistent
// pulse configuration stored in the .pulse/ directory.
package configcmder

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/pulse/pkg/cliui"
	"github.com/papercomputeco/pulse/pkg/config"
)

const configLongDesc string = `Manage persistent pulse configuration.

Configuration is stored as config.toml in the .pulse/ directory and provides
default values for command flags. PULSE_* environment variables override the
file, and CLI flags override both.

Keys use dotted notation matching the TOML section structure:
  server.base_url, server.token,
  feed.path, feed.display_window, feed.classify_window,
  feed.dedupe_ids, feed.engines_file,
  generation.path, rest.settings_path, rest.status_path,
  backoff.initial, backoff.max, backoff.multiplier, backoff.jitter,
  log.json, log.debug

Use subcommands to get, set, or list configuration values:
  pulse config set <key> <value>    Set a configuration value
  pulse config get <key>            Get a configuration value
  pulse config list                 List all configuration values

Examples:
  pulse config set server.base_url https://pulse.example.com
  pulse config set backoff.max 1m
  pulse config get server.base_url
  pulse config list`

const configShortDesc string = "Manage persistent pulse configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

// completeKeys offers config keys for the first argument only.
func completeKeys(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

func checkKey(key string) error {
	if !config.IsValidConfigKey(key) {
		return fmt.Errorf("unknown config key: %q\n\nValid keys: %s",
			key, strings.Join(config.ValidConfigKeys(), ", "))
	}
	return nil
}

// openConfiger resolves the config file for cmd and prints which file is in
// use.
func openConfiger(cmd *cobra.Command) (*config.Configer, error) {
	configDir, _ := cmd.Flags().GetString(config.ConfigDirFlag)

	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	out := cmd.OutOrStdout()
	if target := cfger.GetTarget(); target != "" {
		fmt.Fprintf(out, "\n  %s %s\n\n",
			cliui.KeyStyle.Render("Config file:"),
			cliui.DimStyle.Render(target),
		)
	} else {
		fmt.Fprintf(out, "\n  %s\n\n", cliui.DimStyle.Render("No config file found. Using defaults."))
	}

	return cfger, nil
}
