package configcmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/pulse/pkg/cliui"
)

const getLongDesc string = `Get a configuration value.

Reads the value for the given key from the config.toml file
stored in the .pulse/ directory.

Examples:
  pulse config get server.base_url
  pulse config get backoff.max`

const getShortDesc string = "Get a configuration value"

func newGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "get <key>",
		Short:             getShortDesc,
		Long:              getLongDesc,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeKeys,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(cmd, args[0])
		},
	}

	return cmd
}

func runGet(cmd *cobra.Command, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}

	cfger, err := openConfiger(cmd)
	if err != nil {
		return err
	}

	value, err := cfger.GetConfigValue(key)
	if err != nil {
		return err
	}

	if value == "" {
		value = cliui.DimStyle.Render("<not set>")
	} else {
		value = cliui.ValueStyle.Render(value)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "  %s  %s\n\n", cliui.KeyStyle.Render(key), value)

	return nil
}
