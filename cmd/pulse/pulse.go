// Package pulsecmder
package pulsecmder

import (
	"github.com/spf13/cobra"

	configcmder "github.com/papercomputeco/pulse/cmd/pulse/config"
	enginescmder "github.com/papercomputeco/pulse/cmd/pulse/engines"
	generatecmder "github.com/papercomputeco/pulse/cmd/pulse/generate"
	statuscmder "github.com/papercomputeco/pulse/cmd/pulse/status"
	watchcmder "github.com/papercomputeco/pulse/cmd/pulse/watch"
	versioncmder "github.com/papercomputeco/pulse/cmd/version"
	"github.com/papercomputeco/pulse/pkg/config"
)

const pulseLongDesc string = `Pulse is a terminal client for an automation server.

It follows the live activity feed, shows which engines are busy and runs
one-shot streamed generations:
  pulse watch          Follow the live feed
  pulse generate       Stream a generation for a prompt
  pulse status         Show server settings and metrics
  pulse engines        Show the engine table
  pulse config         Manage persistent configuration`

const pulseShortDesc string = "Pulse - live automation feed"

func NewPulseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "pulse",
		Short:         pulseShortDesc,
		Long:          pulseLongDesc,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String(config.ConfigDirFlag, "", "Override path to the .pulse/ config directory")

	cmd.AddCommand(watchcmder.NewWatchCmd())
	cmd.AddCommand(generatecmder.NewGenerateCmd())
	cmd.AddCommand(statuscmder.NewStatusCmd())
	cmd.AddCommand(enginescmder.NewEnginesCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
