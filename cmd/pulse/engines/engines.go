// Package enginescmder provides the engines command, which prints the
// effective engine table.
package enginescmder

import (
	"fmt"
	"io"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/pulse/pkg/cliui"
	"github.com/papercomputeco/pulse/pkg/config"
	"github.com/papercomputeco/pulse/pkg/engine"
)

const enginesLongDesc string = `Show the engine table used to attribute feed events.

Without --engines (or feed.engines_file) the built-in table is shown. Use
--toml to print the table in the file format accepted by --engines, which
is a convenient starting point for a custom table.

Examples:
  pulse engines
  pulse engines --engines ./engines.toml
  pulse engines --toml > engines.toml`

const enginesShortDesc string = "Show the engine table"

type enginesCommander struct {
	enginesFile string
	asTOML      bool
}

func NewEnginesCmd() *cobra.Command {
	cmder := &enginesCommander{}

	cmd := &cobra.Command{
		Use:   "engines",
		Short: enginesShortDesc,
		Long:  enginesLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Resolve(cmd, config.FlagEngines)
			if err != nil {
				return err
			}
			cmder.enginesFile = cfg.Feed.EnginesFile
			return cmder.run(cmd.OutOrStdout())
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagEngines, &cmder.enginesFile)
	cmd.Flags().BoolVar(&cmder.asTOML, "toml", false, "Print the table as TOML")

	return cmd
}

func (c *enginesCommander) run(w io.Writer) error {
	table, err := engine.Resolve(c.enginesFile)
	if err != nil {
		return err
	}

	if c.asTOML {
		return toml.NewEncoder(w).Encode(table)
	}

	source := "built-in"
	if c.enginesFile != "" {
		source = c.enginesFile
	}
	fmt.Fprintf(w, "\n  %s %s\n\n", cliui.KeyStyle.Render("Engines:"), cliui.DimStyle.Render(source))

	width := 0
	for _, e := range table.Engines {
		width = max(width, len(e.ID))
	}
	for _, e := range table.Engines {
		fmt.Fprintf(w, "  %s  %s\n", cliui.TitleStyle.Render(fmt.Sprintf("%-*s", width, e.ID)), e.Name)
		fmt.Fprintf(w, "  %*s  %s\n", width, "", cliui.DimStyle.Render(strings.Join(e.Keywords, ", ")))
	}
	fmt.Fprintln(w)

	return nil
}
