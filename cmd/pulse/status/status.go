// Package statuscmder provides the status command for displaying the
// server's automation settings, its headline metrics and the last local
// generation.
package statuscmder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/pulse/pkg/cliui"
	"github.com/papercomputeco/pulse/pkg/config"
	"github.com/papercomputeco/pulse/pkg/dotdir"
	"github.com/papercomputeco/pulse/pkg/transport"
	"github.com/papercomputeco/pulse/pkg/utils"
)

const statusLongDesc string = `Show the pulse server status.

Fetches the automation settings and headline metrics from the server and
shows the most recent generation saved in the .pulse/ directory.

Examples:
  pulse status
  pulse status --base-url https://pulse.example.com
  pulse status --json`

const statusShortDesc string = "Show server settings and metrics"

type statusCommander struct {
	baseURL string
	token   string
	asJSON  bool
	debug   bool

	configDir string
}

// report is the --json shape.
type report struct {
	Server   string                 `json:"server"`
	Settings *transport.Settings    `json:"settings,omitempty"`
	Metrics  map[string]float64     `json:"metrics,omitempty"`
	Last     *dotdir.LastGeneration `json:"last_generation,omitempty"`
	Errors   map[string]string      `json:"errors,omitempty"`
}

func NewStatusCmd() *cobra.Command {
	cmder := &statusCommander{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: statusShortDesc,
		Long:  statusLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Resolve(cmd, config.FlagBaseURL, config.FlagToken)
			if err != nil {
				return err
			}
			cmder.debug, _ = cmd.Flags().GetBool("debug")
			cmder.configDir, _ = cmd.Flags().GetString(config.ConfigDirFlag)

			client, err := transport.New(cfg.Client(cfg.NewLogger(cmd.ErrOrStderr(), cmder.debug)))
			if err != nil {
				return err
			}
			return cmder.run(cmd.Context(), cmd.OutOrStdout(), client)
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagBaseURL, &cmder.baseURL)
	config.AddStringFlag(cmd, config.Flags, config.FlagToken, &cmder.token)
	cmd.Flags().BoolVar(&cmder.asJSON, "json", false, "Print the status as JSON")

	return cmd
}

func (c *statusCommander) run(ctx context.Context, w io.Writer, client *transport.Client) error {
	rep := c.collect(ctx, w, client)

	if c.asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}

	printReport(w, rep)

	if len(rep.Errors) > 0 {
		return fmt.Errorf("server %s is not fully reachable", rep.Server)
	}
	return nil
}

// collect fetches everything the report shows. Failures are recorded per
// section so one unreachable endpoint does not hide the rest.
func (c *statusCommander) collect(ctx context.Context, w io.Writer, client *transport.Client) report {
	rep := report{Server: client.BaseURL(), Errors: map[string]string{}}

	step := func(msg string, fn func() error) error {
		if c.asJSON {
			return fn()
		}
		return cliui.Step(w, msg, fn)
	}

	if err := step("Fetching settings", func() error {
		s, err := client.Settings(ctx)
		rep.Settings = s
		return err
	}); err != nil {
		rep.Errors["settings"] = err.Error()
	}

	if err := step("Fetching metrics", func() error {
		s, err := client.Status(ctx)
		if s != nil {
			rep.Metrics = s.Metrics
		}
		return err
	}); err != nil {
		rep.Errors["metrics"] = err.Error()
	}

	last, err := dotdir.NewManager().LoadLastGeneration(c.configDir)
	if err != nil {
		rep.Errors["last_generation"] = err.Error()
	}
	rep.Last = last

	if len(rep.Errors) == 0 {
		rep.Errors = nil
	}
	return rep
}

func printReport(w io.Writer, rep report) {
	fmt.Fprintf(w, "\n  %s  %s\n", cliui.KeyStyle.Render("Server:    "), cliui.ValueStyle.Render(rep.Server))

	if rep.Settings != nil {
		badge := cliui.Badge("PAUSED", "214")
		if rep.Settings.Enabled {
			badge = cliui.Badge("ENABLED", "82")
		}
		fmt.Fprintf(w, "  %s  %s %s\n", cliui.KeyStyle.Render("Automation:"), badge, cliui.DimStyle.Render(rep.Settings.Mode))
	}

	if len(rep.Metrics) > 0 {
		fmt.Fprintf(w, "\n  %s\n", cliui.KeyStyle.Render("Metrics"))
		names := slices.Sorted(maps.Keys(rep.Metrics))
		width := 0
		for _, n := range names {
			width = max(width, len(n))
		}
		for _, n := range names {
			fmt.Fprintf(w, "    %-*s  %s\n", width, n, cliui.ValueStyle.Render(formatMetric(rep.Metrics[n])))
		}
	}

	fmt.Fprintln(w)
	if rep.Last == nil {
		fmt.Fprintf(w, "  %s No saved generation.\n\n", cliui.DimStyle.Render("●"))
		return
	}

	fmt.Fprintf(w, "  %s  %s %s\n",
		cliui.KeyStyle.Render("Last run:  "),
		cliui.ValueStyle.Render(utils.Truncate(rep.Last.Prompt, 60)),
		cliui.DimStyle.Render(rep.Last.CompletedAt.Local().Format(time.DateTime)),
	)
	fmt.Fprintf(w, "  %s  %s\n\n", cliui.KeyStyle.Render("Output:    "), cliui.DimStyle.Render(utils.Truncate(rep.Last.Text, 72)))
}

// formatMetric drops a zero fraction so counters print as integers.
func formatMetric(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}
