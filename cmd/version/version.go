// Package versioncmder
package versioncmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/pulse/pkg/cliui"
	"github.com/papercomputeco/pulse/pkg/utils"
)

func NewVersionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "displays version",
		Long:  "displays the version, commit and build time of this CLI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if short {
				fmt.Fprintln(out, utils.Version)
				return nil
			}

			fmt.Fprintf(out, "%s %s\n%s %s\n%s %s\n",
				cliui.KeyStyle.Render("Version:"), utils.Version,
				cliui.KeyStyle.Render("Sha:"), utils.Sha,
				cliui.KeyStyle.Render("Built at:"), utils.Buildtime,
			)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "Print only the version")

	return cmd
}
