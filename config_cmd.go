package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/ultratendency/sentry/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration after all overrides",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return config.RenderEffective(resolvedCfg, cfgSource, os.Stdout)
		},
	})

	return cmd
}
