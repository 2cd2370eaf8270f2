package main

import (
	"github.com/spf13/cobra"

	"github.com/ultratendency/sentry/internal/remote"
)

func newServeCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run an in-memory replica of the remote path service",
		Long: `Run an in-memory replica of the remote authorization service's path API.
It applies pushed updates to its own path tree and reports the last sequence
number it has seen. Useful for local testing of "run".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := buildLogger()
			ctx := shutdownContext(cmd.Context(), logger)

			if listen == "" {
				listen = resolvedCfg.Daemon.ServeListen
			}

			return serveHTTP(ctx, listen, remote.NewHandler(remote.NewReplica(logger)), logger)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default from [daemon] serve_listen)")

	return cmd
}
