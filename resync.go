package main

import (
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ultratendency/sentry/internal/catalog"
	"github.com/ultratendency/sentry/internal/remote"
)

func newResyncCmd() *cobra.Command {
	var (
		seq    int64
		daemon bool
	)

	cmd := &cobra.Command{
		Use:   "resync",
		Short: "Push a full image of the catalog's paths to the remote service",
		Long: `Build a full image of every tracked path from the catalog and push it to the
remote service, tagged with --seq (default: the remote's current last-seen
sequence number, so a running daemon sees no divergence).

With --daemon, signal the running daemon to push its own full image instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if daemon {
				pidPath := resolvedCfg.Daemon.PIDFile
				if pidPath == "" {
					return errors.New("--daemon requires [daemon] pid_file")
				}

				if err := sendSIGHUP(pidPath); err != nil {
					return err
				}

				statusf(flagQuiet, "Signaled daemon to resync\n")

				return nil
			}

			logger := buildLogger()
			ctx := cmd.Context()

			parser, err := newParser(resolvedCfg, logger)
			if err != nil {
				return err
			}

			store, err := openCatalog(ctx, resolvedCfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			paths, err := catalog.NewBootstrapper(store, parser, logger).Build(ctx)
			if err != nil {
				return err
			}

			client, err := remote.Dial(ctx, remoteOptions(resolvedCfg, logger))
			if err != nil {
				return err
			}
			defer client.Close()

			if !cmd.Flags().Changed("seq") {
				if seq, err = client.LastSeenSeqNum(ctx); err != nil {
					return err
				}
			}

			img := paths.CreateFullImageUpdate(seq)
			if err := client.PushUpdate(ctx, img); err != nil {
				return err
			}

			logger.Info("pushed full image", slog.Int64("seq_num", seq), slog.Int("objects", img.Len()))
			statusf(flagQuiet, "Pushed full image of %d objects at seq %d\n", img.Len(), seq)

			return nil
		},
	}

	cmd.Flags().Int64Var(&seq, "seq", 0, "sequence number to tag the image with")
	cmd.Flags().BoolVar(&daemon, "daemon", false, "signal the running daemon instead")

	return cmd
}
