package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ultratendency/sentry/internal/catalog"
)

func newEmitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "emit",
		Short: "Record a path mutation in the catalog",
		Long: `Record a path mutation in the catalog. Each mutation updates the object
table and appends a notification that a running daemon picks up.`,
	}

	cmd.AddCommand(
		newEmitSubCmd("add-path OBJECT LOCATION", "Add a location to an object", cobra.ExactArgs(2),
			func(ctx context.Context, s *catalog.Store, args []string) (int64, error) {
				return s.AddPath(ctx, args[0], args[1])
			}),
		newEmitSubCmd("remove-path OBJECT LOCATION", `Remove a location from an object ("*" removes all)`, cobra.ExactArgs(2),
			func(ctx context.Context, s *catalog.Store, args []string) (int64, error) {
				return s.RemovePath(ctx, args[0], args[1])
			}),
		newEmitSubCmd("remove-all OBJECT [CHILD...]", "Remove every location of an object and its children", cobra.MinimumNArgs(1),
			func(ctx context.Context, s *catalog.Store, args []string) (int64, error) {
				return s.RemoveAllPaths(ctx, args[0], args[1:])
			}),
		newEmitSubCmd("rename OLD_NAME OLD_LOCATION NEW_NAME NEW_LOCATION", "Rename an object and move its location",
			cobra.ExactArgs(4),
			func(ctx context.Context, s *catalog.Store, args []string) (int64, error) {
				return s.RenameObject(ctx, args[0], args[1], args[2], args[3])
			}),
	)

	return cmd
}

type emitFunc func(ctx context.Context, s *catalog.Store, args []string) (int64, error)

func newEmitSubCmd(use, short string, args cobra.PositionalArgs, fn emitFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := buildLogger()
			ctx := cmd.Context()

			store, err := openCatalog(ctx, resolvedCfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			id, err := fn(ctx, store, args)
			if err != nil {
				return err
			}

			if flagJSON {
				return printJSON(os.Stdout, map[string]int64{"event_id": id})
			}

			fmt.Fprintf(os.Stdout, "%d\n", id)

			return nil
		},
	}
}
