package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ultratendency/sentry/internal/catalog"
	"github.com/ultratendency/sentry/internal/remote"
)

// statusReport is the JSON shape of "status --json".
type statusReport struct {
	Remote         []string `json:"remote"`
	LastSeenSeqNum int64    `json:"last_seen_seq_num"`
	DaemonPID      int      `json:"daemon_pid,omitempty"`
	Path           string   `json:"path,omitempty"`
	Segments       []string `json:"segments,omitempty"`
	AuthzObjects   []string `json:"authz_objects,omitempty"`
}

func newStatusCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the remote service's last-seen sequence number",
		Long: `Show the remote service's last-seen sequence number and, when a PID file is
configured, the running daemon. With --path, also list the catalog objects
that own the deepest tracked prefix of that path.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := buildLogger()
			ctx := cmd.Context()

			client, err := remote.NewClient(remoteOptions(resolvedCfg, logger))
			if err != nil {
				return err
			}
			defer client.Close()

			seq, err := client.LastSeenSeqNum(ctx)
			if err != nil {
				return err
			}

			report := statusReport{Remote: resolvedCfg.Remote.Addresses, LastSeenSeqNum: seq}

			if pidPath := resolvedCfg.Daemon.PIDFile; pidPath != "" {
				if pid, err := readPIDFile(pidPath); err == nil {
					report.DaemonPID = pid
				}
			}

			if path != "" {
				parser, err := newParser(resolvedCfg, logger)
				if err != nil {
					return err
				}

				segments, err := parser.Parse(path)
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

				report.Path = path
				report.Segments = segments
				report.AuthzObjects = paths.FindAuthzObjects(segments)
			}

			if flagJSON {
				return printJSON(os.Stdout, report)
			}

			printStatus(os.Stdout, &report)

			return nil
		},
	}

	cmd.Flags().StringVar(&path, "path", "", "look up the objects owning this path")

	return cmd
}

func printStatus(w io.Writer, r *statusReport) {
	rows := [][]string{
		{"remote", strings.Join(r.Remote, ", ")},
		{"last seen seq", strconv.FormatInt(r.LastSeenSeqNum, 10)},
	}

	if r.DaemonPID != 0 {
		rows = append(rows, []string{"daemon pid", strconv.Itoa(r.DaemonPID)})
	}

	if r.Path != "" {
		owners := strings.Join(r.AuthzObjects, ", ")
		if owners == "" {
			owners = "(none)"
		}

		rows = append(rows,
			[]string{"path", r.Path},
			[]string{"segments", strings.Join(r.Segments, " / ")},
			[]string{"owned by", owners},
		)
	}

	printTable(w, []string{"FIELD", "VALUE"}, rows)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}

	return nil
}
