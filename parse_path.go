package main

import (
	"errors"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ultratendency/sentry/internal/pathtree"
)

// parsedPath is one row of parse-path output.
type parsedPath struct {
	Location string   `json:"location"`
	Segments []string `json:"segments,omitempty"`
	Rooted   string   `json:"rooted,omitempty"`
	Status   string   `json:"status"`
	Error    string   `json:"error,omitempty"`
}

func newParsePathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "parse-path LOCATION...",
		Short: "Show how locations split into tracked path segments",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			parser, err := newParser(resolvedCfg, buildLogger())
			if err != nil {
				return err
			}

			results := parseLocations(parser, args)

			if flagJSON {
				return printJSON(os.Stdout, results)
			}

			printParsed(os.Stdout, results)

			return nil
		},
	}
}

func parseLocations(parser *pathtree.Parser, locations []string) []parsedPath {
	results := make([]parsedPath, 0, len(locations))

	for _, loc := range locations {
		segments, err := parser.Parse(loc)

		r := parsedPath{Location: loc, Segments: segments, Status: "tracked"}
		if err == nil {
			r.Rooted = parser.Join(segments)
		}

		switch {
		case errors.Is(err, pathtree.ErrNotApplicable):
			r.Status = "untracked"
		case err != nil:
			r.Status = "malformed"
			r.Error = err.Error()
		}

		results = append(results, r)
	}

	return results
}

func printParsed(w io.Writer, results []parsedPath) {
	rows := make([][]string, 0, len(results))

	for _, r := range results {
		detail := strings.Join(r.Segments, " / ")
		if r.Error != "" {
			detail = r.Error
		}

		rows = append(rows, []string{r.Location, r.Status, r.Rooted, detail})
	}

	printTable(w, []string{"LOCATION", "STATUS", "ROOTED", "SEGMENTS"}, rows)
}
