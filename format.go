package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
)

// statusf prints a progress line to stderr unless quiet is set. Stdout is
// reserved for command output.
func statusf(quiet bool, format string, args ...any) {
	if quiet {
		return
	}

	fmt.Fprintf(os.Stderr, format, args...)
}

// printTable writes headers and rows as columns separated by two spaces.
func printTable(w io.Writer, headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, strings.Join(headers, "\t"))

	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}

	tw.Flush()
}
