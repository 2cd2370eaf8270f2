package main

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ultratendency/sentry/internal/pathtree"
)

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o600)
}

func TestPrintTable_AlignsColumns(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	printTable(&buf, []string{"A", "LONGHEADER"}, [][]string{
		{"short", "x"},
		{"a-much-longer-cell", "y"},
	})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)

	col := strings.Index(lines[0], "LONGHEADER")
	assert.Equal(t, len("a-much-longer-cell")+2, col)
	assert.Equal(t, "x", strings.TrimSpace(lines[1][col:]))
	assert.Equal(t, "y", strings.TrimSpace(lines[2][col:]))
}

func TestParseLocations(t *testing.T) {
	t.Parallel()

	parser, err := pathtree.NewParser("hdfs", "hdfs://nn:8020", discardLogger())
	require.NoError(t, err)

	got := parseLocations(parser, []string{
		"hdfs://nn:8020/warehouse/db/t/",
		"/relative/to/default",
		"s3a://bucket/key",
		"",
	})
	require.Len(t, got, 4)

	assert.Equal(t, "tracked", got[0].Status)
	assert.Equal(t, []string{"warehouse", "db", "t"}, got[0].Segments)
	assert.Equal(t, "hdfs:///warehouse/db/t", got[0].Rooted)
	assert.Equal(t, "tracked", got[1].Status)
	assert.Equal(t, []string{"relative", "to", "default"}, got[1].Segments)
	assert.Equal(t, "untracked", got[2].Status)
	assert.Empty(t, got[2].Error)
	assert.Empty(t, got[2].Rooted)
	assert.Equal(t, "malformed", got[3].Status)
	assert.NotEmpty(t, got[3].Error)

	var buf bytes.Buffer
	printParsed(&buf, got)
	assert.Contains(t, buf.String(), "warehouse / db / t")
	assert.Contains(t, buf.String(), "malformed")
}

func TestPrintStatus(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	printStatus(&buf, &statusReport{
		Remote:         []string{"a", "b"},
		LastSeenSeqNum: 12,
		DaemonPID:      99,
		Path:           "hdfs:///w/db/t",
		Segments:       []string{"w", "db", "t"},
	})

	out := buf.String()
	assert.Contains(t, out, "a, b")
	assert.Contains(t, out, "12")
	assert.Contains(t, out, "99")
	assert.Contains(t, out, "(none)")
}

func TestPrintJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, printJSON(&buf, map[string]int64{"event_id": 3}))
	assert.JSONEq(t, `{"event_id": 3}`, buf.String())
}
