package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ultratendency/sentry/internal/catalog"
	"github.com/ultratendency/sentry/internal/config"
	"github.com/ultratendency/sentry/internal/remote"
)

// isolateEnv points config resolution away from the user's real files.
func isolateEnv(t *testing.T) {
	t.Helper()

	t.Setenv(config.EnvConfig, filepath.Join(t.TempDir(), "none.toml"))
	t.Setenv(config.EnvRemote, "")
	t.Setenv(config.EnvCatalog, "")
}

func execute(t *testing.T, args ...string) error {
	t.Helper()

	cmd := newRootCmd()
	cmd.SetArgs(args)

	return cmd.ExecuteContext(context.Background())
}

func TestNewRootCmd_Subcommands(t *testing.T) {
	cmd := newRootCmd()

	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}

	for _, want := range []string{"run", "serve", "status", "resync", "emit", "parse-path", "config"} {
		assert.Contains(t, names, want)
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name     string
		lc       config.LoggingConfig
		terminal bool
		wantJSON bool
		debugOn  bool
	}{
		{"auto on terminal", config.LoggingConfig{LogLevel: "info", LogFormat: "auto"}, true, false, false},
		{"auto piped", config.LoggingConfig{LogLevel: "info", LogFormat: "auto"}, false, true, false},
		{"forced text", config.LoggingConfig{LogLevel: "debug", LogFormat: "text"}, false, false, true},
		{"forced json", config.LoggingConfig{LogLevel: "warn", LogFormat: "json"}, true, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer

			logger := newLogger(&buf, tt.lc, tt.terminal)
			logger.Debug("dbg")
			logger.Error("boom", "k", "v")

			out := buf.String()
			assert.Equal(t, tt.debugOn, bytes.Contains(buf.Bytes(), []byte("dbg")))

			var rec map[string]any
			isJSON := json.Unmarshal([]byte(lastLine(out)), &rec) == nil
			assert.Equal(t, tt.wantJSON, isJSON, out)
		})
	}
}

func lastLine(s string) string {
	lines := bytes.Split(bytes.TrimSpace([]byte(s)), []byte("\n"))

	return string(lines[len(lines)-1])
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	isolateEnv(t)

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, writeFile(path, "[remote]\naddresses = [\"from-file\"]\n\n[catalog]\ndb_path = \"/file.db\"\n"))

	require.NoError(t, execute(t, "--config", path, "--remote", "a,b", "-v", "config", "show"))

	require.NotNil(t, resolvedCfg)
	assert.Equal(t, []string{"a", "b"}, resolvedCfg.Remote.Addresses)
	assert.Equal(t, "/file.db", resolvedCfg.Catalog.DBPath)
	assert.Equal(t, "debug", resolvedCfg.Logging.LogLevel)
	assert.Equal(t, path, cfgSource)
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	isolateEnv(t)

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, writeFile(path, "[remote]\nrpc_prot = 1\n"))

	err := execute(t, "--config", path, "config", "show")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rpc_port")
}

func TestEmit_RecordsEvents(t *testing.T) {
	isolateEnv(t)

	db := filepath.Join(t.TempDir(), "catalog.db")

	require.NoError(t, execute(t, "-q", "--catalog", db, "emit", "add-path", "db", "hdfs:///warehouse/db"))
	require.NoError(t, execute(t, "-q", "--catalog", db, "emit", "add-path", "db.t", "hdfs:///warehouse/db/t"))
	require.NoError(t, execute(t, "-q", "--catalog", db, "emit", "remove-all", "db", "t"))

	store, err := catalog.Open(context.Background(), db, discardLogger())
	require.NoError(t, err)
	defer store.Close()

	snap, err := store.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Objects)
	assert.Equal(t, int64(3), snap.LastEventID)
}

func TestEmit_NoCatalog(t *testing.T) {
	isolateEnv(t)

	err := execute(t, "-q", "emit", "add-path", "db", "hdfs:///warehouse/db")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no catalog database configured")
}

func TestResync_PushesFullImageAtLastSeen(t *testing.T) {
	isolateEnv(t)

	replica := remote.NewReplica(discardLogger())
	replica.SetLastSeen(7)

	srv := httptest.NewServer(remote.NewHandler(replica))
	defer srv.Close()

	db := filepath.Join(t.TempDir(), "catalog.db")
	require.NoError(t, execute(t, "-q", "--catalog", db, "emit", "add-path", "DB", "hdfs://nn:8020/warehouse/db"))
	require.NoError(t, execute(t, "-q", "--catalog", db, "emit", "add-path", "s3tbl", "s3a://bucket/t"))

	require.NoError(t, execute(t, "-q", "--catalog", db, "--remote", srv.URL, "resync"))

	assert.Equal(t, int64(7), replica.LastSeen())
	assert.Equal(t, []string{"db"}, replica.Objects())
	assert.Equal(t, [][]string{{"warehouse", "db"}}, replica.PathsOf("db"))
}

func TestResync_ExplicitSeq(t *testing.T) {
	isolateEnv(t)

	replica := remote.NewReplica(discardLogger())

	srv := httptest.NewServer(remote.NewHandler(replica))
	defer srv.Close()

	db := filepath.Join(t.TempDir(), "catalog.db")
	require.NoError(t, execute(t, "-q", "--catalog", db, "emit", "add-path", "db", "hdfs:///warehouse/db"))
	require.NoError(t, execute(t, "-q", "--catalog", db, "--remote", srv.URL, "resync", "--seq", "42"))

	assert.Equal(t, int64(42), replica.LastSeen())
}

func TestResync_DaemonNeedsPIDFile(t *testing.T) {
	isolateEnv(t)

	err := execute(t, "-q", "resync", "--daemon")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pid_file")
}
