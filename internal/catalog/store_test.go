package catalog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "catalog.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return s
}

func TestOpen_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "catalog.db")

	s, err := Open(ctx, path, nil)
	require.NoError(t, err)

	_, err = s.AddPath(ctx, "db.t", "hdfs:///w/t")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(ctx, path, nil)
	require.NoError(t, err)
	defer s.Close()

	id, err := s.LastEventID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
}

func TestMutations_AppendEvents(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s.nowFunc = func() time.Time { return fixed }

	id, err := s.AddPath(ctx, "db.t", "hdfs:///w/t")
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	_, err = s.RemovePath(ctx, "db.t", "hdfs:///w/t")
	require.NoError(t, err)
	_, err = s.RemoveAllPaths(ctx, "db.t", []string{"p=1", "p=2"})
	require.NoError(t, err)
	_, err = s.RenameObject(ctx, "db.t", "hdfs:///w/t", "db.u", "hdfs:///w/u")
	require.NoError(t, err)

	events, err := s.EventsSince(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, events, 4)

	assert.Equal(t, EventAddPath, events[0].Type)
	assert.Equal(t, "hdfs:///w/t", events[0].Path)
	assert.Empty(t, events[0].Children)
	assert.True(t, fixed.Equal(events[0].CreatedAt))

	assert.Equal(t, EventRemovePath, events[1].Type)
	assert.Equal(t, EventRemoveAllPaths, events[2].Type)
	assert.Equal(t, []string{"p=1", "p=2"}, events[2].Children)

	assert.Equal(t, EventRenameObject, events[3].Type)
	assert.Equal(t, "db.t", events[3].ObjectName)
	assert.Equal(t, "db.u", events[3].NewObjectName)
	assert.Equal(t, "hdfs:///w/u", events[3].NewPath)

	later, err := s.EventsSince(ctx, 2, 1)
	require.NoError(t, err)
	require.Len(t, later, 1)
	assert.Equal(t, int64(3), later[0].ID)
}

func TestSnapshot(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	mustAdd := func(name, loc string) {
		_, err := s.AddPath(ctx, name, loc)
		require.NoError(t, err)
	}

	mustAdd("db", "hdfs:///w/db")
	mustAdd("db.t", "hdfs:///w/db/t")
	mustAdd("db.t", "hdfs:///w/db/t")
	mustAdd("db.t.p=1", "hdfs:///w/db/t/p=1")
	mustAdd("db.t.p=2", "hdfs:///w/db/t/p=2")
	mustAdd("db.v", "hdfs:///w/db/v")

	_, err := s.RemoveAllPaths(ctx, "db.t", []string{"p=1"})
	require.NoError(t, err)
	_, err = s.RemovePath(ctx, "db.v", "*")
	require.NoError(t, err)

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(8), snap.LastEventID)
	assert.Equal(t, map[string][]string{
		"db":       {"hdfs:///w/db"},
		"db.t.p=2": {"hdfs:///w/db/t/p=2"},
	}, snap.Objects)
}

func TestRenameObject(t *testing.T) {
	tests := []struct {
		name        string
		oldLocation string
		newLocation string
		want        map[string][]string
	}{
		{
			name:        "moves location",
			oldLocation: "hdfs:///w/a",
			newLocation: "hdfs:///w/b",
			want:        map[string][]string{"db.b": {"hdfs:///w/b", "hdfs:///w/extra"}},
		},
		{
			name: "keeps locations",
			want: map[string][]string{"db.b": {"hdfs:///w/a", "hdfs:///w/extra"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := openTestStore(t)
			ctx := context.Background()

			_, err := s.AddPath(ctx, "db.a", "hdfs:///w/a")
			require.NoError(t, err)
			_, err = s.AddPath(ctx, "db.a", "hdfs:///w/extra")
			require.NoError(t, err)

			_, err = s.RenameObject(ctx, "db.a", tt.oldLocation, "db.b", tt.newLocation)
			require.NoError(t, err)

			snap, err := s.Snapshot(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, snap.Objects)
		})
	}
}

func TestLastEventID_Empty(t *testing.T) {
	s := openTestStore(t)

	id, err := s.LastEventID(context.Background())
	require.NoError(t, err)
	assert.Zero(t, id)
}
