package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ultratendency/sentry/internal/pathtree"
)

func newTestParser(t *testing.T) *pathtree.Parser {
	t.Helper()

	p, err := pathtree.NewParser("hdfs", "hdfs://nn:8020", nil)
	require.NoError(t, err)

	return p
}

func TestBuild_LoadsTrackedLocations(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, row := range [][2]string{
		{"DB.Tbl", "hdfs://nn:8020/w/db/tbl"},
		{"db.tbl", "/w/db/tbl2"},
		{"db.s3", "s3a://bucket/db/s3"},
	} {
		_, err := s.AddPath(ctx, row[0], row[1])
		require.NoError(t, err)
	}

	paths, err := NewBootstrapper(s, newTestParser(t), nil).Build(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"db.tbl"}, paths.Objects())
	assert.Equal(t, [][]string{{"w", "db", "tbl"}, {"w", "db", "tbl2"}}, paths.PathsOf("db.tbl"))
}

func TestBootstrap_MalformedLocationFails(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.AddPath(ctx, "db.bad", "hdfs://nn:bad/x")
	require.NoError(t, err)

	cache, err := NewBootstrapper(s, newTestParser(t), nil).Bootstrap(ctx)
	require.ErrorIs(t, err, pathtree.ErrMalformedPath)
	assert.Nil(t, cache)
}
