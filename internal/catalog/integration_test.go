package catalog

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ultratendency/sentry/internal/pathsync"
	"github.com/ultratendency/sentry/internal/remote"
	"github.com/ultratendency/sentry/internal/update"
)

// TestCatalogToReplica drives catalog mutations through the listener and
// engine into a replica remote service, including mutations made before
// the path cache is bootstrapped.
func TestCatalogToReplica(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s := openTestStore(t)
	parser := newTestParser(t)

	replica := remote.NewReplica(nil)
	srv := httptest.NewServer(remote.NewHandler(replica))
	defer srv.Close()

	_, err := s.AddPath(ctx, "db", "/w/db")
	require.NoError(t, err)

	head, err := s.LastEventID(ctx)
	require.NoError(t, err)

	engine := pathsync.NewEngine(&pathsync.EngineConfig{
		Parser: parser,
		Dial: func(ctx context.Context) (pathsync.RemoteClient, error) {
			return remote.Dial(ctx, &remote.Options{Endpoints: []string{srv.URL}, Compress: true})
		},
		InitialDelay: 5 * time.Millisecond,
		Period:       5 * time.Millisecond,
	})

	l := NewListener(&ListenerConfig{
		Store:        s,
		Sink:         engine,
		After:        head,
		PollInterval: 5 * time.Millisecond,
	})

	// Arrives before bootstrap: queued by the engine.
	_, err = s.AddPath(ctx, "db.t", "/w/db/t")
	require.NoError(t, err)

	_, err = l.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, engine.PendingCount())

	require.NoError(t, engine.Initialize(ctx, NewBootstrapper(s, parser, nil)))
	assert.Equal(t, pathsync.StateReady, engine.State())

	listenDone := make(chan error, 1)
	go func() { listenDone <- l.Run(ctx) }()

	repairCtx, stopRepair := context.WithCancel(ctx)
	repairDone := make(chan error, 1)
	go func() { repairDone <- engine.RunRepair(repairCtx) }()

	_, err = s.RenameObject(ctx, "db.t", "/w/db/t", "db.u", "/w/db/u")
	require.NoError(t, err)
	_, err = s.AddPath(ctx, "db.s3", "s3a://bucket/x")
	require.NoError(t, err)
	_, err = s.AddPath(ctx, "db.u.p=1", "/w/db/u/p=1")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return engine.LastSentSeqNum() == 8 && replica.LastSeen() == 8
	}, 10*time.Second, 5*time.Millisecond)

	// Simulate a replica restart: it forgets everything.
	replica.Apply(update.New(0, true))

	require.Eventually(t, func() bool {
		return replica.LastSeen() == 8 && len(replica.Objects()) == 3
	}, 10*time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{"db", "db.u", "db.u.p=1"}, replica.Objects())
	assert.Equal(t, [][]string{{"w", "db", "u"}}, replica.PathsOf("db.u"))

	stopRepair()
	require.NoError(t, <-repairDone)

	cancel()
	require.NoError(t, <-listenDone)
}
