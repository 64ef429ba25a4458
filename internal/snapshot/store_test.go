package snapshot_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sproutly/sproutly/internal/catalog"
	"github.com/sproutly/sproutly/internal/snapshot"
	"github.com/sproutly/sproutly/internal/tenant"
	_ "github.com/sproutly/sproutly/testing"
)

const scope = tenant.Scope("t_demo")

type fakeLoader struct {
	mu    sync.Mutex
	nodes []catalog.GrantedNode
	fail  bool
	calls int
}

func (l *fakeLoader) ListActiveNodes(ctx context.Context, s tenant.Scope) ([]catalog.GrantedNode, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.fail {
		return nil, errors.New("load failed")
	}
	return l.nodes, nil
}

func (l *fakeLoader) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func (l *fakeLoader) setFail(fail bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fail = fail
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newStore(loader *fakeLoader, clock *fakeClock) *snapshot.Store {
	return snapshot.NewStore(loader, snapshot.Options{
		TTL:        time.Minute,
		StaleGrace: 5 * time.Minute,
		Logger:     slog.Default(),
	}).WithClock(clock.Now)
}

func TestGetBuildsLazily(t *testing.T) {
	loader := &fakeLoader{nodes: []catalog.GrantedNode{{Node: catalog.Node{ID: 1, Code: "STUDENT_VIEW", Active: true}}}}
	clock := &fakeClock{now: time.Now()}
	store := newStore(loader, clock)

	snap, health := store.Get(context.Background(), scope)
	require.Equal(t, snapshot.HealthHealthy, health)
	require.NotNil(t, snap)
	assert.Len(t, snap.Nodes, 1)
	assert.Equal(t, 1, loader.callCount())

	again, health := store.Get(context.Background(), scope)
	assert.Equal(t, snapshot.HealthHealthy, health)
	assert.Same(t, snap, again)
	assert.Equal(t, 1, loader.callCount())
}

func TestGetRebuildsAfterTTL(t *testing.T) {
	loader := &fakeLoader{}
	clock := &fakeClock{now: time.Now()}
	store := newStore(loader, clock)

	store.Get(context.Background(), scope)
	clock.Advance(2 * time.Minute)
	_, health := store.Get(context.Background(), scope)
	assert.Equal(t, snapshot.HealthHealthy, health)
	assert.Equal(t, 2, loader.callCount())
}

func TestHealthDegradesOnRebuildFailure(t *testing.T) {
	loader := &fakeLoader{}
	clock := &fakeClock{now: time.Now()}
	store := newStore(loader, clock)

	built, health := store.Get(context.Background(), scope)
	require.Equal(t, snapshot.HealthHealthy, health)

	loader.setFail(true)

	// Past TTL but within the grace window the prior snapshot is kept, stale.
	clock.Advance(2 * time.Minute)
	snap, health := store.Get(context.Background(), scope)
	assert.Equal(t, snapshot.HealthStale, health)
	assert.Same(t, built, snap)

	// Beyond the grace window nothing is trustworthy.
	clock.Advance(10 * time.Minute)
	_, health = store.Get(context.Background(), scope)
	assert.Equal(t, snapshot.HealthUnavailable, health)

	// Recovery on the next successful rebuild.
	loader.setFail(false)
	recovered, health := store.Get(context.Background(), scope)
	assert.Equal(t, snapshot.HealthHealthy, health)
	assert.NotSame(t, built, recovered)
}

func TestInvalidateForcesRebuild(t *testing.T) {
	loader := &fakeLoader{}
	clock := &fakeClock{now: time.Now()}
	store := newStore(loader, clock)

	store.Get(context.Background(), scope)
	store.Invalidate(context.Background(), scope)
	store.Get(context.Background(), scope)
	assert.Equal(t, 2, loader.callCount())
}

func TestFirstBuildFailureIsUnavailable(t *testing.T) {
	loader := &fakeLoader{fail: true}
	clock := &fakeClock{now: time.Now()}
	store := newStore(loader, clock)

	snap, health := store.Get(context.Background(), scope)
	assert.Equal(t, snapshot.HealthUnavailable, health)
	assert.Nil(t, snap)
}

func TestCrossInstanceInvalidation(t *testing.T) {
	srv := miniredis.RunT(t)

	newClient := func() *redis.Client {
		client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		return client
	}

	clock := &fakeClock{now: time.Now()}
	listenerLoader := &fakeLoader{}
	listener := snapshot.NewStore(listenerLoader, snapshot.Options{
		TTL: time.Hour, StaleGrace: time.Hour, Redis: newClient(), Logger: slog.Default(),
	}).WithClock(clock.Now)
	publisher := snapshot.NewStore(&fakeLoader{}, snapshot.Options{
		TTL: time.Hour, StaleGrace: time.Hour, Redis: newClient(), Logger: slog.Default(),
	}).WithClock(clock.Now)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = listener.Listen(ctx) }()

	// An undecodable scope is skipped; a delivery count of one proves the
	// subscription is live before the real event goes out.
	require.Eventually(t, func() bool {
		return srv.Publish(snapshot.InvalidateChannel, "{}") == 1
	}, 2*time.Second, 10*time.Millisecond)

	listener.Get(ctx, scope)
	require.Equal(t, 1, listenerLoader.callCount())

	publisher.Invalidate(ctx, scope)

	assert.Eventually(t, func() bool {
		listener.Get(ctx, scope)
		return listenerLoader.callCount() > 1
	}, 2*time.Second, 20*time.Millisecond)
}
