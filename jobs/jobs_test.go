package jobs_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sproutly/sproutly/internal/snapshot"
	"github.com/sproutly/sproutly/internal/tenant"
	"github.com/sproutly/sproutly/jobs"
	_ "github.com/sproutly/sproutly/testing"
)

type stubLister struct {
	scopes []tenant.Scope
	err    error
}

func (s *stubLister) ListScopes(ctx context.Context) ([]tenant.Scope, error) {
	return s.scopes, s.err
}

type stubSnapshots struct {
	touched []tenant.Scope
	unhappy map[tenant.Scope]snapshot.Health
	dropped []tenant.Scope
}

func (s *stubSnapshots) Get(ctx context.Context, scope tenant.Scope) (*snapshot.Snapshot, snapshot.Health) {
	s.touched = append(s.touched, scope)
	if health, ok := s.unhappy[scope]; ok {
		return nil, health
	}
	return &snapshot.Snapshot{Scope: scope}, snapshot.HealthHealthy
}

func (s *stubSnapshots) Invalidate(ctx context.Context, scope tenant.Scope) {
	s.dropped = append(s.dropped, scope)
}

type stubSweeper struct {
	removed map[tenant.Scope]int64
	errs    map[tenant.Scope]error
}

func (s *stubSweeper) SweepExpired(ctx context.Context, scope tenant.Scope) (int64, error) {
	if err := s.errs[scope]; err != nil {
		return 0, err
	}
	return s.removed[scope], nil
}

func TestSnapshotWarmupTouchesAllScopes(t *testing.T) {
	lister := &stubLister{scopes: []tenant.Scope{"t_one", "t_two"}}
	snapshots := &stubSnapshots{unhappy: map[tenant.Scope]snapshot.Health{"t_two": snapshot.HealthUnavailable}}

	handler := jobs.NewSnapshotWarmupHandler(lister, snapshots, slog.Default())
	require.NoError(t, handler(context.Background(), jobs.NewSnapshotWarmupTask()))
	assert.Equal(t, []tenant.Scope{"t_one", "t_two"}, snapshots.touched)
}

func TestSnapshotWarmupFailsOnRegistryError(t *testing.T) {
	lister := &stubLister{err: errors.New("registry down")}
	handler := jobs.NewSnapshotWarmupHandler(lister, &stubSnapshots{}, slog.Default())
	assert.Error(t, handler(context.Background(), jobs.NewSnapshotWarmupTask()))
}

func TestAssignmentSweepInvalidatesChangedScopes(t *testing.T) {
	lister := &stubLister{scopes: []tenant.Scope{"t_one", "t_two", "t_three"}}
	sweeper := &stubSweeper{
		removed: map[tenant.Scope]int64{"t_one": 3},
		errs:    map[tenant.Scope]error{"t_three": errors.New("schema missing")},
	}
	snapshots := &stubSnapshots{}

	handler := jobs.NewAssignmentSweepHandler(lister, sweeper, snapshots, slog.Default())
	require.NoError(t, handler(context.Background(), jobs.NewAssignmentSweepTask()))

	// Only the scope that actually lost rows gets invalidated; a failing
	// scope is skipped without aborting the sweep.
	assert.Equal(t, []tenant.Scope{"t_one"}, snapshots.dropped)
}
