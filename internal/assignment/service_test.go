package assignment_test

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sproutly/sproutly/internal/assignment"
	"github.com/sproutly/sproutly/internal/tenant"
	_ "github.com/sproutly/sproutly/testing"
)

const scope = tenant.Scope("t_demo")

type stubRepo struct {
	grants        map[int64][]int64
	assignments   []assignment.UserRoleAssignment
	attached      []int64
	detached      []int64
	clearedUsers  []int64
	inserted      []assignment.UserRoleAssignment
	deletedRows   int64
	activeRoleIDs []int64
}

func (r *stubRepo) ListRoleGrantIDs(ctx context.Context, s tenant.Scope, roleID int64) ([]int64, error) {
	return r.grants[roleID], nil
}

func (r *stubRepo) AttachGrant(ctx context.Context, s tenant.Scope, roleID, permissionID int64) error {
	r.attached = append(r.attached, permissionID)
	return nil
}

func (r *stubRepo) DetachGrant(ctx context.Context, s tenant.Scope, roleID, permissionID int64) error {
	r.detached = append(r.detached, permissionID)
	return nil
}

func (r *stubRepo) ActiveRoleIDs(ctx context.Context, s tenant.Scope, userID int64) ([]int64, error) {
	return r.activeRoleIDs, nil
}

func (r *stubRepo) ListAssignmentsForUser(ctx context.Context, s tenant.Scope, userID int64) ([]assignment.UserRoleAssignment, error) {
	return r.assignments, nil
}

func (r *stubRepo) InsertAssignment(ctx context.Context, s tenant.Scope, a assignment.UserRoleAssignment) error {
	r.inserted = append(r.inserted, a)
	return nil
}

func (r *stubRepo) ClearPrimary(ctx context.Context, s tenant.Scope, userID int64) error {
	r.clearedUsers = append(r.clearedUsers, userID)
	return nil
}

func (r *stubRepo) DeleteAssignment(ctx context.Context, s tenant.Scope, userID, roleID int64) (int64, error) {
	return r.deletedRows, nil
}

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func bounded(userID, roleID int64, start, end time.Time) assignment.UserRoleAssignment {
	return assignment.UserRoleAssignment{UserID: userID, RoleID: roleID, StartTime: &start, EndTime: &end}
}

func TestReplaceRoleGrantsDiffs(t *testing.T) {
	repo := &stubRepo{grants: map[int64][]int64{1: {10, 11, 12}}}
	svc := assignment.NewService(repo)

	changed, err := svc.ReplaceRoleGrants(context.Background(), scope, 1, []int64{11, 12, 13, 13})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, []int64{13}, repo.attached)
	assert.Equal(t, []int64{10}, repo.detached)
}

func TestReplaceRoleGrantsNoChange(t *testing.T) {
	repo := &stubRepo{grants: map[int64][]int64{1: {10, 11}}}
	svc := assignment.NewService(repo)

	changed, err := svc.ReplaceRoleGrants(context.Background(), scope, 1, []int64{11, 10})
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Empty(t, repo.attached)
	assert.Empty(t, repo.detached)
}

func TestReplaceRoleGrantsEmptySetDetachesAll(t *testing.T) {
	repo := &stubRepo{grants: map[int64][]int64{1: {10, 11}}}
	svc := assignment.NewService(repo)

	changed, err := svc.ReplaceRoleGrants(context.Background(), scope, 1, nil)
	require.NoError(t, err)
	assert.True(t, changed)
	sort.Slice(repo.detached, func(i, j int) bool { return repo.detached[i] < repo.detached[j] })
	assert.Equal(t, []int64{10, 11}, repo.detached)
}

func TestAssignRoleRejectsOverlappingWindow(t *testing.T) {
	existing := bounded(101, 1, ts("2026-01-01T00:00:00Z"), ts("2026-06-30T00:00:00Z"))
	repo := &stubRepo{assignments: []assignment.UserRoleAssignment{existing}}
	svc := assignment.NewService(repo)

	overlapping := bounded(101, 1, ts("2026-06-01T00:00:00Z"), ts("2026-12-31T00:00:00Z"))
	err := svc.AssignRole(context.Background(), scope, overlapping)
	require.ErrorIs(t, err, assignment.ErrOverlappingWindow)
	assert.Empty(t, repo.inserted)
}

func TestAssignRoleAllowsDisjointWindow(t *testing.T) {
	existing := bounded(101, 1, ts("2026-01-01T00:00:00Z"), ts("2026-06-30T00:00:00Z"))
	repo := &stubRepo{assignments: []assignment.UserRoleAssignment{existing}}
	svc := assignment.NewService(repo)

	later := bounded(101, 1, ts("2026-09-01T00:00:00Z"), ts("2026-12-31T00:00:00Z"))
	err := svc.AssignRole(context.Background(), scope, later)
	require.NoError(t, err)
	require.Len(t, repo.inserted, 1)
}

func TestAssignRoleOpenEndedAlwaysOverlaps(t *testing.T) {
	repo := &stubRepo{assignments: []assignment.UserRoleAssignment{{UserID: 101, RoleID: 1}}}
	svc := assignment.NewService(repo)

	windowed := bounded(101, 1, ts("2030-01-01T00:00:00Z"), ts("2030-06-30T00:00:00Z"))
	err := svc.AssignRole(context.Background(), scope, windowed)
	require.ErrorIs(t, err, assignment.ErrOverlappingWindow)
}

func TestAssignRoleDifferentRoleUnaffected(t *testing.T) {
	repo := &stubRepo{assignments: []assignment.UserRoleAssignment{{UserID: 101, RoleID: 2}}}
	svc := assignment.NewService(repo)

	err := svc.AssignRole(context.Background(), scope, assignment.UserRoleAssignment{UserID: 101, RoleID: 1})
	require.NoError(t, err)
	assert.Len(t, repo.inserted, 1)
}

func TestAssignRolePrimaryClearsOthers(t *testing.T) {
	repo := &stubRepo{}
	svc := assignment.NewService(repo)

	err := svc.AssignRole(context.Background(), scope, assignment.UserRoleAssignment{
		UserID: 101, RoleID: 1, IsPrimary: true,
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{101}, repo.clearedUsers)
	require.Len(t, repo.inserted, 1)
	assert.True(t, repo.inserted[0].IsPrimary)
}

func TestRemoveRoleReportsNoRow(t *testing.T) {
	repo := &stubRepo{deletedRows: 0}
	svc := assignment.NewService(repo)

	removed, err := svc.RemoveRole(context.Background(), scope, 101, 1)
	require.NoError(t, err)
	assert.False(t, removed)

	repo.deletedRows = 1
	removed, err = svc.RemoveRole(context.Background(), scope, 101, 1)
	require.NoError(t, err)
	assert.True(t, removed)
}

func TestValidAt(t *testing.T) {
	open := assignment.UserRoleAssignment{UserID: 101, RoleID: 1}
	assert.True(t, open.ValidAt(ts("2026-08-31T00:00:00Z")))

	windowed := bounded(101, 1, ts("2026-01-01T00:00:00Z"), ts("2026-06-30T00:00:00Z"))
	assert.True(t, windowed.ValidAt(ts("2026-03-01T00:00:00Z")))
	assert.False(t, windowed.ValidAt(ts("2026-07-01T00:00:00Z")))
	assert.False(t, windowed.ValidAt(ts("2025-12-31T00:00:00Z")))
}
