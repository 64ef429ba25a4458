package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/sproutly/sproutly/internal/snapshot"
	"github.com/sproutly/sproutly/internal/tenant"
)

// ScopeLister enumerates registered tenant scopes.
type ScopeLister interface {
	ListScopes(ctx context.Context) ([]tenant.Scope, error)
}

// SnapshotGetter refreshes a scope's snapshot as a side effect of reading it.
type SnapshotGetter interface {
	Get(ctx context.Context, scope tenant.Scope) (*snapshot.Snapshot, snapshot.Health)
}

// NewSnapshotWarmupHandler walks every registered tenant and touches its
// snapshot so TTL refreshes happen off the request path. A tenant whose
// rebuild fails is logged and skipped; the task itself only fails when the
// tenant registry is unreachable.
func NewSnapshotWarmupHandler(scopes ScopeLister, snapshots SnapshotGetter, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		list, err := scopes.ListScopes(ctx)
		if err != nil {
			return err
		}
		for _, scope := range list {
			if _, health := snapshots.Get(ctx, scope); health != snapshot.HealthHealthy {
				logger.Warn("snapshot warmup degraded",
					slog.String("scope", string(scope)),
					slog.String("health", health.String()))
			}
		}
		logger.Info("snapshot warmup complete", slog.Int("tenants", len(list)))
		return nil
	}
}
