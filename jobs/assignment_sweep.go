package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/sproutly/sproutly/internal/tenant"
)

// Sweeper removes expired time-bounded assignments for one scope.
type Sweeper interface {
	SweepExpired(ctx context.Context, scope tenant.Scope) (int64, error)
}

// Invalidator drops a scope's snapshot after its assignments changed.
type Invalidator interface {
	Invalidate(ctx context.Context, scope tenant.Scope)
}

// NewAssignmentSweepHandler deletes expired assignments tenant by tenant and
// invalidates the snapshot of every tenant that lost rows.
func NewAssignmentSweepHandler(scopes ScopeLister, sweeper Sweeper, snapshots Invalidator, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		list, err := scopes.ListScopes(ctx)
		if err != nil {
			return err
		}
		var total int64
		for _, scope := range list {
			removed, err := sweeper.SweepExpired(ctx, scope)
			if err != nil {
				logger.Error("assignment sweep",
					slog.String("scope", string(scope)), slog.Any("error", err))
				continue
			}
			if removed > 0 {
				snapshots.Invalidate(ctx, scope)
				total += removed
			}
		}
		logger.Info("assignment sweep complete",
			slog.Int("tenants", len(list)), slog.Int64("removed", total))
		return nil
	}
}
