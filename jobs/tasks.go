// Package jobs hosts the background maintenance tasks keeping permission
// snapshots warm and assignments tidy.
package jobs

import "github.com/hibiken/asynq"

// QueueDefault is the queue all maintenance tasks run on.
const QueueDefault = "default"

// Task types.
const (
	TaskSnapshotWarmup  = "sproutly:snapshot:warmup"
	TaskAssignmentSweep = "sproutly:assignment:sweep"
)

// NewSnapshotWarmupTask builds the snapshot warmup task.
func NewSnapshotWarmupTask() *asynq.Task {
	return asynq.NewTask(TaskSnapshotWarmup, nil)
}

// NewAssignmentSweepTask builds the expired-assignment sweep task.
func NewAssignmentSweepTask() *asynq.Task {
	return asynq.NewTask(TaskAssignmentSweep, nil)
}
