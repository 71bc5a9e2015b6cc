// Package backfill runs the startup storage migration: synthesize missing
// modern TaskConfig fields, then enforce shard uniqueness by killing every
// duplicate active task per (JobKey, instanceId) group but the
// lexicographically smallest taskId.
package backfill

import (
	"context"
	"log/slog"
	"sort"

	"github.com/nextlevelbuilder/clusterd/internal/model"
	"github.com/nextlevelbuilder/clusterd/internal/query"
	"github.com/nextlevelbuilder/clusterd/internal/taskstore"
)

const legacyExecutorName = "AuroraExecutor"

// defaultMaxTaskFailures is the default retry budget for a task that never
// had one recorded.
const defaultMaxTaskFailures = 1

// Run performs the startup backfill inside a single write transaction,
// before the store accepts any external request. logger may be nil.
func Run(ctx context.Context, store taskstore.TaskStore, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	return store.Write(ctx, func(mutable taskstore.MutableStore) error {
		all := mutable.FetchTasks(query.Query{})

		synthesizeLegacyFields(mutable, all, logger)

		// Re-fetch: synthesis may have rewritten configs in place.
		all = mutable.FetchTasks(query.Query{})
		enforceShardUniqueness(mutable, all, logger)

		return nil
	})
}

// synthesizeLegacyFields rewrites tasks lacking a modern TaskConfig field
// set: maxTaskFailures default 1, hostLimitConstraint(1) when unconstrained,
// and executorConfig synthesized under name "AuroraExecutor" when empty.
func synthesizeLegacyFields(mutable taskstore.MutableStore, tasks []model.ScheduledTask, logger *slog.Logger) {
	for _, t := range tasks {
		needsRewrite := t.Assigned.Task.MaxTaskFailures <= 0 ||
			len(t.Assigned.Task.Constraints) == 0 ||
			t.Assigned.Task.ExecutorConfig.Name == ""
		if !needsRewrite {
			continue
		}

		taskID := t.TaskID
		mutable.Mutate(taskID, func(current model.ScheduledTask) (model.ScheduledTask, bool) {
			if current.Assigned.Task.MaxTaskFailures <= 0 {
				current.Assigned.Task.MaxTaskFailures = defaultMaxTaskFailures
			}
			if len(current.Assigned.Task.Constraints) == 0 {
				current.Assigned.Task.Constraints = []model.Constraint{{
					Kind:  model.ConstraintHostLimit,
					Limit: 1,
				}}
			}
			if current.Assigned.Task.ExecutorConfig.Name == "" {
				current.Assigned.Task.ExecutorConfig = model.ExecutorConfig{
					Name: legacyExecutorName,
					Data: current.Assigned.Task.ExecutorConfig.Data,
				}
			}
			return current, true
		})
		logger.Info("backfill: synthesized legacy task config fields", "task_id", taskID)
	}
}

// enforceShardUniqueness is the startup enforcement pass for shard
// uniqueness: group active tasks by (JobKey, instanceId); for every group
// of size >1, keep the lexicographically smallest taskId and force the
// rest to KILLED.
func enforceShardUniqueness(mutable taskstore.MutableStore, tasks []model.ScheduledTask, logger *slog.Logger) {
	type shardKey struct {
		job        model.JobKey
		instanceID int
	}
	groups := make(map[shardKey][]model.ScheduledTask)
	for _, t := range tasks {
		if !t.IsActive() {
			continue
		}
		k := shardKey{job: t.JobKey(), instanceID: t.InstanceID()}
		groups[k] = append(groups[k], t)
	}

	for k, group := range groups {
		if len(group) <= 1 {
			continue
		}
		sort.Slice(group, func(i, j int) bool { return group[i].TaskID < group[j].TaskID })
		keep := group[0].TaskID

		for _, dup := range group[1:] {
			id := dup.TaskID
			mutable.Mutate(id, func(current model.ScheduledTask) (model.ScheduledTask, bool) {
				current.Status = model.StatusKilled
				current.TaskEvents = append(current.TaskEvents, model.TaskEvent{
					Status:        model.StatusKilled,
					Message:       "killed by startup shard-uniqueness backfill",
					SchedulerHost: "backfill",
				})
				return current, true
			})
			logger.Warn("backfill: forced duplicate shard to KILLED",
				"job", k.job.String(), "instance_id", k.instanceID, "kept", keep, "killed", id)
		}
	}
}
