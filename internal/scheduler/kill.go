package scheduler

import (
	"context"

	"github.com/nextlevelbuilder/clusterd/internal/jobconfig"
	"github.com/nextlevelbuilder/clusterd/internal/model"
	"github.com/nextlevelbuilder/clusterd/internal/query"
	"github.com/nextlevelbuilder/clusterd/internal/statemanager"
)

// KillTasks resolves q to a taskId set and kills each: PENDING tasks are
// deleted directly, active tasks transition to KILLING, terminal tasks are
// untouched. A strictly job-scoped query against a cron-registered JobKey
// additionally descheduls the cron registration.
func (c *Core) KillTasks(ctx context.Context, q query.Query, user string) error {
	if err := jobconfig.ValidateUser(user); err != nil {
		return err
	}

	tasks, err := c.sm.FetchTasks(ctx, q)
	if err != nil {
		return err
	}

	var pendingIDs []string
	for _, t := range tasks {
		if t.Status == model.StatusPending {
			pendingIDs = append(pendingIDs, t.TaskID)
		}
	}
	if len(pendingIDs) > 0 {
		if err := c.sm.DeleteTasks(ctx, pendingIDs); err != nil {
			return err
		}
	}

	if _, err := c.sm.ChangeState(ctx, q.WithStatuses(activeNonPendingStatuses()...), model.StatusKilling, statemanager.ChangeStateOptions{
		Cause:              statemanager.CauseUserKill,
		SuppressReschedule: q.IsStrictlyJobScoped(),
	}); err != nil {
		return err
	}

	if q.IsStrictlyJobScoped() && q.JobKey != nil {
		if c.cronReg.HasJob(*q.JobKey) {
			c.cronReg.Deschedule(*q.JobKey)
		}
		if err := c.sm.RemoveJob(ctx, *q.JobKey); err != nil {
			return err
		}
		c.mu.Lock()
		delete(c.sessions, *q.JobKey)
		c.mu.Unlock()
	}
	return nil
}

// activeNonPendingStatuses is model.ActiveStatuses() minus PENDING, since
// KillTasks handles PENDING via direct deletion instead of a KILLING
// transition.
func activeNonPendingStatuses() []model.ScheduleStatus {
	var out []model.ScheduleStatus
	for _, s := range model.ActiveStatuses() {
		if s != model.StatusPending {
			out = append(out, s)
		}
	}
	return out
}

// RestartShards transitions the single active task at each instanceId to
// RESTARTING (PENDING tasks require no transition and count as restarted).
// Fails if any requested instanceId has no active or pending task.
func (c *Core) RestartShards(ctx context.Context, key model.JobKey, instanceIDs []int, user string) error {
	if err := jobconfig.ValidateUser(user); err != nil {
		return err
	}

	tasks, err := c.sm.FetchTasks(ctx, query.ByJobKey(key).Active())
	if err != nil {
		return err
	}

	byInstance := make(map[int]model.ScheduledTask, len(tasks))
	for _, t := range tasks {
		byInstance[t.InstanceID()] = t
	}

	var restartIDs []string
	for _, id := range instanceIDs {
		task, ok := byInstance[id]
		if !ok {
			return scheduleErr("restartShards: no active task at instance %d of job %s", id, key.String())
		}
		if task.Status == model.StatusPending {
			continue
		}
		restartIDs = append(restartIDs, task.TaskID)
	}
	if len(restartIDs) == 0 {
		return nil
	}

	_, err = c.sm.ChangeState(ctx, query.ByTaskIDs(restartIDs...), model.StatusRestarting, statemanager.ChangeStateOptions{
		Cause: statemanager.CauseRestart,
	})
	return err
}
