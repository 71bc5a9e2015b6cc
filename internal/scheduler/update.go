package scheduler

import (
	"context"
	"crypto/rand"
	"encoding/hex"

	"github.com/nextlevelbuilder/clusterd/internal/jobconfig"
	"github.com/nextlevelbuilder/clusterd/internal/model"
	"github.com/nextlevelbuilder/clusterd/internal/query"
	"github.com/nextlevelbuilder/clusterd/internal/statemanager"
)

// ShardUpdateResult is the per-instance outcome of UpdateShards/
// RollbackShards.
type ShardUpdateResult string

const (
	ShardUnchanged  ShardUpdateResult = "UNCHANGED"
	ShardRestarting ShardUpdateResult = "RESTARTING"
	ShardAdded      ShardUpdateResult = "ADDED"
)

// UpdateResultKind distinguishes the three finishUpdate dispositions.
type UpdateResultKind string

const (
	UpdateSuccess   UpdateResultKind = "SUCCESS"
	UpdateFailed    UpdateResultKind = "FAILED"
	UpdateTerminate UpdateResultKind = "TERMINATE"
)

// InitiateJobUpdate opens a token-protected rolling-update session for
// key, or — for a cron-managed job — replaces its JobConfig directly with
// no rolling update. Returns ("", false, nil) in the cron case.
func (c *Core) InitiateJobUpdate(ctx context.Context, newConfig model.JobConfig, user string) (string, bool, error) {
	if err := jobconfig.ValidateUser(user); err != nil {
		return "", false, err
	}
	key := newConfig.Key

	if c.cronReg.HasJob(key) {
		if err := c.cronReg.Replace(newConfig); err != nil {
			return "", false, err
		}
		if err := c.sm.SaveJob(ctx, newConfig); err != nil {
			return "", false, err
		}
		return "", false, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.sessions[key]; exists {
		return "", false, scheduleErr("update already in progress for job %s", key.String())
	}

	active, err := c.sm.FetchTasks(ctx, query.ByJobKey(key).Active())
	if err != nil {
		return "", false, err
	}
	for _, t := range active {
		if t.Status == model.StatusUpdating || t.Status == model.StatusRollback || t.Status == model.StatusRestarting {
			return "", false, scheduleErr("job %s has an update/restart already in flight", key.String())
		}
	}

	oldConfig, found, err := c.sm.FetchJob(ctx, key)
	if err != nil {
		return "", false, err
	}
	if !found {
		oldConfig = newConfig
	}

	token, err := randomToken()
	if err != nil {
		return "", false, err
	}

	c.sessions[key] = &updateSession{
		token:     token,
		user:      user,
		oldConfig: oldConfig,
		newConfig: newConfig,
	}
	return token, true, nil
}

func randomToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// UpdateShards drives instanceIds towards session.newConfig: an unchanged
// active task is left alone (UNCHANGED), a differing active task moves
// toward the new config (RESTARTING), and an instance with no active task
// is inserted fresh (ADDED).
func (c *Core) UpdateShards(ctx context.Context, key model.JobKey, user string, instanceIDs []int, token string) (map[int]ShardUpdateResult, error) {
	if err := jobconfig.ValidateUser(user); err != nil {
		return nil, err
	}
	session, err := c.authorizedSession(key, token)
	if err != nil {
		return nil, err
	}
	return c.driveShards(ctx, key, instanceIDs, session.newConfig, statemanager.CauseUpdate, model.StatusUpdating)
}

// RollbackShards is UpdateShards with the session's old/new roles swapped;
// instances the update added are transitioned straight to KILLING (no
// reschedule), or deleted outright while still PENDING, rather than routed
// through ROLLBACK — see DESIGN.md's rollback-added-instances decision.
func (c *Core) RollbackShards(ctx context.Context, key model.JobKey, user string, instanceIDs []int, token string) (map[int]ShardUpdateResult, error) {
	if err := jobconfig.ValidateUser(user); err != nil {
		return nil, err
	}
	session, err := c.authorizedSession(key, token)
	if err != nil {
		return nil, err
	}

	active, err := c.sm.FetchTasks(ctx, query.ByJobKey(key).Active())
	if err != nil {
		return nil, err
	}
	byInstance := make(map[int]model.ScheduledTask, len(active))
	for _, t := range active {
		byInstance[t.InstanceID()] = t
	}

	results := make(map[int]ShardUpdateResult, len(instanceIDs))
	var killIDs, deleteIDs []string
	var rollbackInstances []int
	for _, id := range instanceIDs {
		task, exists := byInstance[id]
		if exists && id >= session.oldConfig.InstanceCount {
			// Added by the update: no old config to roll back to. A PENDING
			// task has no KILLING transition and is deleted, as in KillTasks.
			if task.Status == model.StatusPending {
				deleteIDs = append(deleteIDs, task.TaskID)
			} else {
				killIDs = append(killIDs, task.TaskID)
			}
			results[id] = ShardRestarting
			continue
		}
		rollbackInstances = append(rollbackInstances, id)
	}

	if len(deleteIDs) > 0 {
		if err := c.sm.DeleteTasks(ctx, deleteIDs); err != nil {
			return nil, err
		}
	}
	if len(killIDs) > 0 {
		if _, err := c.sm.ChangeState(ctx, query.ByTaskIDs(killIDs...), model.StatusKilling, statemanager.ChangeStateOptions{
			Cause:              statemanager.CauseRollback,
			SuppressReschedule: true,
		}); err != nil {
			return nil, err
		}
	}

	rest, err := c.driveShards(ctx, key, rollbackInstances, session.oldConfig, statemanager.CauseRollback, model.StatusRollback)
	if err != nil {
		return nil, err
	}
	for id, r := range rest {
		results[id] = r
	}
	return results, nil
}

// driveShards is shared by UpdateShards and RollbackShards: targetConfig is
// the config instances should converge towards (new for update, old for
// rollback), transitionCause/killStatus select which ChangeState call
// performs the KILL that starts the transition.
func (c *Core) driveShards(ctx context.Context, key model.JobKey, instanceIDs []int, targetConfig model.JobConfig, cause statemanager.TransitionCause, killStatus model.ScheduleStatus) (map[int]ShardUpdateResult, error) {
	active, err := c.sm.FetchTasks(ctx, query.ByJobKey(key).Active())
	if err != nil {
		return nil, err
	}
	byInstance := make(map[int]model.ScheduledTask, len(active))
	for _, t := range active {
		byInstance[t.InstanceID()] = t
	}

	results := make(map[int]ShardUpdateResult, len(instanceIDs))
	var insertConfigs []model.TaskConfig

	for _, id := range instanceIDs {
		wantConfig := targetConfig.Template.TaskConfig(key, id)
		task, exists := byInstance[id]

		switch {
		case exists && task.Assigned.Task.Equal(wantConfig):
			results[id] = ShardUnchanged

		case exists && task.Status == model.StatusPending:
			if err := c.sm.RewriteTaskConfig(ctx, task.TaskID, wantConfig); err != nil {
				return nil, err
			}
			results[id] = ShardRestarting

		case exists:
			// One task at a time: each carries its own target config, since
			// ChangeStateOptions.RescheduleConfig applies to every task a
			// single ChangeState call matches.
			wc := wantConfig
			count, err := c.sm.ChangeState(ctx, query.ByTaskIDs(task.TaskID), killStatus, statemanager.ChangeStateOptions{
				Cause:            cause,
				RescheduleConfig: &wc,
			})
			if err != nil {
				return nil, err
			}
			if count > 0 {
				results[id] = ShardRestarting
			} else {
				results[id] = ShardUnchanged
			}

		case id < targetConfig.InstanceCount:
			insertConfigs = append(insertConfigs, wantConfig)
			results[id] = ShardAdded
		}
	}

	if len(insertConfigs) > 0 {
		if err := c.sm.InsertTasks(ctx, insertConfigs); err != nil {
			return nil, err
		}
	}

	return results, nil
}

func (c *Core) authorizedSession(key model.JobKey, token string) (*updateSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	session, ok := c.sessions[key]
	if !ok {
		return nil, scheduleErr("no update session for job %s", key.String())
	}
	if session.token != token {
		return nil, scheduleErr("update token mismatch for job %s", key.String())
	}
	return session, nil
}

// FinishUpdate closes session for key: validates token (absent token
// accepted only when user matches the session's owner — see DESIGN.md's
// absent-token policy decision), deletes the session, and kills any orphan
// instance left over from an instance-count shrink.
func (c *Core) FinishUpdate(ctx context.Context, key model.JobKey, user string, token *string, result UpdateResultKind) error {
	if err := jobconfig.ValidateUser(user); err != nil {
		return err
	}
	c.mu.Lock()
	session, ok := c.sessions[key]
	if !ok {
		c.mu.Unlock()
		return scheduleErr("no update session for job %s", key.String())
	}
	if token != nil {
		if *token != session.token {
			c.mu.Unlock()
			return scheduleErr("update token mismatch for job %s", key.String())
		}
	} else if user != session.user {
		c.mu.Unlock()
		return scheduleErr("finishUpdate: absent token requires the session owner")
	}
	delete(c.sessions, key)
	c.mu.Unlock()

	if err := c.sm.SaveJob(ctx, session.newConfig); err != nil {
		return err
	}

	var orphanThreshold int
	switch result {
	case UpdateSuccess:
		orphanThreshold = session.newConfig.InstanceCount
	case UpdateFailed, UpdateTerminate:
		orphanThreshold = session.oldConfig.InstanceCount
		if err := c.sm.SaveJob(ctx, session.oldConfig); err != nil {
			return err
		}
	}

	active, err := c.sm.FetchTasks(ctx, query.ByJobKey(key).Active())
	if err != nil {
		return err
	}
	var orphanIDs, pendingOrphanIDs []string
	for _, t := range active {
		if t.InstanceID() < orphanThreshold {
			continue
		}
		if t.Status == model.StatusPending {
			pendingOrphanIDs = append(pendingOrphanIDs, t.TaskID)
		} else {
			orphanIDs = append(orphanIDs, t.TaskID)
		}
	}
	if len(pendingOrphanIDs) > 0 {
		if err := c.sm.DeleteTasks(ctx, pendingOrphanIDs); err != nil {
			return err
		}
	}
	if len(orphanIDs) == 0 {
		return nil
	}

	_, err = c.sm.ChangeState(ctx, query.ByTaskIDs(orphanIDs...), model.StatusKilling, statemanager.ChangeStateOptions{
		Cause:              statemanager.CauseUserKill,
		SuppressReschedule: true,
	})
	return err
}
