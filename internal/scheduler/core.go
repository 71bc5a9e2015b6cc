// Package scheduler implements Core, the scheduler's public facade: job
// admission, instance materialization, the cron job registry, update/
// rollback orchestration, and kill/restart dispatch.
package scheduler

import (
	"context"
	"log/slog"
	"sync"

	"github.com/nextlevelbuilder/clusterd/internal/admission"
	"github.com/nextlevelbuilder/clusterd/internal/cronregistry"
	"github.com/nextlevelbuilder/clusterd/internal/jobconfig"
	"github.com/nextlevelbuilder/clusterd/internal/model"
	"github.com/nextlevelbuilder/clusterd/internal/query"
	"github.com/nextlevelbuilder/clusterd/internal/statemanager"
)

// Core is the scheduler's facade over admission, the task FSM, cron
// registration, and update orchestration.
type Core struct {
	sm      *statemanager.StateManager
	cronReg *cronregistry.Registry
	logger  *slog.Logger

	filterMu sync.RWMutex
	filter   admission.JobFilter

	mu       sync.Mutex
	sessions map[model.JobKey]*updateSession
}

// updateSession is the per-JobKey, token-protected record of an
// in-progress rolling update.
type updateSession struct {
	token     string
	user      string
	oldConfig model.JobConfig
	newConfig model.JobConfig
}

// New constructs a Core. cronTrigger is used to build the cron job
// registry, wiring Core.startCronJobCallback as the callback the registry
// invokes when a schedule fires — never a back-pointer to Core itself
// beyond this one explicit function value.
func New(sm *statemanager.StateManager, cronTrigger cronregistry.CronTrigger, filter admission.JobFilter, logger *slog.Logger) *Core {
	if filter == nil {
		filter = admission.AllowAll{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	core := &Core{
		sm:       sm,
		filter:   filter,
		logger:   logger,
		sessions: make(map[model.JobKey]*updateSession),
	}
	core.cronReg = cronregistry.New(cronTrigger, core.startCronJobCallback, logger)
	return core
}

// SetFilter swaps the admission filter applied to subsequent CreateJob
// calls. Used to pick up a changed admission expression without
// restarting the process.
func (c *Core) SetFilter(filter admission.JobFilter) {
	if filter == nil {
		filter = admission.AllowAll{}
	}
	c.filterMu.Lock()
	defer c.filterMu.Unlock()
	c.filter = filter
}

func (c *Core) startCronJobCallback(key model.JobKey) {
	if err := c.StartCronJob(context.Background(), key); err != nil {
		c.logger.Error("scheduler: cron-triggered startCronJob failed", "job", key.String(), "error", err)
	}
}

// CreateJob validates cfg, runs it past the admission filter, and either
// schedules it as a cron job or materializes its instances immediately.
func (c *Core) CreateJob(ctx context.Context, cfg model.JobConfig) error {
	if err := jobconfig.Validate(cfg); err != nil {
		return err
	}

	c.filterMu.RLock()
	verdict := c.filter.Filter(cfg)
	c.filterMu.RUnlock()
	if !verdict.Pass {
		return invalidConfigErr("job filter rejected job %s: %s", cfg.Key.String(), verdict.Reason)
	}

	activeTasks, err := c.sm.FetchTasks(ctx, query.ByJobKey(cfg.Key).Active())
	if err != nil {
		return err
	}
	if len(activeTasks) > 0 {
		return scheduleErr("job %s already has active instances", cfg.Key.String())
	}
	if c.cronReg.HasJob(cfg.Key) {
		return scheduleErr("job %s is already cron-registered", cfg.Key.String())
	}

	if err := c.sm.SaveJob(ctx, cfg); err != nil {
		return err
	}

	if cfg.IsCron() {
		return c.cronReg.Schedule(cfg)
	}

	return c.insertInstances(ctx, cfg, 0, cfg.InstanceCount)
}

func (c *Core) insertInstances(ctx context.Context, cfg model.JobConfig, from, to int) error {
	configs := make([]model.TaskConfig, 0, to-from)
	for i := from; i < to; i++ {
		configs = append(configs, cfg.Template.TaskConfig(cfg.Key, i))
	}
	return c.sm.InsertTasks(ctx, configs)
}

// StartCronJob materializes instances for a cron-registered job. It is
// called both by the CronTrigger callback and directly for an immediate,
// manual fire.
func (c *Core) StartCronJob(ctx context.Context, key model.JobKey) error {
	cfg, ok := c.cronReg.GetJob(key)
	if !ok {
		return scheduleErr("job %s is not cron-registered", key.String())
	}

	active, err := c.sm.FetchTasks(ctx, query.ByJobKey(key).Active())
	if err != nil {
		return err
	}

	if len(active) == 0 {
		return c.insertInstances(ctx, cfg, 0, cfg.InstanceCount)
	}

	switch cfg.EffectiveCollisionPolicy() {
	case model.CancelNew:
		return nil

	case model.RunOverlap:
		// See DESIGN.md Open Question 1: a RUN_OVERLAP firing inserts a
		// fresh generation of PENDING tasks alongside the existing ones;
		// the startup backfill does not tell generations apart and keeps
		// one active task per instanceId.
		return c.insertInstances(ctx, cfg, 0, cfg.InstanceCount)

	default: // KillExisting
		var pendingIDs []string
		for _, t := range active {
			if t.Status == model.StatusPending {
				pendingIDs = append(pendingIDs, t.TaskID)
			}
		}
		if len(pendingIDs) > 0 {
			if err := c.sm.DeleteTasks(ctx, pendingIDs); err != nil {
				return err
			}
		}
		if _, err := c.sm.ChangeState(ctx, query.ByJobKey(key).WithStatuses(activeNonPendingStatuses()...), model.StatusKilling, statemanager.ChangeStateOptions{
			Cause:              statemanager.CauseUserKill,
			SuppressReschedule: true,
		}); err != nil {
			return err
		}
		return c.insertInstances(ctx, cfg, 0, cfg.InstanceCount)
	}
}

// SetTaskStatus fans out an executor-status report to StateManager.
func (c *Core) SetTaskStatus(ctx context.Context, q query.Query, status model.ScheduleStatus, message string) (int, error) {
	return c.sm.ChangeState(ctx, q, status, statemanager.ChangeStateOptions{
		Message: message,
		Cause:   statemanager.CauseReport,
	})
}

// TasksDeleted reports lost slaves for the given taskIds: active tasks
// transition to LOST (rescheduled); terminal tasks are unconditionally
// deleted.
func (c *Core) TasksDeleted(ctx context.Context, taskIDs []string) error {
	tasks, err := c.sm.FetchTasks(ctx, query.ByTaskIDs(taskIDs...))
	if err != nil {
		return err
	}

	var activeIDs, terminalIDs []string
	for _, t := range tasks {
		if t.IsActive() {
			activeIDs = append(activeIDs, t.TaskID)
		} else {
			terminalIDs = append(terminalIDs, t.TaskID)
		}
	}

	if len(activeIDs) > 0 {
		if _, err := c.sm.ChangeState(ctx, query.ByTaskIDs(activeIDs...), model.StatusLost, statemanager.ChangeStateOptions{
			Cause: statemanager.CauseReport,
		}); err != nil {
			return err
		}
	}
	if len(terminalIDs) > 0 {
		if err := c.sm.DeleteTasks(ctx, terminalIDs); err != nil {
			return err
		}
	}
	return nil
}

// FetchTasks resolves q against the current store snapshot, for operator
// tooling and status reporting.
func (c *Core) FetchTasks(ctx context.Context, q query.Query) ([]model.ScheduledTask, error) {
	return c.sm.FetchTasks(ctx, q)
}
