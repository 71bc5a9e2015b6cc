// Package statemanager owns the per-task finite state machine: every
// mutation funnels through one store transaction, and every accepted
// transition emits an ordered sequence of side-effect work items
// dispatched after commit.
package statemanager

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/nextlevelbuilder/clusterd/internal/driver"
	"github.com/nextlevelbuilder/clusterd/internal/eventsink"
	"github.com/nextlevelbuilder/clusterd/internal/model"
	"github.com/nextlevelbuilder/clusterd/internal/query"
	"github.com/nextlevelbuilder/clusterd/internal/taskid"
	"github.com/nextlevelbuilder/clusterd/internal/taskstore"
)

// StateManager is the transactional glue between the task FSM and the
// TaskStore.
type StateManager struct {
	store     taskstore.TaskStore
	clock     model.Clock
	driver    driver.Driver
	eventSink eventsink.EventSink
	genTaskID taskid.Generator
	host      string
	logger    *slog.Logger
}

// Option configures a StateManager at construction.
type Option func(*StateManager)

// WithTaskIDGenerator overrides the default taskId generator, so a test
// scenario can inject a deterministic one.
func WithTaskIDGenerator(gen taskid.Generator) Option {
	return func(sm *StateManager) { sm.genTaskID = gen }
}

// WithClock overrides the default system clock.
func WithClock(clock model.Clock) Option {
	return func(sm *StateManager) { sm.clock = clock }
}

// WithLogger overrides the default slog logger.
func WithLogger(logger *slog.Logger) Option {
	return func(sm *StateManager) { sm.logger = logger }
}

// WithHostname overrides the scheduler host recorded on taskEvents.
func WithHostname(host string) Option {
	return func(sm *StateManager) { sm.host = host }
}

// New constructs a StateManager. store, drv, and sink are its required
// external collaborators.
func New(store taskstore.TaskStore, drv driver.Driver, sink eventsink.EventSink, opts ...Option) *StateManager {
	sm := &StateManager{
		store:     store,
		clock:     model.SystemClock{},
		driver:    drv,
		eventSink: sink,
		genTaskID: taskid.Default(),
		logger:    slog.Default(),
	}
	if sm.host == "" {
		if h, err := os.Hostname(); err == nil {
			sm.host = h
		} else {
			sm.host = "unknown"
		}
	}
	for _, opt := range opts {
		opt(sm)
	}
	return sm
}

// InsertTasks generates a taskId for each config, validates its length,
// and persists a new ScheduledTask in PENDING with a single taskEvent.
func (sm *StateManager) InsertTasks(ctx context.Context, configs []model.TaskConfig) error {
	var effects []postCommitEffect
	err := sm.store.Write(ctx, func(mutable taskstore.MutableStore) error {
		tasks, built, err := sm.buildInserts(configs)
		if err != nil {
			return err
		}
		mutable.SaveTasks(tasks)
		effects = built
		return nil
	})
	if err != nil {
		return err
	}
	sm.dispatchPostCommit(effects)
	return nil
}

func (sm *StateManager) buildInserts(configs []model.TaskConfig) ([]model.ScheduledTask, []postCommitEffect, error) {
	now := sm.clock.Now()
	tasks := make([]model.ScheduledTask, 0, len(configs))
	var effects []postCommitEffect
	for _, cfg := range configs {
		id := sm.genTaskID(cfg)
		if err := taskid.Validate(id); err != nil {
			return nil, nil, err
		}
		tasks = append(tasks, model.ScheduledTask{
			TaskID: id,
			Status: model.StatusPending,
			Assigned: model.AssignedTask{
				TaskID: id,
				Task:   cfg,
			},
			TaskEvents: []model.TaskEvent{{
				Timestamp:     now,
				Status:        model.StatusPending,
				SchedulerHost: sm.host,
			}},
		})
		effects = append(effects, postCommitEffect{kind: effectCreateTask, taskID: id})
	}
	return tasks, effects, nil
}

// AssignTask transitions PENDING→ASSIGNED, populating slaveHost, slaveId,
// and an assignedPorts mapping that arbitrarily pairs each name in
// requestedPorts with a distinct integer from ports. Fails with
// InvalidArgument-shaped ErrInvalidConfiguration if |ports| < |requestedPorts|.
func (sm *StateManager) AssignTask(ctx context.Context, taskID, slaveHost, slaveID string, ports []int) (model.AssignedTask, error) {
	var result model.AssignedTask
	var effects []postCommitEffect
	err := sm.store.Write(ctx, func(mutable taskstore.MutableStore) error {
		current, found := findTask(mutable, taskID)
		if !found {
			return fmt.Errorf("%w: task %q not found", model.ErrSchedule, taskID)
		}
		if current.Status != model.StatusPending {
			// Non-matching transition; dropped silently.
			result = current.Assigned
			return nil
		}
		if len(ports) < len(current.Assigned.Task.RequestedPorts) {
			return fmt.Errorf("%w: only %d ports offered for %d requested ports", model.ErrInvalidConfiguration, len(ports), len(current.Assigned.Task.RequestedPorts))
		}

		assignedPorts := make(map[string]int, len(current.Assigned.Task.RequestedPorts))
		i := 0
		for name := range current.Assigned.Task.RequestedPorts {
			assignedPorts[name] = ports[i]
			i++
		}

		updated := current
		updated.Status = model.StatusAssigned
		updated.Assigned.SlaveHost = slaveHost
		updated.Assigned.SlaveID = slaveID
		updated.Assigned.AssignedPorts = assignedPorts
		updated.TaskEvents = append(updated.TaskEvents, model.TaskEvent{
			Timestamp:     sm.clock.Now(),
			Status:        model.StatusAssigned,
			SchedulerHost: sm.host,
		})

		mutable.Mutate(taskID, func(model.ScheduledTask) (model.ScheduledTask, bool) {
			return updated, true
		})
		result = updated.Assigned

		effects = []postCommitEffect{{kind: effectPublish, change: eventsink.TaskStateChange{
			TaskID:    taskID,
			OldStatus: current.Status,
			NewStatus: updated.Status,
		}}}
		return nil
	})
	if err != nil {
		return result, err
	}
	sm.dispatchPostCommit(effects)
	return result, nil
}

// ChangeStateOptions customizes a ChangeState call beyond (query, newStatus).
type ChangeStateOptions struct {
	Message string

	// Cause records why this transition is being requested, since the same
	// (from, to) status pair can carry different side effects depending on
	// whether it originates from an executor status report or an explicit
	// operator action.
	Cause TransitionCause

	// SuppressReschedule, on a call that transitions a task into KILLING,
	// forces RESCHEDULE off once that task later reaches KILLED, even
	// though a service task would otherwise be respawned. The intent is
	// persisted on the task itself (ScheduledTask.SuppressReschedule),
	// since the KILLING->KILLED transition is normally driven by a later,
	// separate call. Job-teardown paths (KillTasks on a strictly
	// job-scoped query, cron KILL_EXISTING, a shrinking finishUpdate's
	// orphan kill) set this so the job's last instances don't spawn a
	// fresh PENDING successor only to have the job's config removed out
	// from under it.
	SuppressReschedule bool

	// RescheduleConfig, when set, is persisted on the task and used as the
	// successor's TaskConfig once this task reaches a terminal state
	// (update → NEW config, rollback → OLD config). When nil, reschedule
	// reuses the outgoing task's own config.
	RescheduleConfig *model.TaskConfig
}

// ChangeState applies the FSM transition to every task matching q, honoring
// terminal-state absorption and the state transition table. It returns the
// count of tasks actually transitioned.
func (sm *StateManager) ChangeState(ctx context.Context, q query.Query, newStatus model.ScheduleStatus, opts ChangeStateOptions) (int, error) {
	count := 0
	var effects []postCommitEffect
	err := sm.store.Write(ctx, func(mutable taskstore.MutableStore) error {
		matches := mutable.FetchTasks(q)
		for _, task := range matches {
			result, ok := computeTransition(task, newStatus, opts)
			if !ok {
				continue
			}
			count++
			taskEffects := sm.applyTransition(mutable, task, result, opts)
			effects = append(effects, taskEffects...)
		}
		return nil
	})
	if err != nil {
		return count, err
	}
	sm.dispatchPostCommit(effects)
	return count, nil
}

// SaveJob persists cfg as the JobConfig of record for its JobKey — used by
// SchedulerCore.CreateJob so initiateJobUpdate always has an authoritative
// oldConfig to diff against, independent of any individual task's config.
func (sm *StateManager) SaveJob(ctx context.Context, cfg model.JobConfig) error {
	return sm.store.Write(ctx, func(mutable taskstore.MutableStore) error {
		mutable.SaveJob(cfg)
		return nil
	})
}

// FetchJob returns the JobConfig of record for key, if any.
func (sm *StateManager) FetchJob(ctx context.Context, key model.JobKey) (model.JobConfig, bool, error) {
	var (
		cfg   model.JobConfig
		found bool
	)
	err := sm.store.Read(ctx, func(snap taskstore.StoreSnapshot) {
		cfg, found = snap.FetchJob(key)
	})
	return cfg, found, err
}

// RemoveJob deletes the JobConfig of record for key.
func (sm *StateManager) RemoveJob(ctx context.Context, key model.JobKey) error {
	return sm.store.Write(ctx, func(mutable taskstore.MutableStore) error {
		mutable.RemoveJob(key)
		return nil
	})
}

// RewriteTaskConfig overwrites a PENDING task's TaskConfig in place without
// any FSM transition — the updateShards/rollbackShards case where a task
// that hasn't started yet is re-written to the new config and stays
// PENDING. No-op if taskID is not currently PENDING.
func (sm *StateManager) RewriteTaskConfig(ctx context.Context, taskID string, cfg model.TaskConfig) error {
	return sm.store.Write(ctx, func(mutable taskstore.MutableStore) error {
		mutable.Mutate(taskID, func(current model.ScheduledTask) (model.ScheduledTask, bool) {
			if current.Status != model.StatusPending {
				return current, false
			}
			current.Assigned.Task = cfg
			return current, true
		})
		return nil
	})
}

// DeleteTasks unconditionally removes the given tasks.
func (sm *StateManager) DeleteTasks(ctx context.Context, taskIDs []string) error {
	return sm.store.Write(ctx, func(mutable taskstore.MutableStore) error {
		mutable.DeleteTasks(taskIDs)
		return nil
	})
}

// FetchTasks is a snapshot read.
func (sm *StateManager) FetchTasks(ctx context.Context, q query.Query) ([]model.ScheduledTask, error) {
	var out []model.ScheduledTask
	err := sm.store.Read(ctx, func(snap taskstore.StoreSnapshot) {
		out = snap.FetchTasks(q)
	})
	return out, err
}

func findTask(snap taskstore.StoreSnapshot, taskID string) (model.ScheduledTask, bool) {
	matches := snap.FetchTasks(query.ByTaskIDs(taskID))
	if len(matches) == 0 {
		return model.ScheduledTask{}, false
	}
	return matches[0], true
}
