package statemanager

import (
	"github.com/nextlevelbuilder/clusterd/internal/eventsink"
	"github.com/nextlevelbuilder/clusterd/internal/model"
	"github.com/nextlevelbuilder/clusterd/internal/taskstore"
)

type effectKind int

const (
	effectKill effectKind = iota
	effectCreateTask
	effectPublish
)

// postCommitEffect is one buffered side effect, flushed after the owning
// transaction commits. KILL is best-effort; Driver is expected to be
// idempotent with respect to repeated taskIds.
type postCommitEffect struct {
	kind   effectKind
	taskID string
	change eventsink.TaskStateChange
}

// applyTransition applies one accepted transition within the transaction in
// a fixed order: INCREMENT_FAILURES, UPDATE_STATE, RESCHEDULE. KILL is
// buffered for post-commit dispatch. It returns the post-commit effects
// this transition produced.
func (sm *StateManager) applyTransition(mutable taskstore.MutableStore, task model.ScheduledTask, result transitionResult, opts ChangeStateOptions) []postCommitEffect {
	now := sm.clock.Now()
	oldStatus := task.Status

	mutable.Mutate(task.TaskID, func(current model.ScheduledTask) (model.ScheduledTask, bool) {
		// 1. INCREMENT_FAILURES
		if result.incrementFailures {
			current.FailureCount++
		}

		// 2. UPDATE_STATE
		current.Status = result.newStatus
		current.TaskEvents = append(current.TaskEvents, model.TaskEvent{
			Timestamp:     now,
			Status:        result.newStatus,
			Message:       opts.Message,
			SchedulerHost: sm.host,
		})
		if result.setPendingConfig != nil {
			cfg := *result.setPendingConfig
			current.PendingReschedule = &cfg
		}
		if result.setSuppressReschedule != nil {
			current.SuppressReschedule = *result.setSuppressReschedule
		}
		return current, true
	})

	var effects []postCommitEffect
	effects = append(effects, postCommitEffect{kind: effectPublish, change: eventsink.TaskStateChange{
		TaskID:    task.TaskID,
		OldStatus: oldStatus,
		NewStatus: result.newStatus,
		Message:   opts.Message,
	}})

	// 3. RESCHEDULE
	if result.reschedule && !opts.SuppressReschedule {
		// task is the pre-mutation copy; the successor carries the count as
		// incremented by step 1.
		outgoing := task
		if result.incrementFailures {
			outgoing.FailureCount++
		}
		successor := sm.buildSuccessor(outgoing)
		mutable.SaveTasks([]model.ScheduledTask{successor})
		effects = append(effects, postCommitEffect{kind: effectCreateTask, taskID: successor.TaskID})
	}

	// 4. (DELETE is never emitted from ChangeState — terminal tasks are
	// retained as history; explicit deletion is StateManager.DeleteTasks.)

	// 5. KILL, buffered for post-commit.
	if result.kill {
		effects = append(effects, postCommitEffect{kind: effectKill, taskID: task.TaskID})
	}

	return effects
}

// buildSuccessor inserts a successor with PENDING, ancestorId = outgoing
// taskId, instanceId preserved, and failureCount copied forward.
func (sm *StateManager) buildSuccessor(outgoing model.ScheduledTask) model.ScheduledTask {
	cfg := outgoing.Assigned.Task
	if outgoing.PendingReschedule != nil {
		cfg = *outgoing.PendingReschedule
	}
	id := sm.genTaskID(cfg)
	return model.ScheduledTask{
		TaskID:       id,
		Status:       model.StatusPending,
		FailureCount: outgoing.FailureCount,
		AncestorID:   outgoing.TaskID,
		Assigned: model.AssignedTask{
			TaskID: id,
			Task:   cfg,
		},
		TaskEvents: []model.TaskEvent{{
			Timestamp:     sm.clock.Now(),
			Status:        model.StatusPending,
			SchedulerHost: sm.host,
		}},
	}
}

// dispatchPostCommit flushes buffered KILL/CREATE_TASK/publish effects.
// This happens with no further transactional guarantee: failures here are
// logged, never propagated, and never undo committed state.
func (sm *StateManager) dispatchPostCommit(effects []postCommitEffect) {
	for _, e := range effects {
		switch e.kind {
		case effectKill:
			sm.driver.KillTask(e.taskID)
		case effectCreateTask:
			sm.logger.Debug("statemanager: task created", "task_id", e.taskID)
		case effectPublish:
			sm.eventSink.Publish(e.change)
		}
	}
}
