package statemanager

import "github.com/nextlevelbuilder/clusterd/internal/model"

// TransitionCause records why a ChangeState call is happening, since the
// same (from, to) status pair can carry different side effects depending
// on whether the change originates from an executor status report or an
// explicit operator action.
type TransitionCause string

const (
	// CauseReport is an executor-driven status report (setTaskStatus,
	// tasksDeleted) — the default, ordinary path through the FSM.
	CauseReport TransitionCause = "report"
	// CauseUserKill is killTasks-initiated: an operator asked for this
	// task to die. Suppresses reschedule on a non-service task reaching a
	// terminal state via the kill path.
	CauseUserKill TransitionCause = "user_kill"
	// CauseUpdate is initiateJobUpdate/updateShards-initiated.
	CauseUpdate TransitionCause = "update"
	// CauseRollback is rollbackShards-initiated.
	CauseRollback TransitionCause = "rollback"
	// CauseRestart is restartShards-initiated.
	CauseRestart TransitionCause = "restart"
)

// transitionResult is what computeTransition decides for one matching task.
type transitionResult struct {
	newStatus             model.ScheduleStatus
	incrementFailures     bool
	reschedule            bool
	kill                  bool
	setPendingConfig      *model.TaskConfig // non-nil only when entering UPDATING/ROLLBACK
	setSuppressReschedule *bool             // non-nil only when entering KILLING; persisted so the later KILLING→KILLED step can still see it
}

var activeNonPending = map[model.ScheduleStatus]bool{
	model.StatusAssigned:   true,
	model.StatusStarting:   true,
	model.StatusRunning:    true,
	model.StatusUpdating:   true,
	model.StatusRollback:   true,
	model.StatusRestarting: true,
	model.StatusKilling:    true,
}

// computeTransition implements the task's state transition table. It
// returns ok=false for every non-matching transition: terminal-state
// tasks never transition again, redundant same-status transitions are
// dropped, and any (from, to) pair not named in the table is dropped
// silently.
func computeTransition(task model.ScheduledTask, newStatus model.ScheduleStatus, opts ChangeStateOptions) (transitionResult, bool) {
	from := task.Status

	if model.IsTerminal(from) {
		return transitionResult{}, false
	}
	if from == newStatus {
		return transitionResult{}, false
	}

	isService := task.Assigned.Task.IsService
	failedThreshold := task.FailureCount+1 < maxFailures(task)

	switch {
	case from == model.StatusPending && newStatus == model.StatusLost:
		return transitionResult{newStatus: newStatus, reschedule: true}, true

	case from == model.StatusAssigned && newStatus == model.StatusStarting:
		return transitionResult{newStatus: newStatus}, true

	case from == model.StatusAssigned && (newStatus == model.StatusLost || newStatus == model.StatusKilled):
		return transitionResult{
			newStatus:  newStatus,
			reschedule: opts.Cause != CauseUserKill,
		}, true

	case from == model.StatusStarting && newStatus == model.StatusRunning:
		return transitionResult{newStatus: newStatus}, true

	case from == model.StatusStarting && newStatus == model.StatusLost:
		return transitionResult{newStatus: newStatus, reschedule: true}, true

	case from == model.StatusRunning && newStatus == model.StatusFinished:
		return transitionResult{newStatus: newStatus, reschedule: isService}, true

	case from == model.StatusRunning && newStatus == model.StatusFailed:
		return transitionResult{
			newStatus:         newStatus,
			incrementFailures: true,
			reschedule:        isService || failedThreshold,
		}, true

	case from == model.StatusRunning && newStatus == model.StatusLost:
		return transitionResult{newStatus: newStatus, reschedule: true}, true

	case from == model.StatusRunning && newStatus == model.StatusKilled:
		return transitionResult{
			newStatus:  newStatus,
			reschedule: isService || opts.Cause != CauseUserKill,
		}, true

	case activeNonPending[from] && newStatus == model.StatusKilling:
		// KILLING is not terminal — the outgoing task is still active here,
		// so rescheduling now would leave two active tasks for one instance
		// until the KILLING→KILLED transition lands. Persist the caller's
		// suppress-reschedule intent on the task itself, since that later
		// transition is typically driven by a separate setTaskStatus call
		// with its own, unrelated ChangeStateOptions.
		suppress := opts.SuppressReschedule
		return transitionResult{newStatus: newStatus, kill: true, setSuppressReschedule: &suppress}, true

	case from == model.StatusKilling && newStatus == model.StatusKilled:
		return transitionResult{
			newStatus:  newStatus,
			reschedule: isService && !task.SuppressReschedule,
		}, true

	case (from == model.StatusAssigned || from == model.StatusStarting || from == model.StatusRunning) && newStatus == model.StatusUpdating:
		return transitionResult{newStatus: newStatus, kill: true, setPendingConfig: opts.RescheduleConfig}, true

	case from == model.StatusUpdating && (newStatus == model.StatusKilled || newStatus == model.StatusFinished):
		return transitionResult{newStatus: newStatus, reschedule: true}, true

	case (from == model.StatusAssigned || from == model.StatusStarting || from == model.StatusRunning) && newStatus == model.StatusRollback:
		return transitionResult{newStatus: newStatus, kill: true, setPendingConfig: opts.RescheduleConfig}, true

	case from == model.StatusRollback && (newStatus == model.StatusKilled || newStatus == model.StatusFinished):
		return transitionResult{newStatus: newStatus, reschedule: true}, true

	case (from == model.StatusAssigned || from == model.StatusStarting || from == model.StatusRunning) && newStatus == model.StatusRestarting:
		return transitionResult{newStatus: newStatus, kill: true}, true

	case from == model.StatusRestarting && (newStatus == model.StatusFinished || newStatus == model.StatusKilled):
		return transitionResult{newStatus: newStatus, reschedule: true}, true

	default:
		return transitionResult{}, false
	}
}

func maxFailures(task model.ScheduledTask) int {
	m := task.Assigned.Task.MaxTaskFailures
	if m <= 0 {
		return 1
	}
	return m
}
