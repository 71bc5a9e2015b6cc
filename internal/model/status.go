package model

// ScheduleStatus is the lifecycle state of a ScheduledTask.
type ScheduleStatus string

const (
	StatusPending    ScheduleStatus = "PENDING"
	StatusAssigned   ScheduleStatus = "ASSIGNED"
	StatusStarting   ScheduleStatus = "STARTING"
	StatusRunning    ScheduleStatus = "RUNNING"
	StatusUpdating   ScheduleStatus = "UPDATING"
	StatusRollback   ScheduleStatus = "ROLLBACK"
	StatusRestarting ScheduleStatus = "RESTARTING"
	StatusKilling    ScheduleStatus = "KILLING"
	StatusFinished   ScheduleStatus = "FINISHED"
	StatusFailed     ScheduleStatus = "FAILED"
	StatusKilled     ScheduleStatus = "KILLED"
	StatusLost       ScheduleStatus = "LOST"
)

// terminalStatuses is the absorbing set: once a task lands here no
// further transition is recorded.
var terminalStatuses = map[ScheduleStatus]bool{
	StatusFinished: true,
	StatusFailed:   true,
	StatusKilled:   true,
	StatusLost:     true,
}

// IsTerminal reports whether status is one of the terminal states.
func IsTerminal(status ScheduleStatus) bool {
	return terminalStatuses[status]
}

// activeStatuses is every status not in the terminal set.
var activeStatuses = []ScheduleStatus{
	StatusPending, StatusAssigned, StatusStarting, StatusRunning,
	StatusUpdating, StatusRollback, StatusRestarting, StatusKilling,
}

// ActiveStatuses returns the non-terminal status set, used by Query.Active().
func ActiveStatuses() []ScheduleStatus {
	out := make([]ScheduleStatus, len(activeStatuses))
	copy(out, activeStatuses)
	return out
}
