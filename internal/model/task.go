package model

import "time"

// TaskOwner identifies who a task belongs to.
type TaskOwner struct {
	Role string
	User string
}

// ConstraintKind enumerates the supported placement constraint shapes.
// Placement itself (where a task runs) is handled by an external engine;
// constraints are carried through here as opaque data for it to interpret.
type ConstraintKind string

const (
	ConstraintDedicated ConstraintKind = "dedicated"
	ConstraintHostLimit ConstraintKind = "hostLimit"
	ConstraintValue     ConstraintKind = "value"
)

// Constraint is a single placement constraint, opaque to this module beyond
// validation of dedicated-constraint values.
type Constraint struct {
	Kind  ConstraintKind
	Name  string
	Value string
	Limit int
}

// ExecutorConfig is the opaque (name, data) pair handed to the executor
// that runs a task; the scheduler never interprets Data itself.
type ExecutorConfig struct {
	Name string
	Data string
}

// TaskConfig is immutable once assigned to a ScheduledTask, except via the
// internal backfill/shard-id correction path.
type TaskConfig struct {
	Owner           TaskOwner
	JobKey          JobKey
	InstanceID      int
	CPU             float64
	RAMMb           int64
	DiskMb          int64
	RequestedPorts  map[string]struct{}
	Constraints     []Constraint
	ExecutorConfig  ExecutorConfig
	IsService       bool
	MaxTaskFailures int
	Production      bool
	ContactEmail    string
}

// Equal reports byte-equality after normalization, used to decide UNCHANGED
// vs RESTARTING when driving shards toward a new config. Map/slice fields
// are compared by contents, not identity.
func (t TaskConfig) Equal(other TaskConfig) bool {
	if t.Owner != other.Owner || !t.JobKey.Equal(other.JobKey) || t.InstanceID != other.InstanceID {
		return false
	}
	if t.CPU != other.CPU || t.RAMMb != other.RAMMb || t.DiskMb != other.DiskMb {
		return false
	}
	if t.IsService != other.IsService || t.MaxTaskFailures != other.MaxTaskFailures {
		return false
	}
	if t.Production != other.Production || t.ContactEmail != other.ContactEmail {
		return false
	}
	if t.ExecutorConfig != other.ExecutorConfig {
		return false
	}
	if len(t.RequestedPorts) != len(other.RequestedPorts) {
		return false
	}
	for name := range t.RequestedPorts {
		if _, ok := other.RequestedPorts[name]; !ok {
			return false
		}
	}
	if len(t.Constraints) != len(other.Constraints) {
		return false
	}
	for i, c := range t.Constraints {
		if other.Constraints[i] != c {
			return false
		}
	}
	return true
}

// AssignedTask is the placement-time view of a task: host, agent/slave id,
// and the concrete port assignment.
type AssignedTask struct {
	TaskID        string
	SlaveID       string
	SlaveHost     string
	AssignedPorts map[string]int
	Task          TaskConfig
}

// TaskEvent is one append-only entry in a ScheduledTask's history.
type TaskEvent struct {
	Timestamp     time.Time
	Status        ScheduleStatus
	Message       string
	SchedulerHost string
}

// ScheduledTask is the unit StateManager owns end to end.
type ScheduledTask struct {
	TaskID       string
	Status       ScheduleStatus
	FailureCount int
	AncestorID   string
	Assigned     AssignedTask
	TaskEvents   []TaskEvent

	// PendingReschedule, when set, is the TaskConfig the StateManager uses
	// for this task's successor once it reaches a terminal state. Set
	// while entering UPDATING (new config) or ROLLBACK (old config);
	// nil means "reschedule with the same config as this task".
	PendingReschedule *TaskConfig

	// SuppressReschedule is recorded when the task enters KILLING, so the
	// later KILLING→KILLED transition — usually driven by a separate
	// setTaskStatus call — still knows whether the kill that put it there
	// was a job-teardown kill that must not spawn a successor.
	SuppressReschedule bool
}

// JobKey is a convenience accessor onto the embedded TaskConfig.
func (t ScheduledTask) JobKey() JobKey {
	return t.Assigned.Task.JobKey
}

// InstanceID is a convenience accessor onto the embedded TaskConfig.
func (t ScheduledTask) InstanceID() int {
	return t.Assigned.Task.InstanceID
}

// IsActive reports whether the task's status is outside the terminal set.
func (t ScheduledTask) IsActive() bool {
	return !IsTerminal(t.Status)
}
