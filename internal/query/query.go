// Package query implements a composable task predicate: zero or more of
// role, jobKey, instanceIds, taskIds, statuses, slaveHost, matched against
// a ScheduledTask snapshot by every TaskStore backend identically.
package query

import "github.com/nextlevelbuilder/clusterd/internal/model"

// Query is a predicate over ScheduledTask. The zero value matches every
// task (no constraints set).
type Query struct {
	Role        string
	JobKey      *model.JobKey
	InstanceIDs map[int]struct{}
	TaskIDs     map[string]struct{}
	Statuses    map[model.ScheduleStatus]struct{}
	SlaveHost   string
}

// ByJobKey scopes the query to a single job.
func ByJobKey(key model.JobKey) Query {
	return Query{JobKey: &key}
}

// ByRole scopes the query to every job owned by role.
func ByRole(role string) Query {
	return Query{Role: role}
}

// ByTaskIDs scopes the query to an explicit set of taskIds.
func ByTaskIDs(ids ...string) Query {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return Query{TaskIDs: set}
}

// WithInstanceIDs narrows the query to a set of instanceIds.
func (q Query) WithInstanceIDs(ids ...int) Query {
	set := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	q.InstanceIDs = set
	return q
}

// WithStatuses narrows the query to a set of statuses.
func (q Query) WithStatuses(statuses ...model.ScheduleStatus) Query {
	set := make(map[model.ScheduleStatus]struct{}, len(statuses))
	for _, s := range statuses {
		set[s] = struct{}{}
	}
	q.Statuses = set
	return q
}

// WithSlaveHost narrows the query to tasks assigned to a specific host.
func (q Query) WithSlaveHost(host string) Query {
	q.SlaveHost = host
	return q
}

// Active restricts statuses to the non-terminal set.
func (q Query) Active() Query {
	return q.WithStatuses(model.ActiveStatuses()...)
}

// IsStrictlyJobScoped reports whether this query's only constraint is a
// JobKey: no task-id filter, no status filter, no instance filter. Such a
// query is what distinguishes "kill the whole job" from "kill these tasks
// inside the job" for cron-deregistration purposes.
func (q Query) IsStrictlyJobScoped() bool {
	return q.JobKey != nil &&
		q.Role == "" &&
		len(q.InstanceIDs) == 0 &&
		len(q.TaskIDs) == 0 &&
		len(q.Statuses) == 0 &&
		q.SlaveHost == ""
}

// Matches reports whether task satisfies every constraint set on q.
func (q Query) Matches(task model.ScheduledTask) bool {
	if q.Role != "" && task.Assigned.Task.Owner.Role != q.Role {
		return false
	}
	if q.JobKey != nil && !task.JobKey().Equal(*q.JobKey) {
		return false
	}
	if len(q.InstanceIDs) > 0 {
		if _, ok := q.InstanceIDs[task.InstanceID()]; !ok {
			return false
		}
	}
	if len(q.TaskIDs) > 0 {
		if _, ok := q.TaskIDs[task.TaskID]; !ok {
			return false
		}
	}
	if len(q.Statuses) > 0 {
		if _, ok := q.Statuses[task.Status]; !ok {
			return false
		}
	}
	if q.SlaveHost != "" && task.Assigned.SlaveHost != q.SlaveHost {
		return false
	}
	return true
}

// Filter returns the subset of tasks matching q, preserving order.
func Filter(tasks []model.ScheduledTask, q Query) []model.ScheduledTask {
	out := make([]model.ScheduledTask, 0, len(tasks))
	for _, t := range tasks {
		if q.Matches(t) {
			out = append(out, t)
		}
	}
	return out
}
