// Package taskstore defines the transactional storage interface: snapshot
// reads, and a mutation scope with read-modify-write against the current
// snapshot. Concrete backends live in the memstore, pg, and sqlite
// subpackages; internal/statemanager only ever talks to this interface.
package taskstore

import (
	"context"

	"github.com/nextlevelbuilder/clusterd/internal/model"
	"github.com/nextlevelbuilder/clusterd/internal/query"
)

// StoreSnapshot is the read-only view passed to TaskStore.Read.
type StoreSnapshot interface {
	FetchTasks(q query.Query) []model.ScheduledTask
	FetchJobs() []model.JobConfig
	FetchJob(key model.JobKey) (model.JobConfig, bool)
}

// MutableStore is the read-modify-write surface available inside Write.
// The only blocking operations inside a transaction are TaskStore
// reads/writes — external side effects happen strictly after commit,
// never here.
type MutableStore interface {
	StoreSnapshot

	SaveTasks(tasks []model.ScheduledTask)
	DeleteTasks(taskIDs []string)
	// Mutate loads taskID, applies fn, and persists the result. fn
	// receives the current ScheduledTask and returns the updated value.
	// If fn returns ok=false the mutation is skipped (the task no longer
	// exists, or the caller decided not to apply it).
	Mutate(taskID string, fn func(model.ScheduledTask) (model.ScheduledTask, bool))

	SaveJob(job model.JobConfig)
	RemoveJob(key model.JobKey)
}

// TaskStore is the transactional storage backend StateManager is built on.
type TaskStore interface {
	// Read takes a snapshot read, seeing a consistent view.
	Read(ctx context.Context, fn func(StoreSnapshot)) error

	// Write runs fn inside one serializable transaction. The transaction
	// commits atomically when fn returns nil, and rolls back (with no
	// partial commit) when fn returns an error or panics.
	Write(ctx context.Context, fn func(MutableStore) error) error
}
