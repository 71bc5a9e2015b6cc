// Package memstore is an in-memory TaskStore, used as the fast
// conformance-test backend. It serializes every write transaction behind
// a single mutex rather than supporting concurrent writers.
package memstore

import (
	"context"
	"sync"

	"github.com/nextlevelbuilder/clusterd/internal/model"
	"github.com/nextlevelbuilder/clusterd/internal/query"
	"github.com/nextlevelbuilder/clusterd/internal/taskstore"
)

// Store is an in-memory TaskStore implementation.
type Store struct {
	mu    sync.Mutex
	tasks map[string]model.ScheduledTask
	jobs  map[model.JobKey]model.JobConfig
}

// New creates an empty in-memory TaskStore.
func New() *Store {
	return &Store{
		tasks: make(map[string]model.ScheduledTask),
		jobs:  make(map[model.JobKey]model.JobConfig),
	}
}

// snapshot is a point-in-time, read-only copy of the store's task/job maps.
type snapshot struct {
	tasks map[string]model.ScheduledTask
	jobs  map[model.JobKey]model.JobConfig
}

func (s snapshot) FetchTasks(q query.Query) []model.ScheduledTask {
	out := make([]model.ScheduledTask, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t)
	}
	return query.Filter(out, q)
}

func (s snapshot) FetchJobs() []model.JobConfig {
	out := make([]model.JobConfig, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
	}
	return out
}

func (s snapshot) FetchJob(key model.JobKey) (model.JobConfig, bool) {
	j, ok := s.jobs[key]
	return j, ok
}

// Read takes a consistent, point-in-time snapshot of the store.
func (s *Store) Read(_ context.Context, fn func(taskstore.StoreSnapshot)) error {
	s.mu.Lock()
	snap := s.copySnapshot()
	s.mu.Unlock()
	fn(snap)
	return nil
}

func (s *Store) copySnapshot() snapshot {
	tasks := make(map[string]model.ScheduledTask, len(s.tasks))
	for k, v := range s.tasks {
		tasks[k] = v
	}
	jobs := make(map[model.JobKey]model.JobConfig, len(s.jobs))
	for k, v := range s.jobs {
		jobs[k] = v
	}
	return snapshot{tasks: tasks, jobs: jobs}
}

// mutableStore is the live, write-transaction view: mutations apply
// directly to the underlying maps, which Write rolls back on error by
// restoring a pre-transaction copy.
type mutableStore struct {
	store *Store
}

func (m mutableStore) FetchTasks(q query.Query) []model.ScheduledTask {
	return m.store.copySnapshot().FetchTasks(q)
}

func (m mutableStore) FetchJobs() []model.JobConfig {
	return m.store.copySnapshot().FetchJobs()
}

func (m mutableStore) FetchJob(key model.JobKey) (model.JobConfig, bool) {
	return m.store.copySnapshot().FetchJob(key)
}

func (m mutableStore) SaveTasks(tasks []model.ScheduledTask) {
	for _, t := range tasks {
		m.store.tasks[t.TaskID] = t
	}
}

func (m mutableStore) DeleteTasks(taskIDs []string) {
	for _, id := range taskIDs {
		delete(m.store.tasks, id)
	}
}

func (m mutableStore) Mutate(taskID string, fn func(model.ScheduledTask) (model.ScheduledTask, bool)) {
	current, ok := m.store.tasks[taskID]
	if !ok {
		return
	}
	updated, apply := fn(current)
	if !apply {
		return
	}
	m.store.tasks[taskID] = updated
}

func (m mutableStore) SaveJob(job model.JobConfig) {
	m.store.jobs[job.Key] = job
}

func (m mutableStore) RemoveJob(key model.JobKey) {
	delete(m.store.jobs, key)
}

// Write runs fn inside one serializable transaction, guarded by the
// store's single mutex so no two write transactions ever overlap. On
// error or panic, the pre-transaction state is restored so there is no
// partial commit.
func (s *Store) Write(_ context.Context, fn func(taskstore.MutableStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	savedTasks := s.tasks
	savedJobs := s.jobs
	s.tasks = copyTasks(s.tasks)
	s.jobs = copyJobs(s.jobs)

	committed := false
	defer func() {
		if !committed {
			s.tasks = savedTasks
			s.jobs = savedJobs
		}
	}()

	if err := fn(mutableStore{store: s}); err != nil {
		return err
	}
	committed = true
	return nil
}

func copyTasks(in map[string]model.ScheduledTask) map[string]model.ScheduledTask {
	out := make(map[string]model.ScheduledTask, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyJobs(in map[model.JobKey]model.JobConfig) map[model.JobKey]model.JobConfig {
	out := make(map[model.JobKey]model.JobConfig, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
