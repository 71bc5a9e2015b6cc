// Package cache decorates a taskstore.TaskStore with a bounded read-side
// cache for the single hottest access pattern — "give me every task for
// this JobKey" — using hashicorp/golang-lru/v2, a dependency the teacher
// carries but never exercises.
package cache

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/nextlevelbuilder/clusterd/internal/model"
	"github.com/nextlevelbuilder/clusterd/internal/query"
	"github.com/nextlevelbuilder/clusterd/internal/taskstore"
)

// Store wraps a taskstore.TaskStore, caching FetchTasks(ByJobKey(key))
// results. Any committed write purges the whole cache — correctness over
// precision, since a write's blast radius (which JobKeys it touched) isn't
// known at this layer.
type Store struct {
	inner taskstore.TaskStore
	cache *lru.Cache[model.JobKey, []model.ScheduledTask]
}

// New wraps inner with an LRU cache holding up to size distinct JobKeys'
// task sets.
func New(inner taskstore.TaskStore, size int) (*Store, error) {
	c, err := lru.New[model.JobKey, []model.ScheduledTask](size)
	if err != nil {
		return nil, err
	}
	return &Store{inner: inner, cache: c}, nil
}

// cachingSnapshot intercepts FetchTasks for a strictly-job-scoped query and
// serves/populates the cache; every other query passes straight through.
type cachingSnapshot struct {
	inner taskstore.StoreSnapshot
	store *Store
}

func (s cachingSnapshot) FetchTasks(q query.Query) []model.ScheduledTask {
	if q.IsStrictlyJobScoped() {
		if tasks, ok := s.store.cache.Get(*q.JobKey); ok {
			return tasks
		}
	}

	tasks := s.inner.FetchTasks(q)

	if q.IsStrictlyJobScoped() {
		s.store.cache.Add(*q.JobKey, tasks)
	}
	return tasks
}

func (s cachingSnapshot) FetchJobs() []model.JobConfig { return s.inner.FetchJobs() }

func (s cachingSnapshot) FetchJob(key model.JobKey) (model.JobConfig, bool) {
	return s.inner.FetchJob(key)
}

// Read serves a cached job's task set when possible, falling through to
// inner.Read otherwise.
func (s *Store) Read(ctx context.Context, fn func(taskstore.StoreSnapshot)) error {
	return s.inner.Read(ctx, func(snap taskstore.StoreSnapshot) {
		fn(cachingSnapshot{inner: snap, store: s})
	})
}

// Write delegates to inner and purges the cache on success — a committed
// write may have changed any job's task set.
func (s *Store) Write(ctx context.Context, fn func(taskstore.MutableStore) error) error {
	err := s.inner.Write(ctx, fn)
	if err == nil {
		s.cache.Purge()
	}
	return err
}
