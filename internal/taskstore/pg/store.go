package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/nextlevelbuilder/clusterd/internal/model"
	"github.com/nextlevelbuilder/clusterd/internal/query"
	"github.com/nextlevelbuilder/clusterd/internal/taskstore"
)

// Store is the Postgres-backed taskstore.TaskStore: every column beyond
// the JSONB payload exists only to let an operator inspect state with
// plain SQL — StateManager only ever reads through FetchTasks/FetchJob(s).
type Store struct {
	db *sqlx.DB
}

// New wraps an already-migrated *sqlx.DB as a TaskStore.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

type taskRow struct {
	TaskID     string `db:"task_id"`
	JobRole    string `db:"job_role"`
	JobEnv     string `db:"job_env"`
	JobName    string `db:"job_name"`
	InstanceID int    `db:"instance_id"`
	Status     string `db:"status"`
	Data       []byte `db:"data"`
}

type jobRow struct {
	JobRole string `db:"job_role"`
	JobEnv  string `db:"job_env"`
	JobName string `db:"job_name"`
	Data    []byte `db:"data"`
}

// snapshot is an in-memory, point-in-time copy loaded from one query pair
// — the same copy-on-read shape as memstore.snapshot, so query.Filter
// behaves identically across every backend.
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

func loadSnapshot(ctx context.Context, tx *sqlx.Tx) (snapshot, error) {
	var taskRows []taskRow
	if err := tx.SelectContext(ctx, &taskRows, `SELECT task_id, job_role, job_env, job_name, instance_id, status, data FROM tasks`); err != nil {
		return snapshot{}, fmt.Errorf("taskstore/pg: select tasks: %w", err)
	}
	tasks := make(map[string]model.ScheduledTask, len(taskRows))
	for _, row := range taskRows {
		var t model.ScheduledTask
		if err := json.Unmarshal(row.Data, &t); err != nil {
			return snapshot{}, fmt.Errorf("taskstore/pg: decode task %s: %w", row.TaskID, err)
		}
		tasks[row.TaskID] = t
	}

	var jobRows []jobRow
	if err := tx.SelectContext(ctx, &jobRows, `SELECT job_role, job_env, job_name, data FROM jobs`); err != nil {
		return snapshot{}, fmt.Errorf("taskstore/pg: select jobs: %w", err)
	}
	jobs := make(map[model.JobKey]model.JobConfig, len(jobRows))
	for _, row := range jobRows {
		var cfg model.JobConfig
		if err := json.Unmarshal(row.Data, &cfg); err != nil {
			return snapshot{}, fmt.Errorf("taskstore/pg: decode job %s/%s/%s: %w", row.JobRole, row.JobEnv, row.JobName, err)
		}
		jobs[cfg.Key] = cfg
	}

	return snapshot{tasks: tasks, jobs: jobs}, nil
}

// Read takes a read-only serializable transaction snapshot.
func (s *Store) Read(ctx context.Context, fn func(taskstore.StoreSnapshot)) error {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable, ReadOnly: true})
	if err != nil {
		return fmt.Errorf("taskstore/pg: begin read: %w", err)
	}
	defer tx.Rollback()

	snap, err := loadSnapshot(ctx, tx)
	if err != nil {
		return err
	}
	fn(snap)
	return tx.Commit()
}

// mutableStore is the live write-transaction view: mutations apply to an
// in-memory copy of the snapshot; Write flushes the dirty set to Postgres
// just before commit.
type mutableStore struct {
	snapshot
	dirtyTasks   map[string]struct{}
	deletedTasks map[string]struct{}
	dirtyJobs    map[model.JobKey]struct{}
	deletedJobs  map[model.JobKey]struct{}
}

func (m *mutableStore) SaveTasks(tasks []model.ScheduledTask) {
	for _, t := range tasks {
		m.tasks[t.TaskID] = t
		m.dirtyTasks[t.TaskID] = struct{}{}
		delete(m.deletedTasks, t.TaskID)
	}
}

func (m *mutableStore) DeleteTasks(taskIDs []string) {
	for _, id := range taskIDs {
		delete(m.tasks, id)
		delete(m.dirtyTasks, id)
		m.deletedTasks[id] = struct{}{}
	}
}

func (m *mutableStore) Mutate(taskID string, fn func(model.ScheduledTask) (model.ScheduledTask, bool)) {
	current, ok := m.tasks[taskID]
	if !ok {
		return
	}
	updated, apply := fn(current)
	if !apply {
		return
	}
	m.tasks[taskID] = updated
	m.dirtyTasks[taskID] = struct{}{}
}

func (m *mutableStore) SaveJob(job model.JobConfig) {
	m.jobs[job.Key] = job
	m.dirtyJobs[job.Key] = struct{}{}
	delete(m.deletedJobs, job.Key)
}

func (m *mutableStore) RemoveJob(key model.JobKey) {
	delete(m.jobs, key)
	delete(m.dirtyJobs, key)
	m.deletedJobs[key] = struct{}{}
}

// Write runs fn inside one serializable Postgres transaction: on error it
// rolls back with no partial commit; on success the dirty/deleted sets
// collected during fn are flushed, then committed.
func (s *Store) Write(ctx context.Context, fn func(taskstore.MutableStore) error) error {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("taskstore/pg: begin write: %w", err)
	}
	defer tx.Rollback()

	snap, err := loadSnapshot(ctx, tx)
	if err != nil {
		return err
	}

	mutable := &mutableStore{
		snapshot:     snap,
		dirtyTasks:   make(map[string]struct{}),
		deletedTasks: make(map[string]struct{}),
		dirtyJobs:    make(map[model.JobKey]struct{}),
		deletedJobs:  make(map[model.JobKey]struct{}),
	}

	if err := fn(mutable); err != nil {
		return err
	}

	if err := flush(ctx, tx, mutable); err != nil {
		return err
	}
	return tx.Commit()
}

func flush(ctx context.Context, tx *sqlx.Tx, m *mutableStore) error {
	for taskID := range m.dirtyTasks {
		t := m.tasks[taskID]
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("taskstore/pg: encode task %s: %w", taskID, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO tasks (task_id, job_role, job_env, job_name, instance_id, status, data, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, now())
			ON CONFLICT (task_id) DO UPDATE SET
				job_role = EXCLUDED.job_role, job_env = EXCLUDED.job_env, job_name = EXCLUDED.job_name,
				instance_id = EXCLUDED.instance_id, status = EXCLUDED.status, data = EXCLUDED.data,
				updated_at = now()`,
			t.TaskID, t.JobKey().Role, t.JobKey().Environment, t.JobKey().Name, t.InstanceID(), string(t.Status), data)
		if err != nil {
			return fmt.Errorf("taskstore/pg: upsert task %s: %w", taskID, err)
		}
	}

	if len(m.deletedTasks) > 0 {
		ids := make([]string, 0, len(m.deletedTasks))
		for id := range m.deletedTasks {
			ids = append(ids, id)
		}
		delQuery, args, err := sqlx.In(`DELETE FROM tasks WHERE task_id IN (?)`, ids)
		if err != nil {
			return fmt.Errorf("taskstore/pg: build task delete: %w", err)
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(delQuery), args...); err != nil {
			return fmt.Errorf("taskstore/pg: delete tasks: %w", err)
		}
	}

	for key := range m.dirtyJobs {
		cfg := m.jobs[key]
		data, err := json.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("taskstore/pg: encode job %s: %w", key.String(), err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO jobs (job_role, job_env, job_name, data, updated_at)
			VALUES ($1, $2, $3, $4, now())
			ON CONFLICT (job_role, job_env, job_name) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
			key.Role, key.Environment, key.Name, data)
		if err != nil {
			return fmt.Errorf("taskstore/pg: upsert job %s: %w", key.String(), err)
		}
	}

	for key := range m.deletedJobs {
		if _, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE job_role = $1 AND job_env = $2 AND job_name = $3`,
			key.Role, key.Environment, key.Name); err != nil {
			return fmt.Errorf("taskstore/pg: delete job %s: %w", key.String(), err)
		}
	}

	return nil
}
