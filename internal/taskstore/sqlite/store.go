// Package sqlite is the embedded, single-process taskstore.TaskStore
// backend for standalone deployments. It mirrors internal/taskstore/pg's
// shape but is backed by modernc.org/sqlite's pure-Go driver instead of a
// Postgres connection.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/nextlevelbuilder/clusterd/internal/model"
	"github.com/nextlevelbuilder/clusterd/internal/query"
	"github.com/nextlevelbuilder/clusterd/internal/taskstore"
)

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	task_id     TEXT PRIMARY KEY,
	job_role    TEXT NOT NULL,
	job_env     TEXT NOT NULL,
	job_name    TEXT NOT NULL,
	instance_id INTEGER NOT NULL,
	status      TEXT NOT NULL,
	data        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS tasks_job_idx ON tasks (job_role, job_env, job_name);
CREATE INDEX IF NOT EXISTS tasks_status_idx ON tasks (status);

CREATE TABLE IF NOT EXISTS jobs (
	job_role TEXT NOT NULL,
	job_env  TEXT NOT NULL,
	job_name TEXT NOT NULL,
	data     TEXT NOT NULL,
	PRIMARY KEY (job_role, job_env, job_name)
);
`

// Store is a file-backed TaskStore. SQLite permits only one writer at a
// time; Write additionally serializes behind mu so a transaction's
// load-mutate-flush span never interleaves with another writer.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open creates/opens a SQLite database file at path and ensures its schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("taskstore/sqlite: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("taskstore/sqlite: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

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

func loadSnapshot(ctx context.Context, tx *sql.Tx) (snapshot, error) {
	tasks := make(map[string]model.ScheduledTask)
	rows, err := tx.QueryContext(ctx, `SELECT task_id, data FROM tasks`)
	if err != nil {
		return snapshot{}, fmt.Errorf("taskstore/sqlite: select tasks: %w", err)
	}
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			rows.Close()
			return snapshot{}, fmt.Errorf("taskstore/sqlite: scan task: %w", err)
		}
		var t model.ScheduledTask
		if err := json.Unmarshal([]byte(data), &t); err != nil {
			rows.Close()
			return snapshot{}, fmt.Errorf("taskstore/sqlite: decode task %s: %w", id, err)
		}
		tasks[id] = t
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return snapshot{}, err
	}

	jobs := make(map[model.JobKey]model.JobConfig)
	jobRows, err := tx.QueryContext(ctx, `SELECT data FROM jobs`)
	if err != nil {
		return snapshot{}, fmt.Errorf("taskstore/sqlite: select jobs: %w", err)
	}
	for jobRows.Next() {
		var data string
		if err := jobRows.Scan(&data); err != nil {
			jobRows.Close()
			return snapshot{}, fmt.Errorf("taskstore/sqlite: scan job: %w", err)
		}
		var cfg model.JobConfig
		if err := json.Unmarshal([]byte(data), &cfg); err != nil {
			jobRows.Close()
			return snapshot{}, fmt.Errorf("taskstore/sqlite: decode job: %w", err)
		}
		jobs[cfg.Key] = cfg
	}
	jobRows.Close()
	if err := jobRows.Err(); err != nil {
		return snapshot{}, err
	}

	return snapshot{tasks: tasks, jobs: jobs}, nil
}

// Read takes a consistent snapshot inside a read-only transaction.
func (s *Store) Read(ctx context.Context, fn func(taskstore.StoreSnapshot)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("taskstore/sqlite: begin read: %w", err)
	}
	defer tx.Rollback()

	snap, err := loadSnapshot(ctx, tx)
	if err != nil {
		return err
	}
	fn(snap)
	return tx.Commit()
}

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

// Write runs fn inside one SQLite transaction, serialized behind s.mu.
func (s *Store) Write(ctx context.Context, fn func(taskstore.MutableStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("taskstore/sqlite: begin write: %w", err)
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

func flush(ctx context.Context, tx *sql.Tx, m *mutableStore) error {
	for taskID := range m.dirtyTasks {
		t := m.tasks[taskID]
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("taskstore/sqlite: encode task %s: %w", taskID, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO tasks (task_id, job_role, job_env, job_name, instance_id, status, data)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (task_id) DO UPDATE SET
				job_role = excluded.job_role, job_env = excluded.job_env, job_name = excluded.job_name,
				instance_id = excluded.instance_id, status = excluded.status, data = excluded.data`,
			t.TaskID, t.JobKey().Role, t.JobKey().Environment, t.JobKey().Name, t.InstanceID(), string(t.Status), string(data))
		if err != nil {
			return fmt.Errorf("taskstore/sqlite: upsert task %s: %w", taskID, err)
		}
	}

	for id := range m.deletedTasks {
		if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE task_id = ?`, id); err != nil {
			return fmt.Errorf("taskstore/sqlite: delete task %s: %w", id, err)
		}
	}

	for key := range m.dirtyJobs {
		cfg := m.jobs[key]
		data, err := json.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("taskstore/sqlite: encode job %s: %w", key.String(), err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO jobs (job_role, job_env, job_name, data)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (job_role, job_env, job_name) DO UPDATE SET data = excluded.data`,
			key.Role, key.Environment, key.Name, string(data))
		if err != nil {
			return fmt.Errorf("taskstore/sqlite: upsert job %s: %w", key.String(), err)
		}
	}

	for key := range m.deletedJobs {
		if _, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE job_role = ? AND job_env = ? AND job_name = ?`,
			key.Role, key.Environment, key.Name); err != nil {
			return fmt.Errorf("taskstore/sqlite: delete job %s: %w", key.String(), err)
		}
	}

	return nil
}
