package backfill

import (
	"context"
	"testing"

	"github.com/nextlevelbuilder/clusterd/internal/model"
	"github.com/nextlevelbuilder/clusterd/internal/query"
	"github.com/nextlevelbuilder/clusterd/internal/taskstore"
	"github.com/nextlevelbuilder/clusterd/internal/taskstore/memstore"
)

func seedTask(store *memstore.Store, task model.ScheduledTask) {
	store.Write(context.Background(), func(m taskstore.MutableStore) error {
		m.SaveTasks([]model.ScheduledTask{task})
		return nil
	})
}

func fetchOne(store *memstore.Store, taskID string) model.ScheduledTask {
	var out model.ScheduledTask
	store.Read(context.Background(), func(snap taskstore.StoreSnapshot) {
		out = snap.FetchTasks(query.ByTaskIDs(taskID))[0]
	})
	return out
}

func fetchJob(store *memstore.Store, key model.JobKey) []model.ScheduledTask {
	var out []model.ScheduledTask
	store.Read(context.Background(), func(snap taskstore.StoreSnapshot) {
		out = snap.FetchTasks(query.ByJobKey(key))
	})
	return out
}

func TestRunSynthesizesLegacyFields(t *testing.T) {
	store := memstore.New()
	key := model.JobKey{Role: "www-data", Environment: "prod", Name: "frontend"}
	seedTask(store, model.ScheduledTask{
		TaskID: "legacy-task",
		Status: model.StatusRunning,
		Assigned: model.AssignedTask{
			TaskID: "legacy-task",
			Task: model.TaskConfig{
				JobKey:     key,
				InstanceID: 0,
			},
		},
	})

	if err := Run(context.Background(), store, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	out := fetchOne(store, "legacy-task")
	if out.Assigned.Task.MaxTaskFailures != 1 {
		t.Errorf("MaxTaskFailures = %d, want 1", out.Assigned.Task.MaxTaskFailures)
	}
	if len(out.Assigned.Task.Constraints) != 1 || out.Assigned.Task.Constraints[0].Kind != model.ConstraintHostLimit {
		t.Errorf("expected a synthesized hostLimit constraint, got %+v", out.Assigned.Task.Constraints)
	}
	if out.Assigned.Task.ExecutorConfig.Name != legacyExecutorName {
		t.Errorf("ExecutorConfig.Name = %q, want %q", out.Assigned.Task.ExecutorConfig.Name, legacyExecutorName)
	}
}

func TestRunLeavesModernConfigUntouched(t *testing.T) {
	store := memstore.New()
	key := model.JobKey{Role: "www-data", Environment: "prod", Name: "frontend"}
	cfg := model.TaskConfig{
		JobKey:          key,
		InstanceID:      0,
		MaxTaskFailures: 3,
		Constraints:     []model.Constraint{{Kind: model.ConstraintDedicated, Value: "www-data"}},
		ExecutorConfig:  model.ExecutorConfig{Name: "thermos"},
	}
	seedTask(store, model.ScheduledTask{
		TaskID:   "modern-task",
		Status:   model.StatusRunning,
		Assigned: model.AssignedTask{TaskID: "modern-task", Task: cfg},
	})

	if err := Run(context.Background(), store, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	out := fetchOne(store, "modern-task")
	if out.Assigned.Task.MaxTaskFailures != 3 {
		t.Errorf("expected the original MaxTaskFailures preserved, got %d", out.Assigned.Task.MaxTaskFailures)
	}
	if out.Assigned.Task.ExecutorConfig.Name != "thermos" {
		t.Errorf("expected the original ExecutorConfig preserved, got %+v", out.Assigned.Task.ExecutorConfig)
	}
}

func TestRunEnforcesShardUniqueness(t *testing.T) {
	store := memstore.New()
	key := model.JobKey{Role: "www-data", Environment: "prod", Name: "frontend"}
	cfg := model.TaskConfig{JobKey: key, InstanceID: 0, MaxTaskFailures: 1, ExecutorConfig: model.ExecutorConfig{Name: "thermos"}}

	for _, id := range []string{"task-b", "task-a", "task-c"} {
		seedTask(store, model.ScheduledTask{
			TaskID:   id,
			Status:   model.StatusRunning,
			Assigned: model.AssignedTask{TaskID: id, Task: cfg},
		})
	}

	if err := Run(context.Background(), store, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	tasks := fetchJob(store, key)
	statuses := make(map[string]model.ScheduleStatus, len(tasks))
	for _, t := range tasks {
		statuses[t.TaskID] = t.Status
	}
	if statuses["task-a"] != model.StatusRunning {
		t.Errorf("expected the lexicographically smallest taskId to survive as RUNNING, got %s", statuses["task-a"])
	}
	if statuses["task-b"] != model.StatusKilled || statuses["task-c"] != model.StatusKilled {
		t.Errorf("expected the other duplicate shards forced to KILLED, got b=%s c=%s", statuses["task-b"], statuses["task-c"])
	}
}

func TestRunIgnoresTerminalDuplicates(t *testing.T) {
	store := memstore.New()
	key := model.JobKey{Role: "www-data", Environment: "prod", Name: "frontend"}
	cfg := model.TaskConfig{JobKey: key, InstanceID: 0, MaxTaskFailures: 1, ExecutorConfig: model.ExecutorConfig{Name: "thermos"}}

	seedTask(store, model.ScheduledTask{TaskID: "active-1", Status: model.StatusRunning, Assigned: model.AssignedTask{TaskID: "active-1", Task: cfg}})
	seedTask(store, model.ScheduledTask{TaskID: "finished-1", Status: model.StatusFinished, Assigned: model.AssignedTask{TaskID: "finished-1", Task: cfg}})

	if err := Run(context.Background(), store, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	tasks := fetchJob(store, key)
	for _, task := range tasks {
		if task.TaskID == "active-1" && task.Status != model.StatusRunning {
			t.Errorf("expected the sole active shard untouched, got %s", task.Status)
		}
		if task.TaskID == "finished-1" && task.Status != model.StatusFinished {
			t.Errorf("expected the terminal duplicate left alone (not in the active group), got %s", task.Status)
		}
	}
}
