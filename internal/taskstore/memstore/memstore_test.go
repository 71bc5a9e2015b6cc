package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/nextlevelbuilder/clusterd/internal/model"
	"github.com/nextlevelbuilder/clusterd/internal/query"
	"github.com/nextlevelbuilder/clusterd/internal/taskstore"
)

func sampleTask(id string, key model.JobKey, instanceID int, status model.ScheduleStatus) model.ScheduledTask {
	return model.ScheduledTask{
		TaskID: id,
		Status: status,
		Assigned: model.AssignedTask{
			TaskID: id,
			Task:   model.TaskConfig{JobKey: key, InstanceID: instanceID},
		},
	}
}

func TestWriteCommitsOnSuccess(t *testing.T) {
	store := New()
	key := model.JobKey{Role: "www-data", Environment: "prod", Name: "frontend"}

	err := store.Write(context.Background(), func(m taskstore.MutableStore) error {
		m.SaveTasks([]model.ScheduledTask{sampleTask("t1", key, 0, model.StatusPending)})
		return nil
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	var tasks []model.ScheduledTask
	store.Read(context.Background(), func(snap taskstore.StoreSnapshot) {
		tasks = snap.FetchTasks(query.ByJobKey(key))
	})
	if len(tasks) != 1 {
		t.Fatalf("got %d tasks, want 1", len(tasks))
	}
}

func TestWriteRollsBackOnError(t *testing.T) {
	store := New()
	key := model.JobKey{Role: "www-data", Environment: "prod", Name: "frontend"}
	store.Write(context.Background(), func(m taskstore.MutableStore) error {
		m.SaveTasks([]model.ScheduledTask{sampleTask("t1", key, 0, model.StatusPending)})
		return nil
	})

	wantErr := errors.New("boom")
	err := store.Write(context.Background(), func(m taskstore.MutableStore) error {
		m.SaveTasks([]model.ScheduledTask{sampleTask("t2", key, 1, model.StatusPending)})
		m.DeleteTasks([]string{"t1"})
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("Write error = %v, want %v", err, wantErr)
	}

	var tasks []model.ScheduledTask
	store.Read(context.Background(), func(snap taskstore.StoreSnapshot) {
		tasks = snap.FetchTasks(query.ByJobKey(key))
	})
	if len(tasks) != 1 || tasks[0].TaskID != "t1" {
		t.Fatalf("expected the failed transaction fully rolled back, got %+v", tasks)
	}
}

func TestMutateSkipsMissingTask(t *testing.T) {
	store := New()
	err := store.Write(context.Background(), func(m taskstore.MutableStore) error {
		m.Mutate("does-not-exist", func(current model.ScheduledTask) (model.ScheduledTask, bool) {
			t.Fatal("fn should not be called for a missing task")
			return current, true
		})
		return nil
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
}

func TestMutateAppliesUpdate(t *testing.T) {
	store := New()
	key := model.JobKey{Role: "www-data", Environment: "prod", Name: "frontend"}
	store.Write(context.Background(), func(m taskstore.MutableStore) error {
		m.SaveTasks([]model.ScheduledTask{sampleTask("t1", key, 0, model.StatusPending)})
		return nil
	})

	store.Write(context.Background(), func(m taskstore.MutableStore) error {
		m.Mutate("t1", func(current model.ScheduledTask) (model.ScheduledTask, bool) {
			current.Status = model.StatusRunning
			return current, true
		})
		return nil
	})

	var tasks []model.ScheduledTask
	store.Read(context.Background(), func(snap taskstore.StoreSnapshot) {
		tasks = snap.FetchTasks(query.ByTaskIDs("t1"))
	})
	if tasks[0].Status != model.StatusRunning {
		t.Fatalf("Status = %s, want RUNNING", tasks[0].Status)
	}
}

func TestSaveFetchRemoveJob(t *testing.T) {
	store := New()
	key := model.JobKey{Role: "www-data", Environment: "prod", Name: "frontend"}
	cfg := model.JobConfig{Key: key, InstanceCount: 2}

	store.Write(context.Background(), func(m taskstore.MutableStore) error {
		m.SaveJob(cfg)
		return nil
	})

	var (
		got   model.JobConfig
		found bool
	)
	store.Read(context.Background(), func(snap taskstore.StoreSnapshot) {
		got, found = snap.FetchJob(key)
	})
	if !found || got.InstanceCount != 2 {
		t.Fatalf("FetchJob = (%+v, %v)", got, found)
	}

	store.Write(context.Background(), func(m taskstore.MutableStore) error {
		m.RemoveJob(key)
		return nil
	})
	store.Read(context.Background(), func(snap taskstore.StoreSnapshot) {
		_, found = snap.FetchJob(key)
	})
	if found {
		t.Fatal("expected job removed")
	}
}

func TestReadSnapshotIsIsolatedFromLaterWrites(t *testing.T) {
	store := New()
	key := model.JobKey{Role: "www-data", Environment: "prod", Name: "frontend"}
	store.Write(context.Background(), func(m taskstore.MutableStore) error {
		m.SaveTasks([]model.ScheduledTask{sampleTask("t1", key, 0, model.StatusPending)})
		return nil
	})

	var snapshotTasks []model.ScheduledTask
	store.Read(context.Background(), func(snap taskstore.StoreSnapshot) {
		snapshotTasks = snap.FetchTasks(query.ByJobKey(key))
	})

	store.Write(context.Background(), func(m taskstore.MutableStore) error {
		m.SaveTasks([]model.ScheduledTask{sampleTask("t2", key, 1, model.StatusPending)})
		return nil
	})

	if len(snapshotTasks) != 1 {
		t.Fatalf("expected the earlier snapshot unaffected by a later write, got %d tasks", len(snapshotTasks))
	}
}
