package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/clusterd/internal/admission"
	"github.com/nextlevelbuilder/clusterd/internal/cronregistry"
	"github.com/nextlevelbuilder/clusterd/internal/eventsink"
	"github.com/nextlevelbuilder/clusterd/internal/model"
	"github.com/nextlevelbuilder/clusterd/internal/query"
	"github.com/nextlevelbuilder/clusterd/internal/statemanager"
	"github.com/nextlevelbuilder/clusterd/internal/taskstore/memstore"
)

// fakeTrigger is a CronTrigger double that never fires and discards the
// callbacks it is given; tests run a cron firing by calling StartCronJob
// directly.
type fakeTrigger struct {
	mu        sync.Mutex
	callbacks map[model.JobKey]cronregistry.CronTriggerCallback
}

func newFakeTrigger() *fakeTrigger {
	return &fakeTrigger{callbacks: make(map[model.JobKey]cronregistry.CronTriggerCallback)}
}

func (f *fakeTrigger) IsValidSchedule(expr string) bool {
	return expr != "" && expr != "invalid"
}

func (f *fakeTrigger) Schedule(expr string, callback cronregistry.CronTriggerCallback) (cronregistry.CronTriggerHandle, error) {
	h := new(int)
	return h, nil
}

func (f *fakeTrigger) Deschedule(handle cronregistry.CronTriggerHandle) {}

type noopDriver struct{}

func (noopDriver) KillTask(string) {}

type noopSink struct{}

func (noopSink) Publish(eventsink.TaskStateChange) {}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func newTestCore() *Core {
	sm := statemanager.New(memstore.New(), noopDriver{}, noopSink{},
		statemanager.WithClock(fixedClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}),
	)
	return New(sm, newFakeTrigger(), admission.AllowAll{}, nil)
}

func baseJobConfig() model.JobConfig {
	return model.JobConfig{
		Key:           model.JobKey{Role: "www-data", Environment: "prod", Name: "frontend"},
		InstanceCount: 3,
		Template: model.TaskTemplate{
			ExecutorConfig: model.ExecutorConfig{Name: "thermos"},
			IsService:      true,
		},
	}
}

func TestCreateJobMaterializesInstances(t *testing.T) {
	core := newTestCore()
	ctx := context.Background()
	cfg := baseJobConfig()

	if err := core.CreateJob(ctx, cfg); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	tasks, err := core.sm.FetchTasks(ctx, query.ByJobKey(cfg.Key))
	if err != nil {
		t.Fatalf("FetchTasks: %v", err)
	}
	if len(tasks) != 3 {
		t.Fatalf("got %d tasks, want 3", len(tasks))
	}
	for _, task := range tasks {
		if task.Status != model.StatusPending {
			t.Errorf("task %s status = %s, want PENDING", task.TaskID, task.Status)
		}
	}
}

func TestCreateJobRejectsDuplicate(t *testing.T) {
	core := newTestCore()
	ctx := context.Background()
	cfg := baseJobConfig()

	if err := core.CreateJob(ctx, cfg); err != nil {
		t.Fatalf("first CreateJob: %v", err)
	}
	if err := core.CreateJob(ctx, cfg); err == nil {
		t.Fatal("expected second CreateJob against the same JobKey to fail")
	}
}

func TestCreateJobRejectsInvalidConfig(t *testing.T) {
	core := newTestCore()
	cfg := baseJobConfig()
	cfg.InstanceCount = 0

	if err := core.CreateJob(context.Background(), cfg); err == nil {
		t.Fatal("expected invalid instanceCount to be rejected")
	}
}

type denyFilter struct{}

func (denyFilter) Filter(model.JobConfig) admission.Verdict {
	return admission.Verdict{Pass: false, Reason: "no budget"}
}

func TestCreateJobRejectsFilteredJob(t *testing.T) {
	sm := statemanager.New(memstore.New(), noopDriver{}, noopSink{})
	core := New(sm, newFakeTrigger(), denyFilter{}, nil)

	if err := core.CreateJob(context.Background(), baseJobConfig()); err == nil {
		t.Fatal("expected a denying JobFilter to reject the job")
	}
}

func TestCreateCronJobRegistersWithoutMaterializing(t *testing.T) {
	core := newTestCore()
	ctx := context.Background()
	cfg := baseJobConfig()
	cfg.CronSchedule = "0 * * * *"

	if err := core.CreateJob(ctx, cfg); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	tasks, _ := core.sm.FetchTasks(ctx, query.ByJobKey(cfg.Key))
	if len(tasks) != 0 {
		t.Fatalf("expected no immediate instances for a cron job, got %d", len(tasks))
	}
	if !core.cronReg.HasJob(cfg.Key) {
		t.Fatal("expected the cron job to be registered")
	}
}

func TestStartCronJobKillExistingThenRematerializes(t *testing.T) {
	core := newTestCore()
	ctx := context.Background()
	cfg := baseJobConfig()
	cfg.CronSchedule = "0 * * * *"
	cfg.CronCollisionPolicy = model.KillExisting

	if err := core.CreateJob(ctx, cfg); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if err := core.StartCronJob(ctx, cfg.Key); err != nil {
		t.Fatalf("first StartCronJob: %v", err)
	}
	first, _ := core.sm.FetchTasks(ctx, query.ByJobKey(cfg.Key).Active())
	if len(first) != 3 {
		t.Fatalf("got %d active tasks after first fire, want 3", len(first))
	}

	// Drive the first generation to RUNNING: KillExisting only routes
	// non-PENDING instances through a KILLING transition (PENDING ones are
	// deleted outright, the same as KillTasks), so a still-PENDING first
	// generation would just be replaced with nothing left in KILLING.
	for _, task := range first {
		if _, err := core.sm.AssignTask(ctx, task.TaskID, "host1", "slave1", nil); err != nil {
			t.Fatalf("AssignTask: %v", err)
		}
		if _, err := core.sm.ChangeState(ctx, query.ByTaskIDs(task.TaskID), model.StatusStarting, statemanager.ChangeStateOptions{}); err != nil {
			t.Fatalf("ChangeState to STARTING: %v", err)
		}
		if _, err := core.sm.ChangeState(ctx, query.ByTaskIDs(task.TaskID), model.StatusRunning, statemanager.ChangeStateOptions{}); err != nil {
			t.Fatalf("ChangeState to RUNNING: %v", err)
		}
	}

	if err := core.StartCronJob(ctx, cfg.Key); err != nil {
		t.Fatalf("second StartCronJob: %v", err)
	}
	all, _ := core.sm.FetchTasks(ctx, query.ByJobKey(cfg.Key))
	var killing, pending int
	for _, task := range all {
		switch task.Status {
		case model.StatusKilling:
			killing++
		case model.StatusPending:
			pending++
		}
	}
	if killing != 3 {
		t.Errorf("expected the first generation's 3 RUNNING tasks transitioned to KILLING, got %d", killing)
	}
	if pending != 3 {
		t.Errorf("expected a fresh generation of 3 PENDING tasks, got %d", pending)
	}
}

func TestStartCronJobCancelNewSkipsWhenActive(t *testing.T) {
	core := newTestCore()
	ctx := context.Background()
	cfg := baseJobConfig()
	cfg.CronSchedule = "0 * * * *"
	cfg.CronCollisionPolicy = model.CancelNew

	core.CreateJob(ctx, cfg)
	core.StartCronJob(ctx, cfg.Key)
	before, _ := core.sm.FetchTasks(ctx, query.ByJobKey(cfg.Key))

	if err := core.StartCronJob(ctx, cfg.Key); err != nil {
		t.Fatalf("second StartCronJob: %v", err)
	}
	after, _ := core.sm.FetchTasks(ctx, query.ByJobKey(cfg.Key))
	if len(after) != len(before) {
		t.Fatalf("expected CANCEL_NEW to leave the task set unchanged: before=%d after=%d", len(before), len(after))
	}
}

func TestSetTaskStatusReportsThroughStateManager(t *testing.T) {
	core := newTestCore()
	ctx := context.Background()
	cfg := baseJobConfig()
	core.CreateJob(ctx, cfg)
	tasks, _ := core.sm.FetchTasks(ctx, query.ByJobKey(cfg.Key))

	q := query.ByTaskIDs(tasks[0].TaskID)
	count, err := core.SetTaskStatus(ctx, q, model.StatusAssigned, "")
	// PENDING->ASSIGNED is not in the ChangeState transition table (it goes
	// through AssignTask instead), so this is expected to match nothing.
	if err != nil {
		t.Fatalf("SetTaskStatus: %v", err)
	}
	if count != 0 {
		t.Fatalf("count = %d, want 0 (PENDING->ASSIGNED is AssignTask's job, not ChangeState's)", count)
	}
}

func TestTasksDeletedRoutesActiveAndTerminal(t *testing.T) {
	core := newTestCore()
	ctx := context.Background()
	cfg := baseJobConfig()
	cfg.InstanceCount = 2
	core.CreateJob(ctx, cfg)
	tasks, _ := core.sm.FetchTasks(ctx, query.ByJobKey(cfg.Key))
	pendingID := tasks[0].TaskID

	if err := core.TasksDeleted(ctx, []string{pendingID}); err != nil {
		t.Fatalf("TasksDeleted: %v", err)
	}

	all, _ := core.sm.FetchTasks(ctx, query.ByJobKey(cfg.Key))
	var foundOutgoing, foundSuccessor bool
	for _, task := range all {
		if task.TaskID == pendingID {
			foundOutgoing = true
			if task.Status != model.StatusLost {
				t.Errorf("expected active task reported deleted to become LOST, got %s", task.Status)
			}
		}
		if task.AncestorID == pendingID {
			foundSuccessor = true
			if task.Status != model.StatusPending {
				t.Errorf("expected rescheduled successor to be PENDING, got %s", task.Status)
			}
		}
	}
	if !foundOutgoing {
		t.Fatal("expected the original task to still be present with LOST status")
	}
	if !foundSuccessor {
		t.Fatal("expected tasksDeleted to reschedule the lost task")
	}

	// The task is now LOST (terminal): a second report deletes it outright.
	if err := core.TasksDeleted(ctx, []string{pendingID}); err != nil {
		t.Fatalf("TasksDeleted on terminal task: %v", err)
	}
	all, _ = core.sm.FetchTasks(ctx, query.ByJobKey(cfg.Key))
	for _, task := range all {
		if task.TaskID == pendingID {
			t.Fatalf("expected terminal task reported deleted to be removed, still present with %s", task.Status)
		}
	}
}

func TestFetchTasksReturnsMatchingTasks(t *testing.T) {
	core := newTestCore()
	ctx := context.Background()
	cfg := baseJobConfig()
	if err := core.CreateJob(ctx, cfg); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	tasks, err := core.FetchTasks(ctx, query.ByJobKey(cfg.Key))
	if err != nil {
		t.Fatalf("FetchTasks: %v", err)
	}
	if len(tasks) != 3 {
		t.Fatalf("got %d tasks, want 3", len(tasks))
	}
}
