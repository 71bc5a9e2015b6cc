package cronregistry

import (
	"testing"

	"github.com/nextlevelbuilder/clusterd/internal/model"
)

type fakeTrigger struct {
	validExprs map[string]bool
	callbacks  map[*int]CronTriggerCallback
	nextHandle int
}

func newFakeTrigger() *fakeTrigger {
	return &fakeTrigger{
		validExprs: map[string]bool{"0 * * * *": true, "*/5 * * * *": true},
		callbacks:  make(map[*int]CronTriggerCallback),
	}
}

func (f *fakeTrigger) IsValidSchedule(expr string) bool {
	return f.validExprs[expr]
}

func (f *fakeTrigger) Schedule(expr string, callback CronTriggerCallback) (CronTriggerHandle, error) {
	f.nextHandle++
	h := new(int)
	*h = f.nextHandle
	f.callbacks[h] = callback
	return h, nil
}

func (f *fakeTrigger) Deschedule(handle CronTriggerHandle) {
	h, ok := handle.(*int)
	if !ok {
		return
	}
	delete(f.callbacks, h)
}

func (f *fakeTrigger) fire(handle CronTriggerHandle) {
	h, ok := handle.(*int)
	if !ok {
		return
	}
	if cb, ok := f.callbacks[h]; ok {
		cb()
	}
}

func TestScheduleRejectsInvalidExpression(t *testing.T) {
	trigger := newFakeTrigger()
	var fired []model.JobKey
	reg := New(trigger, func(key model.JobKey) { fired = append(fired, key) }, nil)

	cfg := model.JobConfig{
		Key:          model.JobKey{Role: "www-data", Environment: "prod", Name: "job"},
		CronSchedule: "not a cron expr",
	}
	if err := reg.Schedule(cfg); err == nil {
		t.Fatal("expected an invalid cron expression to be rejected")
	}
	if reg.HasJob(cfg.Key) {
		t.Fatal("expected rejected schedule to not register the job")
	}
}

func TestScheduleRegistersAndFires(t *testing.T) {
	trigger := newFakeTrigger()
	var fired []model.JobKey
	reg := New(trigger, func(key model.JobKey) { fired = append(fired, key) }, nil)

	key := model.JobKey{Role: "www-data", Environment: "prod", Name: "job"}
	cfg := model.JobConfig{Key: key, CronSchedule: "0 * * * *"}
	if err := reg.Schedule(cfg); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if !reg.HasJob(key) {
		t.Fatal("expected the job to be registered")
	}
	got, ok := reg.GetJob(key)
	if !ok || !got.Key.Equal(key) {
		t.Fatalf("GetJob returned (%+v, %v)", got, ok)
	}

	for h := range trigger.callbacks {
		trigger.fire(h)
	}
	if len(fired) != 1 || !fired[0].Equal(key) {
		t.Fatalf("expected the start-instances callback fired once for %v, got %v", key, fired)
	}
}

func TestDeschedule(t *testing.T) {
	trigger := newFakeTrigger()
	reg := New(trigger, func(model.JobKey) {}, nil)

	key := model.JobKey{Role: "www-data", Environment: "prod", Name: "job"}
	reg.Schedule(model.JobConfig{Key: key, CronSchedule: "0 * * * *"})
	reg.Deschedule(key)

	if reg.HasJob(key) {
		t.Fatal("expected the job to be unregistered after Deschedule")
	}
	if len(trigger.callbacks) != 0 {
		t.Fatal("expected Deschedule to cancel the underlying trigger handle")
	}
}

func TestDescheduleUnknownJobIsNoop(t *testing.T) {
	trigger := newFakeTrigger()
	reg := New(trigger, func(model.JobKey) {}, nil)
	reg.Deschedule(model.JobKey{Role: "www-data", Environment: "prod", Name: "unregistered"})
}

func TestReplace(t *testing.T) {
	trigger := newFakeTrigger()
	reg := New(trigger, func(model.JobKey) {}, nil)

	key := model.JobKey{Role: "www-data", Environment: "prod", Name: "job"}
	reg.Schedule(model.JobConfig{Key: key, CronSchedule: "0 * * * *", InstanceCount: 1})

	newCfg := model.JobConfig{Key: key, CronSchedule: "*/5 * * * *", InstanceCount: 2}
	if err := reg.Replace(newCfg); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	got, ok := reg.GetJob(key)
	if !ok {
		t.Fatal("expected the job to remain registered after Replace")
	}
	if got.InstanceCount != 2 || got.CronSchedule != "*/5 * * * *" {
		t.Fatalf("Replace did not update the registered config, got %+v", got)
	}
	if len(trigger.callbacks) != 1 {
		t.Fatalf("expected exactly one live trigger handle after Replace, got %d", len(trigger.callbacks))
	}
}

func TestGetJobs(t *testing.T) {
	trigger := newFakeTrigger()
	reg := New(trigger, func(model.JobKey) {}, nil)

	keyA := model.JobKey{Role: "www-data", Environment: "prod", Name: "a"}
	keyB := model.JobKey{Role: "www-data", Environment: "prod", Name: "b"}
	reg.Schedule(model.JobConfig{Key: keyA, CronSchedule: "0 * * * *"})
	reg.Schedule(model.JobConfig{Key: keyB, CronSchedule: "*/5 * * * *"})

	jobs := reg.GetJobs()
	if len(jobs) != 2 {
		t.Fatalf("GetJobs() returned %d jobs, want 2", len(jobs))
	}
}
