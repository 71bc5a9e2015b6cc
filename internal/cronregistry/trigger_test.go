package cronregistry

import (
	"testing"
	"time"
)

type stepClock struct{ t time.Time }

func (c *stepClock) Now() time.Time { return c.t }

func TestGronxTriggerIsValidSchedule(t *testing.T) {
	trig := NewGronxTrigger(&stepClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}, nil)
	defer trig.Stop()

	if !trig.IsValidSchedule("0 * * * *") {
		t.Error("expected a standard 5-field cron expression to validate")
	}
	if trig.IsValidSchedule("not a cron expr") {
		t.Error("expected garbage input to fail validation")
	}
}

func TestGronxTriggerScheduleAndDeschedule(t *testing.T) {
	clock := &stepClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	trig := NewGronxTrigger(clock, nil)
	defer trig.Stop()

	var fired bool
	handle, err := trig.Schedule("0 * * * *", func() { fired = true })
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	trig.Deschedule(handle)

	trig.mu.Lock()
	n := len(trig.entries)
	trig.mu.Unlock()
	if n != 0 {
		t.Fatalf("expected Deschedule to remove the entry, %d remain", n)
	}
	if fired {
		t.Fatal("expected the descheduled callback to never fire")
	}
}

func TestGronxTriggerRejectsInvalidExpression(t *testing.T) {
	trig := NewGronxTrigger(&stepClock{t: time.Now()}, nil)
	defer trig.Stop()

	if _, err := trig.Schedule("garbage", func() {}); err == nil {
		t.Fatal("expected Schedule to reject an invalid cron expression")
	}
}

func TestGronxTriggerFiresDueEntries(t *testing.T) {
	clock := &stepClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	trig := NewGronxTrigger(clock, nil)
	defer trig.Stop()

	fireCount := 0
	handle, err := trig.Schedule("0 * * * *", func() { fireCount++ })
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	// Advance the clock past the computed next-run and invoke the
	// due-checking sweep directly, rather than waiting on the 1s ticker.
	clock.t = clock.t.Add(2 * time.Hour)
	trig.fireDue()

	trig.mu.Lock()
	_, stillScheduled := trig.entries[handle.(*triggerEntry)]
	trig.mu.Unlock()

	if fireCount != 1 {
		t.Fatalf("fireCount = %d, want 1", fireCount)
	}
	if !stillScheduled {
		t.Fatal("expected the entry to remain registered for its next occurrence")
	}
}
