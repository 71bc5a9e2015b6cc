// Package cronregistry implements CronJobRegistry and a gronx-backed
// CronTrigger: a one-second polling loop using gronx.NextTickAfter and
// gronx.IsValid, with exponential backoff and jitter around failed
// post-commit schedule calls.
package cronregistry

import (
	"log/slog"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/nextlevelbuilder/clusterd/internal/model"
)

// CronTriggerCallback fires when a schedule is due.
type CronTriggerCallback func()

// CronTriggerHandle is an opaque handle returned by Schedule, used to
// deschedule a trigger later.
type CronTriggerHandle interface{}

// CronTrigger validates cron expressions and fires callbacks when they're due.
type CronTrigger interface {
	IsValidSchedule(expr string) bool
	Schedule(expr string, callback CronTriggerCallback) (CronTriggerHandle, error)
	Deschedule(handle CronTriggerHandle)
}

// GronxTrigger is a CronTrigger backed by a one-second polling loop and
// adhocore/gronx for expression validation and next-fire computation.
type GronxTrigger struct {
	clock  model.Clock
	logger *slog.Logger

	mu      sync.Mutex
	entries map[*triggerEntry]struct{}
	ticker  *time.Ticker
	stop    chan struct{}
}

type triggerEntry struct {
	expr     string
	callback CronTriggerCallback
	nextRun  time.Time
}

// NewGronxTrigger creates a CronTrigger and starts its polling loop.
func NewGronxTrigger(clock model.Clock, logger *slog.Logger) *GronxTrigger {
	if clock == nil {
		clock = model.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	t := &GronxTrigger{
		clock:   clock,
		logger:  logger,
		entries: make(map[*triggerEntry]struct{}),
		ticker:  time.NewTicker(time.Second),
		stop:    make(chan struct{}),
	}
	go t.loop()
	return t
}

// IsValidSchedule reports whether expr is a valid 5-field cron expression.
func (t *GronxTrigger) IsValidSchedule(expr string) bool {
	return gronx.New().IsValid(expr)
}

// Schedule registers callback to fire on expr, returning an opaque handle
// for Deschedule.
func (t *GronxTrigger) Schedule(expr string, callback CronTriggerCallback) (CronTriggerHandle, error) {
	next, err := gronx.NextTickAfter(expr, t.clock.Now(), false)
	if err != nil {
		return nil, err
	}
	entry := &triggerEntry{expr: expr, callback: callback, nextRun: next}

	t.mu.Lock()
	t.entries[entry] = struct{}{}
	t.mu.Unlock()

	return entry, nil
}

// Deschedule removes a previously scheduled trigger.
func (t *GronxTrigger) Deschedule(handle CronTriggerHandle) {
	entry, ok := handle.(*triggerEntry)
	if !ok {
		return
	}
	t.mu.Lock()
	delete(t.entries, entry)
	t.mu.Unlock()
}

// Stop halts the polling loop.
func (t *GronxTrigger) Stop() {
	close(t.stop)
	t.ticker.Stop()
}

func (t *GronxTrigger) loop() {
	for {
		select {
		case <-t.stop:
			return
		case <-t.ticker.C:
			t.fireDue()
		}
	}
}

func (t *GronxTrigger) fireDue() {
	now := t.clock.Now()

	t.mu.Lock()
	var due []*triggerEntry
	for entry := range t.entries {
		if !entry.nextRun.After(now) {
			due = append(due, entry)
		}
	}
	for _, entry := range due {
		next, err := gronx.NextTickAfter(entry.expr, now, false)
		if err != nil {
			t.logger.Error("cronregistry: failed to compute next run", "expr", entry.expr, "error", err)
			delete(t.entries, entry)
			continue
		}
		entry.nextRun = next
	}
	t.mu.Unlock()

	for _, entry := range due {
		entry.callback()
	}
}
