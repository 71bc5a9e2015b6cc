package cronregistry

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/nextlevelbuilder/clusterd/internal/model"
)

// StartInstancesFunc is called when a cron job's schedule fires. The
// registry is wired with this callback at construction instead of holding
// a back-pointer to the whole scheduler core, keeping the dependency
// direction one-way.
type StartInstancesFunc func(key model.JobKey)

// entry tracks one cron-managed job's config and its live trigger handle.
type entry struct {
	config model.JobConfig
	handle CronTriggerHandle
}

// Registry tracks cron-managed jobs, their collision policy, and their
// last-trigger handle.
type Registry struct {
	trigger        CronTrigger
	startInstances StartInstancesFunc
	logger         *slog.Logger

	mu      sync.Mutex
	entries map[model.JobKey]*entry
}

// New constructs a CronJobRegistry wired to trigger and to the callback
// that materializes instances when a schedule fires.
func New(trigger CronTrigger, startInstances StartInstancesFunc, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		trigger:        trigger,
		startInstances: startInstances,
		logger:         logger,
		entries:        make(map[model.JobKey]*entry),
	}
}

// HasJob reports whether key is cron-registered.
func (r *Registry) HasJob(key model.JobKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[key]
	return ok
}

// GetJob returns the registered JobConfig for key, if any.
func (r *Registry) GetJob(key model.JobKey) (model.JobConfig, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	if !ok {
		return model.JobConfig{}, false
	}
	return e.config, true
}

// GetJobs returns every cron-registered JobConfig.
func (r *Registry) GetJobs() []model.JobConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.JobConfig, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.config)
	}
	return out
}

// Schedule validates cfg.CronSchedule, registers cfg, and wires the
// callback through CronTrigger. The job's admission is already committed
// to the store by the time Schedule runs, so a transient failure
// registering with the trigger (e.g. a momentarily unavailable backing
// timer service) is retried with backoff before being surfaced.
func (r *Registry) Schedule(cfg model.JobConfig) error {
	if !r.trigger.IsValidSchedule(cfg.CronSchedule) {
		return fmt.Errorf("%w: invalid cron schedule %q", model.ErrInvalidConfiguration, cfg.CronSchedule)
	}

	key := cfg.Key
	var handle CronTriggerHandle
	err := retrySchedule(func() error {
		h, err := r.trigger.Schedule(cfg.CronSchedule, func() {
			r.startInstances(key)
		})
		if err != nil {
			return err
		}
		handle = h
		return nil
	}, defaultRetryConfig())
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrInvalidConfiguration, err)
	}

	r.mu.Lock()
	r.entries[key] = &entry{config: cfg, handle: handle}
	r.mu.Unlock()

	r.logger.Info("cronregistry: job scheduled", "job", key.String(), "expr", cfg.CronSchedule)
	return nil
}

// Deschedule removes key's cron registration and cancels its trigger.
func (r *Registry) Deschedule(key model.JobKey) {
	r.mu.Lock()
	e, ok := r.entries[key]
	if ok {
		delete(r.entries, key)
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	r.trigger.Deschedule(e.handle)
	r.logger.Info("cronregistry: job descheduled", "job", key.String())
}

// Replace deschedules key's existing registration (if any) and reschedules
// with cfg — used by initiateJobUpdate against a cron job.
func (r *Registry) Replace(cfg model.JobConfig) error {
	r.Deschedule(cfg.Key)
	return r.Schedule(cfg)
}
