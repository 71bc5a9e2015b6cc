package cronregistry

import (
	"math/rand/v2"
	"time"
)

// retryConfig controls the exponential backoff retry applied to a cron
// job's one-time CronTrigger.Schedule call, adapted from the teacher's
// generic job-retry helper.
type retryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// defaultRetryConfig mirrors the teacher's defaults.
func defaultRetryConfig() retryConfig {
	return retryConfig{
		MaxRetries: 3,
		BaseDelay:  2 * time.Second,
		MaxDelay:   30 * time.Second,
	}
}

// retrySchedule calls fn, retrying on error with exponential backoff plus
// jitter, up to cfg.MaxRetries times. Returns the last error if every
// attempt fails.
func retrySchedule(fn func() error, cfg retryConfig) error {
	var err error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt < cfg.MaxRetries {
			time.Sleep(backoffWithJitter(cfg.BaseDelay, cfg.MaxDelay, attempt))
		}
	}
	return err
}

// backoffWithJitter computes delay = min(base * 2^attempt, max) +/- 25%.
func backoffWithJitter(base, maxDelay time.Duration, attempt int) time.Duration {
	delay := base << uint(attempt)
	if delay > maxDelay {
		delay = maxDelay
	}

	quarter := delay / 4
	if quarter > 0 {
		jitter := time.Duration(rand.Int64N(int64(quarter*2))) - quarter
		delay += jitter
	}
	return delay
}
