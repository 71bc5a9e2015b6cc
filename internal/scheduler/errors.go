package scheduler

import (
	"fmt"

	"github.com/nextlevelbuilder/clusterd/internal/model"
)

// scheduleErr wraps model.ErrSchedule with a concrete reason: duplicate
// job, starting a non-existent or non-cron job, update already in
// progress, token mismatch, finishUpdate with no session, restartShards
// against a missing instance.
func scheduleErr(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{model.ErrSchedule}, args...)...)
}

func invalidConfigErr(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{model.ErrInvalidConfiguration}, args...)...)
}

// ErrSchedule/ErrInvalidConfiguration let callers check error kind via
// errors.Is(err, scheduler.ErrSchedule) without importing internal/model.
var (
	ErrSchedule             = model.ErrSchedule
	ErrInvalidConfiguration = model.ErrInvalidConfiguration
)
