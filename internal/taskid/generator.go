// Package taskid provides the pluggable taskId generator used when a task
// is inserted: a plain TaskConfig -> string function, so test scenarios
// can inject a deterministic one in place of the default.
package taskid

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/clusterd/internal/model"
)

// MaxLength is the longest a generated taskId is allowed to be.
const MaxLength = 255

// Generator produces a taskId for a TaskConfig being inserted. The default
// generator is process-local and non-durable across restarts; tests should
// inject a deterministic one.
type Generator func(cfg model.TaskConfig) string

// counter seeds a per-process monotonic suffix: not persisted, and
// intentionally not monotonic across process restarts.
var counter atomic.Uint64

// Default returns the default generator, producing
// "<jobkey>-<UUIDv7>-<counter>-<owner role>": the time-ordered UUIDv7 is
// followed by a monotonic process-local counter, so two tasks generated
// within the same clock tick never collide.
func Default() Generator {
	return func(cfg model.TaskConfig) string {
		n := counter.Add(1)
		return fmt.Sprintf("%s-%s-%d-%s", cfg.JobKey.String(), uuid.Must(uuid.NewV7()).String(), n, shortOwner(cfg))
	}
}

func shortOwner(cfg model.TaskConfig) string {
	if cfg.Owner.Role == "" {
		return "task"
	}
	return cfg.Owner.Role
}

// Validate enforces len(id) <= MAX_TASK_ID_LENGTH.
func Validate(id string) error {
	if len(id) > MaxLength {
		return fmt.Errorf("%w: generated taskId length %d exceeds MAX_TASK_ID_LENGTH %d", model.ErrInvalidConfiguration, len(id), MaxLength)
	}
	if id == "" {
		return fmt.Errorf("%w: generated taskId is empty", model.ErrInvalidConfiguration)
	}
	return nil
}
