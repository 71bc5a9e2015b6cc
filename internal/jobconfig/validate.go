// Package jobconfig validates JobConfig/TaskConfig identifiers and
// constraints, grounded on the teacher's internal/store/validate.go
// (single-purpose length validator) and internal/config/normalize.go
// (regexp-based identifier checking).
package jobconfig

import (
	"fmt"
	"strings"

	"github.com/nextlevelbuilder/clusterd/internal/model"
)

// MaxUserLength bounds the caller-identity string every SchedulerCore
// operation threads through (killTasks, restartShards, the update
// orchestration) — the same VARCHAR(255)-sized bound the teacher's
// internal/store/validate.go applies to its user identifier columns.
const MaxUserLength = 255

// ValidateUser checks that a caller-identity string is non-empty and does
// not exceed MaxUserLength.
func ValidateUser(user string) error {
	if user == "" {
		return fmt.Errorf("%w: user must not be empty", model.ErrInvalidConfiguration)
	}
	if len(user) > MaxUserLength {
		return fmt.Errorf("%w: user identifier too long: %d chars (max %d)", model.ErrInvalidConfiguration, len(user), MaxUserLength)
	}
	return nil
}

// Validate checks a JobConfig against every admission rule: identifier
// charset, instanceCount, and dedicated constraint values.
// Returns an ErrInvalidConfiguration-wrapped error describing the first
// violation found; callers must not mutate state on failure.
func Validate(cfg model.JobConfig) error {
	if err := cfg.Key.Validate(); err != nil {
		return err
	}
	if cfg.InstanceCount < 1 {
		return fmt.Errorf("%w: instanceCount must be >= 1, got %d", model.ErrInvalidConfiguration, cfg.InstanceCount)
	}
	if cfg.Template.ExecutorConfig.Name == "" {
		return fmt.Errorf("%w: executorConfig.name is required", model.ErrInvalidConfiguration)
	}
	for _, c := range cfg.Template.Constraints {
		if err := validateConstraint(cfg.Key, c); err != nil {
			return err
		}
	}
	return nil
}

// validateConstraint requires a dedicated-constraint value to be either the
// job's role or role/<suffix>, or the job's canonical role/env/name path.
func validateConstraint(key model.JobKey, c model.Constraint) error {
	if c.Kind != model.ConstraintDedicated {
		return nil
	}
	if c.Value == key.Role {
		return nil
	}
	if c.Value == key.String() {
		return nil
	}
	if strings.HasPrefix(c.Value, key.Role+"/") {
		return nil
	}
	return fmt.Errorf("%w: dedicated constraint value %q must be %q, %q/<suffix>, or %q",
		model.ErrInvalidConfiguration, c.Value, key.Role, key.Role, key.String())
}
