package model

import (
	"fmt"
	"regexp"
	"strings"
)

// identifierRe is the allowed charset for a JobKey component: one or more
// of [A-Za-z0-9_.-], never empty, never containing "/".
var identifierRe = regexp.MustCompile(`^[A-Za-z0-9_.\-]+$`)

// JobKey identifies a job by (role, environment, name). All three fields
// must be non-empty and charset-restricted; they never contain "/" except
// as the dedicated-value path separator used elsewhere.
type JobKey struct {
	Role        string
	Environment string
	Name        string
}

// Validate checks the identifier charset rule.
func (k JobKey) Validate() error {
	for name, v := range map[string]string{
		"role":        k.Role,
		"environment": k.Environment,
		"name":        k.Name,
	} {
		if v == "" {
			return fmt.Errorf("%w: %s must not be empty", ErrInvalidConfiguration, name)
		}
		if !identifierRe.MatchString(v) {
			return fmt.Errorf("%w: %s %q contains characters outside [A-Za-z0-9_.-]", ErrInvalidConfiguration, name, v)
		}
	}
	return nil
}

// String renders the canonical role/environment/name path used by
// dedicated-constraint validation.
func (k JobKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Role, k.Environment, k.Name)
}

// Equal reports whether two JobKeys name the same job.
func (k JobKey) Equal(other JobKey) bool {
	return k.Role == other.Role && k.Environment == other.Environment && k.Name == other.Name
}

// ParseJobKey splits a canonical "role/environment/name" path back into a
// JobKey; it is the inverse of String.
func ParseJobKey(path string) (JobKey, bool) {
	parts := strings.Split(path, "/")
	if len(parts) != 3 {
		return JobKey{}, false
	}
	return JobKey{Role: parts[0], Environment: parts[1], Name: parts[2]}, true
}
