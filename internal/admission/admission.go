// Package admission implements the JobFilter that CreateJob applies right
// after validating the job's configuration, before it reads or writes any
// state. Admission policy is a boolean expression evaluated
// against a job's attributes, so it's built on google/cel-go rather than
// hand-rolled predicate code.
package admission

import "github.com/nextlevelbuilder/clusterd/internal/model"

// Verdict is the result of a JobFilter call.
type Verdict struct {
	Pass   bool
	Reason string
}

// JobFilter gates a JobConfig at admission time, before it is persisted.
type JobFilter interface {
	Filter(cfg model.JobConfig) Verdict
}

// AllowAll is a JobFilter that passes every job, for standalone/test runs
// with no admission policy configured.
type AllowAll struct{}

func (AllowAll) Filter(model.JobConfig) Verdict {
	return Verdict{Pass: true}
}
