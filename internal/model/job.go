package model

// CronCollisionPolicy governs what happens when a cron job fires while its
// previous instances are still active.
type CronCollisionPolicy string

const (
	KillExisting CronCollisionPolicy = "KILL_EXISTING"
	CancelNew    CronCollisionPolicy = "CANCEL_NEW"
	RunOverlap   CronCollisionPolicy = "RUN_OVERLAP"
)

// TaskTemplate is the per-instance TaskConfig template a JobConfig expands
// into instanceCount copies of (with InstanceID filled in per instance).
type TaskTemplate struct {
	Owner           TaskOwner
	CPU             float64
	RAMMb           int64
	DiskMb          int64
	RequestedPorts  map[string]struct{}
	Constraints     []Constraint
	ExecutorConfig  ExecutorConfig
	IsService       bool
	MaxTaskFailures int
	Production      bool
	ContactEmail    string
}

// TaskConfig expands the template into the TaskConfig of one instance,
// with key and instanceID filled in.
func (t TaskTemplate) TaskConfig(key JobKey, instanceID int) TaskConfig {
	return TaskConfig{
		Owner:           t.Owner,
		JobKey:          key,
		InstanceID:      instanceID,
		CPU:             t.CPU,
		RAMMb:           t.RAMMb,
		DiskMb:          t.DiskMb,
		RequestedPorts:  t.RequestedPorts,
		Constraints:     t.Constraints,
		ExecutorConfig:  t.ExecutorConfig,
		IsService:       t.IsService,
		MaxTaskFailures: t.MaxTaskFailures,
		Production:      t.Production,
		ContactEmail:    t.ContactEmail,
	}
}

// JobConfig is the admission-time declaration of a job.
type JobConfig struct {
	Key                  JobKey
	InstanceCount        int
	Template             TaskTemplate
	CronSchedule         string // empty means not cron-managed
	CronCollisionPolicy  CronCollisionPolicy
}

// IsCron reports whether this JobConfig is cron-managed.
func (j JobConfig) IsCron() bool {
	return j.CronSchedule != ""
}

// EffectiveCollisionPolicy returns CronCollisionPolicy, defaulting to
// KILL_EXISTING when unset.
func (j JobConfig) EffectiveCollisionPolicy() CronCollisionPolicy {
	if j.CronCollisionPolicy == "" {
		return KillExisting
	}
	return j.CronCollisionPolicy
}
