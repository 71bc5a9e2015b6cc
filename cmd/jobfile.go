package cmd

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/nextlevelbuilder/clusterd/internal/model"
)

// jobFile is the YAML shape an operator hands to "job create"/"job update",
// mapping onto model.JobConfig. Kept separate from model.JobConfig itself
// so the wire format can evolve (e.g. gain defaulting, comments) without
// touching the domain type.
type jobFile struct {
	Role        string `yaml:"role"`
	Environment string `yaml:"environment"`
	Name        string `yaml:"name"`

	InstanceCount int    `yaml:"instanceCount"`
	CronSchedule  string `yaml:"cronSchedule"`
	CronCollision string `yaml:"cronCollisionPolicy"`

	Owner struct {
		Role string `yaml:"role"`
		User string `yaml:"user"`
	} `yaml:"owner"`

	CPU             float64 `yaml:"cpu"`
	RAMMb           int64   `yaml:"ramMb"`
	DiskMb          int64   `yaml:"diskMb"`
	RequestedPorts  []string `yaml:"requestedPorts"`
	IsService       bool    `yaml:"isService"`
	MaxTaskFailures int     `yaml:"maxTaskFailures"`
	Production      bool    `yaml:"production"`
	ContactEmail    string  `yaml:"contactEmail"`

	Executor struct {
		Name string `yaml:"name"`
		Data string `yaml:"data"`
	} `yaml:"executor"`

	Constraints []struct {
		Kind  string `yaml:"kind"`
		Name  string `yaml:"name"`
		Value string `yaml:"value"`
		Limit int    `yaml:"limit"`
	} `yaml:"constraints"`
}

func loadJobFile(path string) (model.JobConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return model.JobConfig{}, fmt.Errorf("cmd: read job file %s: %w", path, err)
	}

	var jf jobFile
	if err := yaml.Unmarshal(raw, &jf); err != nil {
		return model.JobConfig{}, fmt.Errorf("cmd: parse job file %s: %w", path, err)
	}

	ports := make(map[string]struct{}, len(jf.RequestedPorts))
	for _, name := range jf.RequestedPorts {
		ports[name] = struct{}{}
	}

	constraints := make([]model.Constraint, 0, len(jf.Constraints))
	for _, c := range jf.Constraints {
		constraints = append(constraints, model.Constraint{
			Kind:  model.ConstraintKind(c.Kind),
			Name:  c.Name,
			Value: c.Value,
			Limit: c.Limit,
		})
	}

	return model.JobConfig{
		Key: model.JobKey{
			Role:        jf.Role,
			Environment: jf.Environment,
			Name:        jf.Name,
		},
		InstanceCount:       jf.InstanceCount,
		CronSchedule:        jf.CronSchedule,
		CronCollisionPolicy: model.CronCollisionPolicy(jf.CronCollision),
		Template: model.TaskTemplate{
			Owner:           model.TaskOwner{Role: jf.Owner.Role, User: jf.Owner.User},
			CPU:             jf.CPU,
			RAMMb:           jf.RAMMb,
			DiskMb:          jf.DiskMb,
			RequestedPorts:  ports,
			Constraints:     constraints,
			ExecutorConfig:  model.ExecutorConfig{Name: jf.Executor.Name, Data: jf.Executor.Data},
			IsService:       jf.IsService,
			MaxTaskFailures: jf.MaxTaskFailures,
			Production:      jf.Production,
			ContactEmail:    jf.ContactEmail,
		},
	}, nil
}
