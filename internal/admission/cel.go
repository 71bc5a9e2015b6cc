package admission

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/nextlevelbuilder/clusterd/internal/model"
)

// CELFilter evaluates a CEL boolean expression against a job's attributes,
// e.g. `job.production || job.cpu <= 16.0`. A non-boolean result or
// evaluation error is treated as a FAIL with the error as reason.
type CELFilter struct {
	expr    string
	program cel.Program
}

// NewCELFilter compiles expr once at construction time.
func NewCELFilter(expr string) (*CELFilter, error) {
	env, err := cel.NewEnv(
		cel.Variable("job", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("admission: create cel env: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: admission expression: %v", model.ErrInvalidConfiguration, issues.Err())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("admission: build cel program: %w", err)
	}

	return &CELFilter{expr: expr, program: program}, nil
}

// Filter evaluates the compiled expression against cfg.
func (f *CELFilter) Filter(cfg model.JobConfig) Verdict {
	activation := map[string]interface{}{
		"job": map[string]interface{}{
			"role":        cfg.Key.Role,
			"environment": cfg.Key.Environment,
			"name":        cfg.Key.Name,
			"production":  cfg.Template.Production,
			"isService":   cfg.Template.IsService,
			"cpu":         cfg.Template.CPU,
			"ramMb":       float64(cfg.Template.RAMMb),
			"diskMb":      float64(cfg.Template.DiskMb),
			"instanceCount": float64(cfg.InstanceCount),
		},
	}

	out, _, err := f.program.Eval(activation)
	if err != nil {
		return Verdict{Pass: false, Reason: fmt.Sprintf("admission expression %q failed: %v", f.expr, err)}
	}

	allowed, ok := out.Value().(bool)
	if !ok {
		return Verdict{Pass: false, Reason: fmt.Sprintf("admission expression %q did not evaluate to a bool", f.expr)}
	}
	if !allowed {
		return Verdict{Pass: false, Reason: fmt.Sprintf("job rejected by admission policy %q", f.expr)}
	}
	return Verdict{Pass: true}
}
