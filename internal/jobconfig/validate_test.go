package jobconfig

import (
	"strings"
	"testing"

	"github.com/nextlevelbuilder/clusterd/internal/model"
)

func TestValidateUser(t *testing.T) {
	tests := []struct {
		name    string
		user    string
		wantErr bool
	}{
		{"empty", "", true},
		{"normal", "user@example.com", false},
		{"max_length", strings.Repeat("a", 255), false},
		{"too_long", strings.Repeat("a", 256), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUser(tt.user)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateUser(%d chars) error = %v, wantErr %v", len(tt.user), err, tt.wantErr)
			}
		})
	}
}

func baseConfig() model.JobConfig {
	return model.JobConfig{
		Key:           model.JobKey{Role: "www-data", Environment: "prod", Name: "frontend"},
		InstanceCount: 3,
		Template: model.TaskTemplate{
			ExecutorConfig: model.ExecutorConfig{Name: "thermos"},
		},
	}
}

func TestValidate(t *testing.T) {
	t.Run("valid config passes", func(t *testing.T) {
		if err := Validate(baseConfig()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("rejects bad JobKey", func(t *testing.T) {
		cfg := baseConfig()
		cfg.Key.Name = "has a space"
		if err := Validate(cfg); err == nil {
			t.Fatal("expected error for invalid job name")
		}
	})

	t.Run("rejects zero instanceCount", func(t *testing.T) {
		cfg := baseConfig()
		cfg.InstanceCount = 0
		if err := Validate(cfg); err == nil {
			t.Fatal("expected error for instanceCount 0")
		}
	})

	t.Run("rejects missing executor name", func(t *testing.T) {
		cfg := baseConfig()
		cfg.Template.ExecutorConfig.Name = ""
		if err := Validate(cfg); err == nil {
			t.Fatal("expected error for missing executorConfig.name")
		}
	})
}

func TestValidateConstraint(t *testing.T) {
	key := model.JobKey{Role: "www-data", Environment: "prod", Name: "frontend"}

	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"bare role", "www-data", false},
		{"role with suffix", "www-data/canary", false},
		{"full job path", key.String(), false},
		{"unrelated role", "someone-else", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig()
			cfg.Key = key
			cfg.Template.Constraints = []model.Constraint{{
				Kind:  model.ConstraintDedicated,
				Value: tt.value,
			}}
			err := Validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("dedicated value %q: error = %v, wantErr %v", tt.value, err, tt.wantErr)
			}
		})
	}
}
