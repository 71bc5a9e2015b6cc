package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// StorageBackend selects which taskstore.TaskStore implementation the
// scheduler runs against.
type StorageBackend string

const (
	BackendMemory   StorageBackend = "memory"
	BackendSQLite   StorageBackend = "sqlite"
	BackendPostgres StorageBackend = "postgres"
)

// Config is clusterd's top-level configuration, loaded from YAML and
// reloadable via Watcher.
type Config struct {
	SchedulerID string `yaml:"schedulerId"`

	Storage StorageConfig `yaml:"storage"`

	// EventSink selects "inprocess" (default) or "redis".
	EventSink EventSinkConfig `yaml:"eventSink"`

	// AdmissionExpr, when non-empty, is a CEL expression evaluated by
	// internal/admission.CELFilter against every createJob call.
	AdmissionExpr string `yaml:"admissionExpr"`

	// DefaultMaxTaskFailures is loaded and defaulted to 1 but read by no
	// component: the backfill and the state machine apply a fixed 1 to a
	// task that sets no MaxTaskFailures.
	DefaultMaxTaskFailures int `yaml:"defaultMaxTaskFailures"`

	Snapshot SnapshotConfig `yaml:"snapshot"`
}

// StorageConfig configures the TaskStore backend.
type StorageConfig struct {
	Backend StorageBackend `yaml:"backend"`

	// PostgresDSN is required when Backend is "postgres".
	PostgresDSN string `yaml:"postgresDSN"`

	// SQLitePath is required when Backend is "sqlite".
	SQLitePath string `yaml:"sqlitePath"`

	// CacheSize is the number of JobKeys whose task sets the LRU read
	// cache holds. 0 disables the cache wrapper entirely.
	CacheSize int `yaml:"cacheSize"`
}

// EventSinkConfig configures the EventSink backend.
type EventSinkConfig struct {
	Backend string `yaml:"backend"` // "inprocess" or "redis"
	RedisAddr string `yaml:"redisAddr"`
	RedisChannel string `yaml:"redisChannel"`
}

// SnapshotConfig configures the periodic S3 snapshot exporter. Bucket
// empty disables the exporter.
type SnapshotConfig struct {
	Bucket   string        `yaml:"bucket"`
	Prefix   string        `yaml:"prefix"`
	Interval time.Duration `yaml:"interval"`
}

// defaults applies every zero-value field's default, mirroring the
// teacher's "load then backfill defaults" config pattern.
func (c *Config) defaults() {
	if c.SchedulerID == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		c.SchedulerID = NormalizeSchedulerID(hostname)
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = BackendMemory
	}
	if c.Storage.CacheSize == 0 {
		c.Storage.CacheSize = 4096
	}
	if c.EventSink.Backend == "" {
		c.EventSink.Backend = "inprocess"
	}
	if c.EventSink.RedisChannel == "" {
		c.EventSink.RedisChannel = "clusterd.task-events"
	}
	if c.DefaultMaxTaskFailures == 0 {
		c.DefaultMaxTaskFailures = 1
	}
	if c.Snapshot.Prefix == "" {
		c.Snapshot.Prefix = "clusterd-snapshots"
	}
	if c.Snapshot.Interval == 0 {
		c.Snapshot.Interval = 15 * time.Minute
	}
}

// Load reads and parses the YAML config file at path, applying defaults
// for every field left unset.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.defaults()
	return &cfg, nil
}
