package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/nextlevelbuilder/clusterd/internal/admission"
	"github.com/nextlevelbuilder/clusterd/internal/config"
	"github.com/nextlevelbuilder/clusterd/internal/cronregistry"
	"github.com/nextlevelbuilder/clusterd/internal/driver"
	"github.com/nextlevelbuilder/clusterd/internal/eventsink"
	"github.com/nextlevelbuilder/clusterd/internal/scheduler"
	"github.com/nextlevelbuilder/clusterd/internal/statemanager"
	"github.com/nextlevelbuilder/clusterd/internal/taskstore"
	"github.com/nextlevelbuilder/clusterd/internal/taskstore/cache"
	"github.com/nextlevelbuilder/clusterd/internal/taskstore/memstore"
	"github.com/nextlevelbuilder/clusterd/internal/taskstore/pg"
	"github.com/nextlevelbuilder/clusterd/internal/taskstore/sqlite"
)

var cfgPath string

// resolveConfigPath returns the operator-supplied --config path, falling
// back to CLUSTERD_CONFIG then the conventional /etc/clusterd/clusterd.yaml.
func resolveConfigPath() string {
	if cfgPath != "" {
		return cfgPath
	}
	if env := os.Getenv("CLUSTERD_CONFIG"); env != "" {
		return env
	}
	return "/etc/clusterd/clusterd.yaml"
}

// buildCore wires a SchedulerCore against the configured TaskStore,
// EventSink, Driver, and cron trigger backends, exactly the way a
// standalone clusterd process assembles itself at startup. The CLI reuses
// this in-process wiring instead of opening an RPC connection, since there
// is no separate offer-matching/placement RPC surface to talk to.
func buildCore() (*scheduler.Core, error) {
	_, _, core, err := buildComponents()
	return core, err
}

// buildComponents is buildCore's full form, also returning the raw
// TaskStore and loaded Config so long-lived commands (serve) can wire
// additional components — like the snapshot exporter — against the same
// store the scheduler core runs on.
func buildComponents() (taskstore.TaskStore, *config.Config, *scheduler.Core, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("cmd: load config: %w", err)
	}
	logger := slog.Default()

	store, err := openStore(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	sink, err := openEventSink(cfg, logger)
	if err != nil {
		return nil, nil, nil, err
	}

	filter, err := openFilter(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	sm := statemanager.New(store, driver.NewLogging(logger), sink,
		statemanager.WithLogger(logger),
		statemanager.WithHostname(cfg.SchedulerID),
	)
	trigger := cronregistry.NewGronxTrigger(nil, logger)
	core := scheduler.New(sm, trigger, filter, logger)
	return store, cfg, core, nil
}

func openStore(cfg *config.Config) (taskstore.TaskStore, error) {
	var store taskstore.TaskStore
	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		db, err := pg.OpenDB(cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("cmd: open postgres store: %w", err)
		}
		store = pg.New(db)
	case config.BackendSQLite:
		s, err := sqlite.Open(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("cmd: open sqlite store: %w", err)
		}
		store = s
	default:
		store = memstore.New()
	}

	if cfg.Storage.CacheSize > 0 {
		cached, err := cache.New(store, cfg.Storage.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("cmd: wrap store with read cache: %w", err)
		}
		store = cached
	}
	return store, nil
}

func openEventSink(cfg *config.Config, logger *slog.Logger) (eventsink.EventSink, error) {
	if cfg.EventSink.Backend != "redis" {
		return eventsink.NewInProcess(), nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.EventSink.RedisAddr})
	return eventsink.NewRedis(client, cfg.EventSink.RedisChannel, logger), nil
}

func openFilter(cfg *config.Config) (admission.JobFilter, error) {
	if cfg.AdmissionExpr == "" {
		return admission.AllowAll{}, nil
	}
	return admission.NewCELFilter(cfg.AdmissionExpr)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
