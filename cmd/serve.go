package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/clusterd/internal/config"
	"github.com/nextlevelbuilder/clusterd/internal/scheduler"
	"github.com/nextlevelbuilder/clusterd/internal/snapshot"
)

// serveCmd runs clusterd as a long-lived process: the cron trigger's
// one-second polling loop and, when configured, the periodic S3 snapshot
// exporter. Job/task subcommands talk to the store directly per
// invocation. Cron registrations live in the memory of the process that
// made them and serve loads none from the store, so the trigger here fires
// only jobs registered within this process.
func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run clusterd's cron trigger and snapshot exporter until interrupted",
		Run: func(cmd *cobra.Command, args []string) {
			store, cfg, core, err := buildComponents()
			if err != nil {
				fatalf("%v", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger := slog.Default()
			logger.Info("clusterd: serving", "scheduler_id", cfg.SchedulerID)

			if watcher, err := config.NewWatcher(resolveConfigPath()); err != nil {
				logger.Warn("clusterd: config hot-reload disabled", "error", err)
			} else {
				watcher.OnChange(func(newCfg *config.Config) {
					reloadAdmissionFilter(core, newCfg, logger)
				})
				if err := watcher.Start(); err != nil {
					logger.Warn("clusterd: config hot-reload disabled", "error", err)
				} else {
					defer watcher.Stop()
				}
			}

			if cfg.Snapshot.Bucket != "" {
				awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
				if err != nil {
					fatalf("load AWS config for snapshot export: %v", err)
				}
				exporter := snapshot.New(store, s3.NewFromConfig(awsCfg), cfg.Snapshot.Bucket, cfg.Snapshot.Prefix,
					snapshot.WithInterval(cfg.Snapshot.Interval),
					snapshot.WithLogger(logger),
				)
				go exporter.Run(ctx)
			}

			<-ctx.Done()
			fmt.Println("clusterd: shutting down")
		},
	}
}

// reloadAdmissionFilter rebuilds the admission filter from the newly
// loaded config and swaps it onto the running core. Storage and event
// sink backends are fixed at process startup; only the admission
// expression is live-reloadable, since swapping a store or sink mid-flight
// would orphan in-flight transactions.
func reloadAdmissionFilter(core *scheduler.Core, cfg *config.Config, logger *slog.Logger) {
	filter, err := openFilter(cfg)
	if err != nil {
		logger.Error("clusterd: config reload: admission expression rejected, keeping previous filter", "error", err)
		return
	}
	core.SetFilter(filter)
	logger.Info("clusterd: admission filter reloaded")
}
