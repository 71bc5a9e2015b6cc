package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/clusterd/internal/model"
	"github.com/nextlevelbuilder/clusterd/internal/query"
	"github.com/nextlevelbuilder/clusterd/internal/scheduler"
)

func jobCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Create, kill, restart, and update jobs",
	}
	cmd.AddCommand(jobCreateCmd())
	cmd.AddCommand(jobKillCmd())
	cmd.AddCommand(jobRestartCmd())
	cmd.AddCommand(jobUpdateCmd())
	cmd.AddCommand(jobUpdateShardsCmd())
	cmd.AddCommand(jobRollbackCmd())
	cmd.AddCommand(jobFinishUpdateCmd())
	return cmd
}

// jobKeyFlags binds --role/--environment/--name onto cmd and returns an
// accessor for the resulting model.JobKey.
func jobKeyFlags(cmd *cobra.Command) func() model.JobKey {
	var role, environment, name string
	cmd.Flags().StringVar(&role, "role", "", "job role (required)")
	cmd.Flags().StringVar(&environment, "environment", "", "job environment (required)")
	cmd.Flags().StringVar(&name, "name", "", "job name (required)")
	cmd.MarkFlagRequired("role")
	cmd.MarkFlagRequired("environment")
	cmd.MarkFlagRequired("name")
	return func() model.JobKey {
		return model.JobKey{Role: role, Environment: environment, Name: name}
	}
}

func jobCreateCmd() *cobra.Command {
	var file, user string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create and admit a new job from a job file",
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := loadJobFile(file)
			if err != nil {
				fatalf("%v", err)
			}
			core, err := buildCore()
			if err != nil {
				fatalf("%v", err)
			}
			if err := core.CreateJob(context.Background(), cfg); err != nil {
				fatalf("create job %s: %v", cfg.Key.String(), err)
			}
			fmt.Printf("Created job %s (%d instances)\n", cfg.Key.String(), cfg.InstanceCount)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "path to a job definition YAML file (required)")
	cmd.Flags().StringVar(&user, "user", "", "requesting user (accepted, but not passed to the scheduler or recorded)")
	cmd.MarkFlagRequired("file")
	return cmd
}

func jobKillCmd() *cobra.Command {
	var user string
	var instanceIDs []int
	cmd := &cobra.Command{
		Use:   "kill",
		Short: "Kill a job, or specific shards of it",
	}
	key := jobKeyFlags(cmd)
	cmd.Flags().StringVar(&user, "user", "", "requesting user (required)")
	cmd.Flags().IntSliceVar(&instanceIDs, "instance", nil, "instance IDs to kill (default: the whole job)")
	cmd.MarkFlagRequired("user")
	cmd.Run = func(cmd *cobra.Command, args []string) {
		core, err := buildCore()
		if err != nil {
			fatalf("%v", err)
		}
		q := jobQuery(key(), instanceIDs)
		if err := core.KillTasks(context.Background(), q, user); err != nil {
			fatalf("kill job %s: %v", key().String(), err)
		}
		fmt.Printf("Killed job %s\n", key().String())
	}
	return cmd
}

func jobRestartCmd() *cobra.Command {
	var user string
	var instanceIDs []int
	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart a job, or specific shards of it, in place",
	}
	key := jobKeyFlags(cmd)
	cmd.Flags().StringVar(&user, "user", "", "requesting user (required)")
	cmd.Flags().IntSliceVar(&instanceIDs, "instance", nil, "instance IDs to restart (default: all active instances)")
	cmd.MarkFlagRequired("user")
	cmd.Run = func(cmd *cobra.Command, args []string) {
		core, err := buildCore()
		if err != nil {
			fatalf("%v", err)
		}
		ids := instanceIDs
		if len(ids) == 0 {
			active, err := core.FetchTasks(context.Background(), query.ByJobKey(key()).Active())
			if err != nil {
				fatalf("restart job %s: %v", key().String(), err)
			}
			for _, t := range active {
				ids = append(ids, t.InstanceID())
			}
		}
		if err := core.RestartShards(context.Background(), key(), ids, user); err != nil {
			fatalf("restart job %s: %v", key().String(), err)
		}
		fmt.Printf("Restarted job %s\n", key().String())
	}
	return cmd
}

func jobUpdateCmd() *cobra.Command {
	var file, user string
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Initiate a rolling update (or replace a cron job's config) from a job file",
		Run: func(cmd *cobra.Command, args []string) {
			newConfig, err := loadJobFile(file)
			if err != nil {
				fatalf("%v", err)
			}
			core, err := buildCore()
			if err != nil {
				fatalf("%v", err)
			}
			token, rolling, err := core.InitiateJobUpdate(context.Background(), newConfig, user)
			if err != nil {
				fatalf("update job %s: %v", newConfig.Key.String(), err)
			}
			if !rolling {
				fmt.Printf("Replaced cron job config for %s\n", newConfig.Key.String())
				return
			}
			fmt.Printf("Update session opened for %s, token=%s\n", newConfig.Key.String(), token)
			fmt.Println("Drive it forward with: clusterd job update-shards / job rollback / job finish-update")
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "path to the new job definition YAML file (required)")
	cmd.Flags().StringVar(&user, "user", "", "requesting user (required)")
	cmd.MarkFlagRequired("file")
	cmd.MarkFlagRequired("user")
	return cmd
}

func jobUpdateShardsCmd() *cobra.Command {
	var user, token string
	var instanceIDs []int
	cmd := &cobra.Command{
		Use:   "update-shards",
		Short: "Advance shards of an in-progress update to the new config",
	}
	key := jobKeyFlags(cmd)
	cmd.Flags().StringVar(&user, "user", "", "requesting user (required)")
	cmd.Flags().StringVar(&token, "token", "", "update session token (required)")
	cmd.Flags().IntSliceVar(&instanceIDs, "instance", nil, "instance IDs to update (none given: no instance is touched)")
	cmd.MarkFlagRequired("user")
	cmd.MarkFlagRequired("token")
	cmd.Run = func(cmd *cobra.Command, args []string) {
		core, err := buildCore()
		if err != nil {
			fatalf("%v", err)
		}
		results, err := core.UpdateShards(context.Background(), key(), user, instanceIDs, token)
		if err != nil {
			fatalf("update shards for %s: %v", key().String(), err)
		}
		printShardResults(results)
	}
	return cmd
}

func jobRollbackCmd() *cobra.Command {
	var user, token string
	var instanceIDs []int
	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Roll back shards of an in-progress update to their previous config",
	}
	key := jobKeyFlags(cmd)
	cmd.Flags().StringVar(&user, "user", "", "requesting user (required)")
	cmd.Flags().StringVar(&token, "token", "", "update session token (required)")
	cmd.Flags().IntSliceVar(&instanceIDs, "instance", nil, "instance IDs to roll back (none given: no instance is touched)")
	cmd.MarkFlagRequired("user")
	cmd.MarkFlagRequired("token")
	cmd.Run = func(cmd *cobra.Command, args []string) {
		core, err := buildCore()
		if err != nil {
			fatalf("%v", err)
		}
		results, err := core.RollbackShards(context.Background(), key(), user, instanceIDs, token)
		if err != nil {
			fatalf("rollback job %s: %v", key().String(), err)
		}
		printShardResults(results)
	}
	return cmd
}

func jobFinishUpdateCmd() *cobra.Command {
	var user, token, result string
	cmd := &cobra.Command{
		Use:   "finish-update",
		Short: "Close an update session as SUCCESS, FAILED, or TERMINATE",
	}
	key := jobKeyFlags(cmd)
	cmd.Flags().StringVar(&user, "user", "", "requesting user (required)")
	cmd.Flags().StringVar(&token, "token", "", "update session token, empty to force-close")
	cmd.Flags().StringVar(&result, "result", "SUCCESS", "SUCCESS, FAILED, or TERMINATE")
	cmd.MarkFlagRequired("user")
	cmd.Run = func(cmd *cobra.Command, args []string) {
		core, err := buildCore()
		if err != nil {
			fatalf("%v", err)
		}
		var tokenArg *string
		if token != "" {
			tokenArg = &token
		}
		if err := core.FinishUpdate(context.Background(), key(), user, tokenArg, scheduler.UpdateResultKind(result)); err != nil {
			fatalf("finish update for %s: %v", key().String(), err)
		}
		fmt.Printf("Closed update session for %s as %s\n", key().String(), result)
	}
	return cmd
}

func printShardResults(results map[int]scheduler.ShardUpdateResult) {
	for instanceID, r := range results {
		fmt.Printf("  instance %d: %s\n", instanceID, r)
	}
}
