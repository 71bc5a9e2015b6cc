package cmd

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/clusterd/internal/model"
	"github.com/nextlevelbuilder/clusterd/internal/query"
)

// jobQuery scopes q to key, and to instanceIDs when any are given.
func jobQuery(key model.JobKey, instanceIDs []int) query.Query {
	q := query.ByJobKey(key)
	if len(instanceIDs) > 0 {
		q = q.WithInstanceIDs(instanceIDs...)
	}
	return q
}

func taskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Inspect scheduled tasks",
	}
	cmd.AddCommand(taskListCmd())
	return cmd
}

func taskListCmd() *cobra.Command {
	var role, environment, name string
	var activeOnly bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List scheduled tasks, optionally scoped to a job",
		Run: func(cmd *cobra.Command, args []string) {
			core, err := buildCore()
			if err != nil {
				fatalf("%v", err)
			}

			var q query.Query
			switch {
			case role != "" && environment != "" && name != "":
				q = query.ByJobKey(model.JobKey{Role: role, Environment: environment, Name: name})
			case role != "":
				q = query.ByRole(role)
			default:
				q = query.Query{}
			}
			if activeOnly {
				q = q.Active()
			}

			tasks, err := core.FetchTasks(context.Background(), q)
			if err != nil {
				fatalf("list tasks: %v", err)
			}
			printTasks(tasks)
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "filter by role")
	cmd.Flags().StringVar(&environment, "environment", "", "filter by environment (requires --role and --name)")
	cmd.Flags().StringVar(&name, "name", "", "filter by job name (requires --role and --environment)")
	cmd.Flags().BoolVar(&activeOnly, "active", false, "only show non-terminal tasks")
	return cmd
}

func printTasks(tasks []model.ScheduledTask) {
	sort.Slice(tasks, func(i, j int) bool {
		if !tasks[i].JobKey().Equal(tasks[j].JobKey()) {
			return tasks[i].JobKey().String() < tasks[j].JobKey().String()
		}
		return tasks[i].InstanceID() < tasks[j].InstanceID()
	})

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "JOB\tINSTANCE\tTASK ID\tSTATUS\tFAILURES")
	for _, t := range tasks {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%d\n", t.JobKey().String(), t.InstanceID(), t.TaskID, t.Status, t.FailureCount)
	}
	w.Flush()
}
