// Package cmd implements clusterd's operator CLI, a thin cobra front end
// over SchedulerCore grounded on the teacher's cmd/*.go "one resource, one
// file, <resource>Cmd() returning *cobra.Command" layout.
package cmd

import (
	"github.com/spf13/cobra"
)

// Execute runs the clusterd root command.
func Execute() error {
	root := &cobra.Command{
		Use:   "clusterd",
		Short: "Operator CLI for the clusterd task scheduler",
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to clusterd.yaml (default: $CLUSTERD_CONFIG or /etc/clusterd/clusterd.yaml)")
	root.AddCommand(jobCmd())
	root.AddCommand(taskCmd())
	root.AddCommand(serveCmd())
	return root.Execute()
}
