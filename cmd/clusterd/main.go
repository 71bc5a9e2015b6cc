// Command clusterd is the operator CLI for the cluster task scheduler.
package main

import (
	"fmt"
	"os"

	"github.com/nextlevelbuilder/clusterd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
