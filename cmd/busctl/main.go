package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "busctl",
		Short: "CLI for the agentbus event bus",
	}

	rootCmd.AddCommand(
		registerCmd(),
		unregisterCmd(),
		heartbeatCmd(),
		sessionsCmd(),
		publishCmd(),
		eventsCmd(),
		notifyCmd(),
		webhooksCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
