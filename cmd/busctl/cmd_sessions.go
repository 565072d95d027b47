package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

func registerCmd() *cobra.Command {
	var (
		name string
		pid  int
	)
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register the current directory as a session on the bus",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cwd, err := os.Getwd()
			if err != nil {
				return err
			}

			args := map[string]any{"cwd": cwd}
			if name != "" {
				args["name"] = name
			}
			if cmd.Flags().Changed("pid") {
				args["pid"] = pid
			}

			res, err := callTool(context.Background(), "register_session", args)
			if err != nil {
				return err
			}
			return printResult(res)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Display name for the session (defaults to the repo name)")
	cmd.Flags().IntVar(&pid, "pid", 0, "Process id to associate with the session")
	return cmd
}

func unregisterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unregister <session-id>",
		Short: "Remove a session from the bus",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			res, err := callTool(context.Background(), "unregister_session", map[string]any{
				"session_id": args[0],
			})
			if err != nil {
				return err
			}
			return printResult(res)
		},
	}
}

func heartbeatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "heartbeat <session-id>",
		Short: "Refresh a session's heartbeat",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			res, err := callTool(context.Background(), "heartbeat", map[string]any{
				"session_id": args[0],
			})
			if err != nil {
				return err
			}
			return printResult(res)
		},
	}
}

func sessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List registered sessions",
		RunE: func(_ *cobra.Command, _ []string) error {
			res, err := callTool(context.Background(), "list_sessions", map[string]any{})
			if err != nil {
				return err
			}
			return printResult(res)
		},
	}
}
