package main

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"
)

func webhooksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhooks",
		Short: "Manage outbound webhooks",
	}
	cmd.AddCommand(
		webhooksListCmd(),
		webhooksAddCmd(),
		webhooksRemoveCmd(),
		webhooksSetActiveCmd("enable", true),
		webhooksSetActiveCmd("disable", false),
	)
	return cmd
}

func webhooksListCmd() *cobra.Command {
	var activeOnly bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered webhooks (secrets redacted)",
		RunE: func(_ *cobra.Command, _ []string) error {
			res, err := callTool(context.Background(), "list_webhooks", map[string]any{
				"active_only": activeOnly,
			})
			if err != nil {
				return err
			}
			return printResult(res)
		},
	}
	cmd.Flags().BoolVar(&activeOnly, "active", false, "Only list active webhooks")
	return cmd
}

func webhooksAddCmd() *cobra.Command {
	var (
		url        string
		channel    string
		eventTypes []string
		secret     string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a webhook",
		RunE: func(_ *cobra.Command, _ []string) error {
			args := map[string]any{"url": url}
			if channel != "" {
				args["channel"] = channel
			}
			if len(eventTypes) > 0 {
				args["event_types"] = eventTypes
			}
			if secret != "" {
				args["secret"] = secret
			}

			res, err := callTool(context.Background(), "register_webhook", args)
			if err != nil {
				return err
			}
			return printResult(res)
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "Webhook URL (required)")
	cmd.Flags().StringVar(&channel, "channel", "", "Channel filter (exact, or ':'-terminated prefix)")
	cmd.Flags().StringSliceVar(&eventTypes, "event-type", nil, "Event types to deliver (repeatable)")
	cmd.Flags().StringVar(&secret, "secret", "", "HMAC signing secret")
	cmd.MarkFlagRequired("url")
	return cmd
}

func webhooksRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <webhook-id>",
		Short: "Delete a webhook",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return err
			}
			res, err := callTool(context.Background(), "unregister_webhook", map[string]any{
				"webhook_id": id,
			})
			if err != nil {
				return err
			}
			return printResult(res)
		},
	}
}

func webhooksSetActiveCmd(use string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <webhook-id>",
		Short: use + " a webhook",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return err
			}
			res, err := callTool(context.Background(), "set_webhook_active", map[string]any{
				"webhook_id": id,
				"active":     active,
			})
			if err != nil {
				return err
			}
			return printResult(res)
		},
	}
}
