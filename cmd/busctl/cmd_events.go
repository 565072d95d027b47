package main

import (
	"context"

	"github.com/spf13/cobra"
)

func publishCmd() *cobra.Command {
	var (
		eventType string
		payload   string
		sessionID string
		channel   string
	)
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish an event onto a channel",
		RunE: func(_ *cobra.Command, _ []string) error {
			args := map[string]any{
				"event_type": eventType,
				"payload":    payload,
			}
			if sessionID != "" {
				args["session_id"] = sessionID
			}
			if channel != "" {
				args["channel"] = channel
			}

			res, err := callTool(context.Background(), "publish_event", args)
			if err != nil {
				return err
			}
			return printResult(res)
		},
	}
	cmd.Flags().StringVar(&eventType, "type", "", "Event type (required)")
	cmd.Flags().StringVar(&payload, "payload", "", "Event payload")
	cmd.Flags().StringVar(&sessionID, "session", "", "Publishing session id")
	cmd.Flags().StringVar(&channel, "channel", "", "Routing channel (default 'all')")
	cmd.MarkFlagRequired("type")
	return cmd
}

func eventsCmd() *cobra.Command {
	var (
		sinceID   int64
		sessionID string
		channels  []string
		limit     int
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Read events after a cursor",
		RunE: func(_ *cobra.Command, _ []string) error {
			args := map[string]any{}
			if sinceID > 0 {
				args["since_id"] = sinceID
			}
			if sessionID != "" {
				args["session_id"] = sessionID
			}
			if len(channels) > 0 {
				args["channels"] = channels
			}
			if limit > 0 {
				args["limit"] = limit
			}

			res, err := callTool(context.Background(), "get_events", args)
			if err != nil {
				return err
			}
			return printResult(res)
		},
	}
	cmd.Flags().Int64Var(&sinceID, "since", 0, "Return only events with id greater than this")
	cmd.Flags().StringVar(&sessionID, "session", "", "Scope the query to this session's channels")
	cmd.Flags().StringSliceVar(&channels, "channel", nil, "Explicit channel filter (repeatable)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of events")
	return cmd
}

func notifyCmd() *cobra.Command {
	var sound bool
	cmd := &cobra.Command{
		Use:   "notify <title> <message>",
		Short: "Show a desktop notification on the bus machine",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			res, err := callTool(context.Background(), "notify", map[string]any{
				"title":   args[0],
				"message": args[1],
				"sound":   sound,
			})
			if err != nil {
				return err
			}
			return printResult(res)
		},
	}
	cmd.Flags().BoolVar(&sound, "sound", false, "Play the default notification sound")
	return cmd
}
