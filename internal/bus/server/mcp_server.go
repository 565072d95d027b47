package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sebastianm/agentbus/internal/bus/event"
	"github.com/sebastianm/agentbus/internal/bus/session"
	"github.com/sebastianm/agentbus/internal/bus/webhook"
	"github.com/sebastianm/agentbus/internal/notify"
)

// toolDeps holds the services the tool surface is built on.
type toolDeps struct {
	Log      *slog.Logger
	Registry *session.Registry
	Events   *event.Log
	Webhooks *webhook.Service
}

// toolServer exposes the bus as MCP tools.
type toolServer struct {
	log    *slog.Logger
	server *mcp.Server
	deps   toolDeps
}

func newToolServer(deps toolDeps) *toolServer {
	s := &toolServer{
		log:  deps.Log,
		deps: deps,
	}
	s.server = mcp.NewServer(&mcp.Implementation{
		Name:    "agentbus",
		Version: "1.0.0",
	}, nil)
	s.registerTools()
	return s
}

// HTTPHandler serves the tool surface over streamable HTTP.
func (s *toolServer) HTTPHandler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.server
	}, nil)
}

type registerSessionArgs struct {
	Name string `json:"name,omitempty" jsonschema:"Display name for the session. Defaults to the repo derived from cwd."`
	Cwd  string `json:"cwd" jsonschema:"Absolute working directory of the agent process."`
	Pid  *int   `json:"pid,omitempty" jsonschema:"OS process id of the agent, used for dedup and liveness."`
}

type registerSessionResult struct {
	SessionID string `json:"session_id"`
	Name      string `json:"name"`
	Repo      string `json:"repo"`
	Machine   string `json:"machine"`
}

type unregisterSessionArgs struct {
	SessionID string `json:"session_id" jsonschema:"Id of the session to remove."`
}

type unregisterSessionResult struct {
	Success   bool   `json:"success"`
	SessionID string `json:"session_id"`
}

type heartbeatArgs struct {
	SessionID string `json:"session_id" jsonschema:"Id of the session to refresh."`
}

type successResult struct {
	Success bool `json:"success"`
}

type sessionSummary struct {
	SessionID   string `json:"session_id"`
	Name        string `json:"name"`
	Repo        string `json:"repo"`
	Machine     string `json:"machine"`
	Pid         *int   `json:"pid"`
	AgeSeconds  int64  `json:"age_seconds"`
	IdleSeconds int64  `json:"idle_seconds"`
	Alive       bool   `json:"alive"`
}

type listSessionsResult struct {
	Sessions []sessionSummary `json:"sessions"`
}

type publishEventArgs struct {
	EventType string `json:"event_type" jsonschema:"Short event type, e.g. greeting or task_completed."`
	Payload   string `json:"payload" jsonschema:"Opaque payload string; the bus does not parse it."`
	SessionID string `json:"session_id,omitempty" jsonschema:"Publishing session id. Defaults to the system session."`
	Channel   string `json:"channel,omitempty" jsonschema:"Routing channel. Defaults to 'all'."`
}

type publishEventResult struct {
	EventID int64 `json:"event_id"`
}

type getEventsArgs struct {
	SinceID   int64    `json:"since_id,omitempty" jsonschema:"Return only events with id greater than this cursor."`
	SessionID string   `json:"session_id,omitempty" jsonschema:"Scope the query to channels addressed at this session."`
	Channels  []string `json:"channels,omitempty" jsonschema:"Explicit channel filter; omit for the default behavior."`
	Limit     int      `json:"limit,omitempty" jsonschema:"Maximum number of events to return."`
}

type getEventsResult struct {
	Events []event.Event `json:"events"`
}

type notifyArgs struct {
	Title   string `json:"title" jsonschema:"Notification title."`
	Message string `json:"message" jsonschema:"Notification body."`
	Sound   bool   `json:"sound,omitempty" jsonschema:"Play the default notification sound."`
}

type registerWebhookArgs struct {
	URL        string   `json:"url" jsonschema:"Absolute http(s) URL to POST matching events to."`
	Channel    string   `json:"channel,omitempty" jsonschema:"Channel filter: exact match, or a ':'-terminated prefix. Omit to match all channels."`
	EventTypes []string `json:"event_types,omitempty" jsonschema:"Event types to deliver. Omit to deliver all types."`
	Secret     string   `json:"secret,omitempty" jsonschema:"Shared secret for HMAC-SHA256 request signing."`
}

type registerWebhookResult struct {
	WebhookID  int64    `json:"webhook_id"`
	URL        string   `json:"url"`
	Channel    string   `json:"channel,omitempty"`
	EventTypes []string `json:"event_types,omitempty"`
	CreatedAt  string   `json:"created_at"`
}

type listWebhooksArgs struct {
	ActiveOnly bool `json:"active_only,omitempty" jsonschema:"Return only active webhooks."`
}

type webhookSummary struct {
	ID         int64    `json:"id"`
	URL        string   `json:"url"`
	Channel    string   `json:"channel,omitempty"`
	EventTypes []string `json:"event_types,omitempty"`
	Active     bool     `json:"active"`
	HasSecret  bool     `json:"has_secret"`
	CreatedAt  string   `json:"created_at"`
}

type listWebhooksResult struct {
	Webhooks []webhookSummary `json:"webhooks"`
}

type unregisterWebhookArgs struct {
	WebhookID int64 `json:"webhook_id" jsonschema:"Id of the webhook to remove."`
}

type unregisterWebhookResult struct {
	Success   bool  `json:"success"`
	WebhookID int64 `json:"webhook_id"`
}

type setWebhookActiveArgs struct {
	WebhookID int64 `json:"webhook_id" jsonschema:"Id of the webhook to toggle."`
	Active    bool  `json:"active" jsonschema:"New active state."`
}

func (s *toolServer) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "register_session",
		Description: "Register this agent process on the bus. Replaces any previous session with the same machine, cwd and pid.",
	}, s.handleRegisterSession)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "unregister_session",
		Description: "Remove a session from the bus.",
	}, s.handleUnregisterSession)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "heartbeat",
		Description: "Refresh a session's heartbeat so the stale sweep keeps it alive.",
	}, s.handleHeartbeat)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_sessions",
		Description: "List registered sessions with age, idle time and process liveness.",
	}, s.handleListSessions)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "publish_event",
		Description: "Publish an event onto a channel. Matching webhooks are notified asynchronously.",
	}, s.handlePublishEvent)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_events",
		Description: "Read events after a cursor, optionally filtered by channel or scoped to a session.",
	}, s.handleGetEvents)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "notify",
		Description: "Show a desktop notification on the machine running the bus.",
	}, s.handleNotify)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "register_webhook",
		Description: "Register an outbound webhook that receives matching events as signed HTTP POSTs.",
	}, s.handleRegisterWebhook)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_webhooks",
		Description: "List registered webhooks. Secrets are redacted.",
	}, s.handleListWebhooks)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "unregister_webhook",
		Description: "Delete a webhook.",
	}, s.handleUnregisterWebhook)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "set_webhook_active",
		Description: "Enable or disable a webhook without deleting it.",
	}, s.handleSetWebhookActive)
}

func (s *toolServer) handleRegisterSession(ctx context.Context, _ *mcp.CallToolRequest, args registerSessionArgs) (*mcp.CallToolResult, registerSessionResult, error) {
	if args.Cwd == "" {
		return nil, registerSessionResult{}, errors.New("cwd is required")
	}

	sess, err := s.deps.Registry.Register(ctx, args.Name, args.Cwd, args.Pid, "")
	if err != nil {
		s.log.Error("register_session failed", "error", err)
		return nil, registerSessionResult{}, err
	}

	s.log.Info("session registered", "session_id", sess.ID, "name", sess.Name, "repo", sess.Repo)
	return nil, registerSessionResult{
		SessionID: sess.ID,
		Name:      sess.Name,
		Repo:      sess.Repo,
		Machine:   sess.Machine,
	}, nil
}

func (s *toolServer) handleUnregisterSession(ctx context.Context, _ *mcp.CallToolRequest, args unregisterSessionArgs) (*mcp.CallToolResult, unregisterSessionResult, error) {
	removed, err := s.deps.Registry.Unregister(ctx, args.SessionID)
	if err != nil {
		return nil, unregisterSessionResult{}, err
	}
	return nil, unregisterSessionResult{Success: removed, SessionID: args.SessionID}, nil
}

func (s *toolServer) handleHeartbeat(ctx context.Context, _ *mcp.CallToolRequest, args heartbeatArgs) (*mcp.CallToolResult, successResult, error) {
	ok, err := s.deps.Registry.Heartbeat(ctx, args.SessionID)
	if err != nil {
		return nil, successResult{}, err
	}
	return nil, successResult{Success: ok}, nil
}

func (s *toolServer) handleListSessions(ctx context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, listSessionsResult, error) {
	views, err := s.deps.Registry.List(ctx)
	if err != nil {
		return nil, listSessionsResult{}, err
	}

	summaries := make([]sessionSummary, len(views))
	for i, v := range views {
		summaries[i] = sessionSummary{
			SessionID:   v.ID,
			Name:        v.Name,
			Repo:        v.Repo,
			Machine:     v.Machine,
			Pid:         v.PID,
			AgeSeconds:  v.AgeSeconds,
			IdleSeconds: v.IdleSeconds,
			Alive:       v.Alive,
		}
	}
	return nil, listSessionsResult{Sessions: summaries}, nil
}

func (s *toolServer) handlePublishEvent(ctx context.Context, _ *mcp.CallToolRequest, args publishEventArgs) (*mcp.CallToolResult, publishEventResult, error) {
	e, err := s.deps.Events.Publish(ctx, args.EventType, args.Payload, args.SessionID, args.Channel)
	if err != nil {
		return nil, publishEventResult{}, err
	}
	return nil, publishEventResult{EventID: e.ID}, nil
}

func (s *toolServer) handleGetEvents(ctx context.Context, _ *mcp.CallToolRequest, args getEventsArgs) (*mcp.CallToolResult, getEventsResult, error) {
	events, err := s.deps.Events.Events(ctx, args.SinceID, args.SessionID, args.Channels, args.Limit)
	if err != nil {
		return nil, getEventsResult{}, err
	}
	if events == nil {
		events = []event.Event{}
	}
	return nil, getEventsResult{Events: events}, nil
}

func (s *toolServer) handleNotify(_ context.Context, _ *mcp.CallToolRequest, args notifyArgs) (*mcp.CallToolResult, successResult, error) {
	if err := notify.Send(args.Title, args.Message, args.Sound); err != nil {
		s.log.Warn("notification failed", "error", err)
		return nil, successResult{Success: false}, nil
	}
	return nil, successResult{Success: true}, nil
}

func (s *toolServer) handleRegisterWebhook(ctx context.Context, _ *mcp.CallToolRequest, args registerWebhookArgs) (*mcp.CallToolResult, registerWebhookResult, error) {
	wh, err := s.deps.Webhooks.Register(ctx, args.URL, args.Channel, args.EventTypes, args.Secret)
	if err != nil {
		return nil, registerWebhookResult{}, err
	}

	s.log.Info("webhook registered", "webhook_id", wh.ID, "url", wh.URL, "channel", wh.ChannelFilter)
	return nil, registerWebhookResult{
		WebhookID:  wh.ID,
		URL:        wh.URL,
		Channel:    wh.ChannelFilter,
		EventTypes: wh.EventTypes,
		CreatedAt:  wh.CreatedAt.Format(time.RFC3339),
	}, nil
}

func (s *toolServer) handleListWebhooks(ctx context.Context, _ *mcp.CallToolRequest, args listWebhooksArgs) (*mcp.CallToolResult, listWebhooksResult, error) {
	hooks, err := s.deps.Webhooks.List(ctx, args.ActiveOnly)
	if err != nil {
		return nil, listWebhooksResult{}, err
	}

	// Secrets never leave the server; callers only learn whether one is set.
	summaries := make([]webhookSummary, len(hooks))
	for i, wh := range hooks {
		summaries[i] = webhookSummary{
			ID:         wh.ID,
			URL:        wh.URL,
			Channel:    wh.ChannelFilter,
			EventTypes: wh.EventTypes,
			Active:     wh.Active,
			HasSecret:  wh.Secret != "",
			CreatedAt:  wh.CreatedAt.Format(time.RFC3339),
		}
	}
	return nil, listWebhooksResult{Webhooks: summaries}, nil
}

func (s *toolServer) handleUnregisterWebhook(ctx context.Context, _ *mcp.CallToolRequest, args unregisterWebhookArgs) (*mcp.CallToolResult, unregisterWebhookResult, error) {
	removed, err := s.deps.Webhooks.Delete(ctx, args.WebhookID)
	if err != nil {
		return nil, unregisterWebhookResult{}, err
	}
	return nil, unregisterWebhookResult{Success: removed, WebhookID: args.WebhookID}, nil
}

func (s *toolServer) handleSetWebhookActive(ctx context.Context, _ *mcp.CallToolRequest, args setWebhookActiveArgs) (*mcp.CallToolResult, successResult, error) {
	ok, err := s.deps.Webhooks.SetActive(ctx, args.WebhookID, args.Active)
	if err != nil {
		return nil, successResult{}, err
	}
	return nil, successResult{Success: ok}, nil
}
