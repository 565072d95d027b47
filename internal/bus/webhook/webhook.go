// Package webhook implements outbound event subscriptions: registration,
// channel/type matching, and signed asynchronous HTTP delivery.
package webhook

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"
)

// Webhook is an outbound subscription forwarding matching events to a URL.
type Webhook struct {
	ID  int64
	URL string

	// ChannelFilter restricts matching by event channel. Empty matches any
	// channel; a filter ending in ":" is a prefix filter; anything else is
	// an exact match.
	ChannelFilter string

	// EventTypes restricts matching by event type (case-sensitive). Empty
	// matches any type.
	EventTypes []string

	// Secret, when set, signs the delivery body with HMAC-SHA256.
	Secret string

	Active    bool
	CreatedAt time.Time
}

// Matches reports whether an event on the given channel with the given type
// would be delivered to this webhook. Inactive webhooks never match.
func (w Webhook) Matches(channel, eventType string) bool {
	if !w.Active {
		return false
	}
	if !channelMatch(w.ChannelFilter, channel) {
		return false
	}
	if len(w.EventTypes) > 0 && !slices.Contains(w.EventTypes, eventType) {
		return false
	}
	return true
}

// channelMatch applies the three-way filter rule: empty matches everything,
// a trailing ":" makes the filter a prefix, otherwise exact equality. The
// prefix rule is strictly "ends with ':'" so filters like "repo:myrepo"
// stay exact matches.
func channelMatch(filter, channel string) bool {
	switch {
	case filter == "":
		return true
	case strings.HasSuffix(filter, ":"):
		return strings.HasPrefix(channel, filter)
	default:
		return filter == channel
	}
}

// Store persists webhooks.
type Store interface {
	AddWebhook(ctx context.Context, url, channelFilter string, eventTypes []string, secret string) (Webhook, error)
	GetWebhook(ctx context.Context, id int64) (Webhook, bool, error)
	ListWebhooks(ctx context.Context, activeOnly bool) ([]Webhook, error)
	DeleteWebhook(ctx context.Context, id int64) (bool, error)
	SetWebhookActive(ctx context.Context, id int64, active bool) (bool, error)
}

// Service validates and manages webhook registrations on behalf of the tool
// surface.
type Service struct {
	store Store
}

// NewService creates a Service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Register validates the URL and creates an active webhook.
func (s *Service) Register(ctx context.Context, rawURL, channelFilter string, eventTypes []string, secret string) (Webhook, error) {
	u, err := url.Parse(rawURL)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Webhook{}, fmt.Errorf("invalid webhook url %q: must be an absolute http(s) URL", rawURL)
	}

	wh, err := s.store.AddWebhook(ctx, rawURL, channelFilter, eventTypes, secret)
	if err != nil {
		return Webhook{}, fmt.Errorf("registering webhook: %w", err)
	}
	return wh, nil
}

// List returns webhooks, optionally only active ones. Secrets stay on the
// returned values; the tool layer is responsible for redacting them.
func (s *Service) List(ctx context.Context, activeOnly bool) ([]Webhook, error) {
	return s.store.ListWebhooks(ctx, activeOnly)
}

// Get returns a webhook by id.
func (s *Service) Get(ctx context.Context, id int64) (Webhook, bool, error) {
	return s.store.GetWebhook(ctx, id)
}

// Delete removes a webhook, reporting false for unknown ids.
func (s *Service) Delete(ctx context.Context, id int64) (bool, error) {
	return s.store.DeleteWebhook(ctx, id)
}

// SetActive toggles a webhook, reporting false for unknown ids.
func (s *Service) SetActive(ctx context.Context, id int64, active bool) (bool, error) {
	return s.store.SetWebhookActive(ctx, id, active)
}
